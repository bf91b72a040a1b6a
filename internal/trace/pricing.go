package trace

import "github.com/valet-agent/valet/internal/config"

// Cost calculates the USD cost for a model's token usage based on the
// pricing table. Models not in the table are treated as free rather
// than raising an error, so the loop is never blocked by a pricing gap.
func Cost(model string, inputTokens, outputTokens int, pricing map[string]config.PricingEntry) float64 {
	entry, ok := pricing[model]
	if !ok {
		return 0
	}
	cost := float64(inputTokens) / 1_000_000.0 * entry.InputPerMillion
	cost += float64(outputTokens) / 1_000_000.0 * entry.OutputPerMillion
	return cost
}
