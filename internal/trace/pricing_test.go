package trace

import (
	"math"
	"testing"

	"github.com/valet-agent/valet/internal/config"
)

var testPricing = map[string]config.PricingEntry{
	"claude-sonnet-4-20250514": {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-opus-4-20250514":   {InputPerMillion: 15, OutputPerMillion: 75},
}

func TestCost(t *testing.T) {
	tests := []struct {
		name  string
		model string
		in    int
		out   int
		want  float64
	}{
		{"sonnet", "claude-sonnet-4-20250514", 1_000_000, 1_000_000, 18},
		{"opus small", "claude-opus-4-20250514", 1000, 500, 1000.0/1e6*15 + 500.0/1e6*75},
		{"zero usage", "claude-sonnet-4-20250514", 0, 0, 0},
		{"unknown model", "some-new-model", 50_000, 10_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(tt.model, tt.in, tt.out, testPricing)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Cost(%s, %d, %d) = %v, want %v", tt.model, tt.in, tt.out, got, tt.want)
			}
		})
	}
}

func TestCost_Additive(t *testing.T) {
	model := "claude-sonnet-4-20250514"
	whole := Cost(model, 2000, 400, testPricing)
	split := Cost(model, 1500, 300, testPricing) + Cost(model, 500, 100, testPricing)
	if math.Abs(whole-split) > 1e-12 {
		t.Errorf("cost not additive: whole %v, split %v", whole, split)
	}
}
