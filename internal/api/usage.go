package api

import (
	"context"
	"net/http"
	"time"

	"github.com/valet-agent/valet/internal/trace"
)

// UsageReader aggregates persisted execution traces. Implemented by
// *trace.SQLiteSink.
type UsageReader interface {
	Summarize(ctx context.Context, start, end time.Time) (*trace.Summary, error)
	SummarizeByModel(ctx context.Context, start, end time.Time) (map[string]*trace.Summary, error)
}

// handleUsage reports aggregate token and cost totals. The window
// defaults to the last 30 days; ?since and ?until accept RFC 3339
// timestamps or dates.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "trace store not configured")
		return
	}

	now := time.Now()
	start := now.AddDate(0, 0, -30)
	end := now

	if v := r.URL.Query().Get("since"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid since: "+err.Error())
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid until: "+err.Error())
			return
		}
		end = t
	}

	total, err := s.usage.Summarize(r.Context(), start, end)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	byModel, err := s.usage.SummarizeByModel(r.Context(), start, end)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, map[string]any{
		"since":    start.Format(time.RFC3339),
		"until":    end.Format(time.RFC3339),
		"total":    usageEntry(total),
		"by_model": usageEntries(byModel),
	})
}

func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, time.Local)
}

func usageEntry(sum *trace.Summary) map[string]any {
	return map[string]any{
		"runs":          sum.TotalRuns,
		"input_tokens":  sum.TotalInputTokens,
		"output_tokens": sum.TotalOutputTokens,
		"cost_usd":      sum.TotalCostUSD,
	}
}

func usageEntries(sums map[string]*trace.Summary) map[string]any {
	out := make(map[string]any, len(sums))
	for model, sum := range sums {
		out[model] = usageEntry(sum)
	}
	return out
}
