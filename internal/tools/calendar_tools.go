package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/valet-agent/valet/internal/calendar"
)

// RegisterCalendarTools adds the read-only calendar tool backed by the
// given source.
func RegisterCalendarTools(r *Registry, source calendar.Source) {
	r.Register(&Tool{
		Name:        "list_calendar_events",
		Description: "List the user's calendar events in a time window. Use to answer questions about schedule, availability, and upcoming appointments.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days_ahead": map[string]any{
					"type":        "integer",
					"description": "How many days ahead to look, starting now (default 1, max 31)",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if source == nil {
				return "", fmt.Errorf("calendar not configured")
			}

			days := 1
			if d, ok := args["days_ahead"].(float64); ok && d > 0 {
				days = int(d)
			}
			if days > 31 {
				days = 31
			}

			from := time.Now()
			to := from.AddDate(0, 0, days)

			events, err := source.ListEvents(ctx, from, to)
			if err != nil {
				return "", fmt.Errorf("list events: %w", err)
			}
			return calendar.FormatEvents(events), nil
		},
	})
}
