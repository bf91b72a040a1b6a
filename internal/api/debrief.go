package api

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/valet-agent/valet/internal/calendar"
	"github.com/valet-agent/valet/internal/prompts"
	"github.com/valet-agent/valet/internal/tasks"
)

// DebriefInput gathers open tasks and today's calendar and renders the
// briefing prompt. Shared between the HTTP handler and the CLI. A
// calendar fetch failure degrades to a note rather than failing the
// briefing; a task store failure is fatal since the task list is the
// core of the debrief.
func DebriefInput(ctx context.Context, ts *tasks.Store, src calendar.Source, logger *slog.Logger) (string, error) {
	now := time.Now()

	taskBlock := "No task list configured."
	if ts != nil {
		open, err := ts.List(ctx, true)
		if err != nil {
			return "", fmt.Errorf("list tasks: %w", err)
		}
		taskBlock = formatTaskBlock(open, now)
	}

	calendarBlock := "No calendar configured."
	if src != nil {
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		events, err := src.ListEvents(ctx, from, from.AddDate(0, 0, 1))
		if err != nil {
			logger.Warn("debrief calendar fetch failed", "error", err)
			calendarBlock = "Calendar unavailable."
		} else {
			calendarBlock = calendar.FormatEvents(events)
		}
	}

	return prompts.Debrief(taskBlock, calendarBlock), nil
}

// handleDebrief runs a daily-briefing turn: open tasks and today's
// calendar are gathered server-side and handed to the model, which
// writes the briefing. ?format=html renders the markdown response.
func (s *Server) handleDebrief(w http.ResponseWriter, r *http.Request) {
	input, err := DebriefInput(r.Context(), s.tasks, s.calendar, s.logger)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := s.loop.ProcessMessage(r.Context(), input, "")
	if err != nil {
		s.chatError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(resp.Content), &buf); err != nil {
			s.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("render html: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Daily Debrief</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5; max-width: 42em; margin: 2em auto;">
%s
</body></html>`, buf.String())
		return
	}

	s.writeJSON(w, map[string]any{
		"conversation_id": resp.Conversation.ID,
		"debrief":         resp.Content,
		"input_tokens":    resp.InputTokens,
		"output_tokens":   resp.OutputTokens,
	})
}

// formatTaskBlock renders open tasks as plain text for the debrief
// prompt, flagging anything past due.
func formatTaskBlock(open []*tasks.Task, now time.Time) string {
	if len(open) == 0 {
		return "No open tasks."
	}
	var sb strings.Builder
	for _, t := range open {
		sb.WriteString("- " + t.Title)
		if t.Due != nil {
			sb.WriteString(" (due " + t.Due.Format("Mon Jan 2 15:04") + ")")
			if t.Overdue(now) {
				sb.WriteString(" OVERDUE")
			}
		}
		if t.Notes != "" {
			sb.WriteString(": " + t.Notes)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
