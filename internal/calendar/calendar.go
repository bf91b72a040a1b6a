// Package calendar provides read access to the user's calendar over
// CalDAV. The agent only ever reads events; writes and the OAuth
// browser flow some providers require are handled outside this
// process.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/valet-agent/valet/internal/config"
	"github.com/valet-agent/valet/internal/httpkit"
)

// Event is a single calendar entry in the queried window.
type Event struct {
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Source lists events in a time window. The CalDAV client implements
// it; tests substitute fakes.
type Source interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
}

// CalDAV reads events from a single CalDAV calendar collection.
type CalDAV struct {
	client *caldav.Client
	path   string
	logger *slog.Logger
}

// NewCalDAV creates a client for the calendar collection named in cfg.
// Credentials use HTTP basic auth.
func NewCalDAV(cfg config.CalendarConfig, logger *slog.Logger) (*CalDAV, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("calendar URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse calendar URL: %w", err)
	}
	endpoint := u.Scheme + "://" + u.Host

	httpClient := webdav.HTTPClientWithBasicAuth(
		httpkit.NewClient(httpkit.WithTimeout(30*time.Second)),
		cfg.Username, cfg.Password,
	)

	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}

	return &CalDAV{
		client: client,
		path:   u.Path,
		logger: logger.With("component", "calendar"),
	}, nil
}

// ListEvents returns events overlapping [from, to), sorted by start time.
func (c *CalDAV) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from,
				End:   to,
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.path, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	c.logger.Debug("calendar queried",
		"path", c.path,
		"from", from,
		"to", to,
		"objects", len(objects),
	)

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events = append(events, decodeEvents(obj.Data, from, to)...)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// decodeEvents extracts the VEVENTs from one iCalendar object that
// overlap [from, to). Malformed components are skipped rather than
// failing the whole window.
func decodeEvents(cal *ical.Calendar, from, to time.Time) []Event {
	var out []Event
	for _, raw := range cal.Events() {
		start, err := raw.DateTimeStart(time.Local)
		if err != nil {
			continue
		}
		end, err := raw.DateTimeEnd(time.Local)
		if err != nil {
			end = start
		}
		if !overlaps(start, end, from, to) {
			continue
		}

		ev := Event{Start: start, End: end}
		if summary, err := raw.Props.Text(ical.PropSummary); err == nil {
			ev.Summary = summary
		}
		if location, err := raw.Props.Text(ical.PropLocation); err == nil {
			ev.Location = location
		}
		out = append(out, ev)
	}
	return out
}

// overlaps reports whether [start, end) intersects [from, to). A
// zero-length event counts when its instant falls inside the window.
func overlaps(start, end, from, to time.Time) bool {
	if !end.After(start) {
		return !start.Before(from) && start.Before(to)
	}
	return start.Before(to) && end.After(from)
}

// FormatEvents renders events as a plain-text block for prompts and
// tool results.
func FormatEvents(events []Event) string {
	if len(events) == 0 {
		return "No events in this window."
	}
	out := ""
	for _, ev := range events {
		line := fmt.Sprintf("- %s  %s", ev.Start.Format("Mon 15:04"), ev.Summary)
		if ev.Location != "" {
			line += " (" + ev.Location + ")"
		}
		out += line + "\n"
	}
	return out
}
