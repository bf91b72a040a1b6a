package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:ev-1
DTSTAMP:20260830T120000Z
DTSTART:20260901T090000Z
DTEND:20260901T100000Z
SUMMARY:Dentist
LOCATION:Main St clinic
END:VEVENT
BEGIN:VEVENT
UID:ev-2
DTSTAMP:20260830T120000Z
DTSTART:20260905T090000Z
DTEND:20260905T100000Z
SUMMARY:Far future
END:VEVENT
END:VCALENDAR
`

func parseICS(t *testing.T) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(sampleICS)).Decode()
	if err != nil {
		t.Fatalf("decode ics: %v", err)
	}
	return cal
}

func TestDecodeEvents_WindowFilter(t *testing.T) {
	cal := parseICS(t)

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	events := decodeEvents(cal, from, to)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Summary != "Dentist" {
		t.Errorf("summary = %q", ev.Summary)
	}
	if ev.Location != "Main St clinic" {
		t.Errorf("location = %q", ev.Location)
	}
	if !ev.End.After(ev.Start) {
		t.Errorf("times = %v..%v", ev.Start, ev.End)
	}
}

func TestDecodeEvents_WideWindow(t *testing.T) {
	cal := parseICS(t)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	events := decodeEvents(cal, from, from.AddDate(0, 0, 14))
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestOverlaps(t *testing.T) {
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"inside", from.Add(9 * time.Hour), from.Add(10 * time.Hour), true},
		{"spans window", from.Add(-time.Hour), to.Add(time.Hour), true},
		{"before", from.Add(-2 * time.Hour), from.Add(-time.Hour), false},
		{"after", to.Add(time.Hour), to.Add(2 * time.Hour), false},
		{"touches start edge", from.Add(-time.Hour), from, false},
		{"zero length inside", from.Add(time.Hour), from.Add(time.Hour), true},
		{"zero length outside", to, to, false},
	}
	for _, tt := range tests {
		if got := overlaps(tt.start, tt.end, from, to); got != tt.want {
			t.Errorf("%s: overlaps = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFormatEvents(t *testing.T) {
	if got := FormatEvents(nil); got != "No events in this window." {
		t.Errorf("empty format = %q", got)
	}

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	events := []Event{
		{Summary: "Standup", Start: start, End: start.Add(30 * time.Minute)},
		{Summary: "Lunch", Location: "Cafe", Start: start.Add(3 * time.Hour), End: start.Add(4 * time.Hour)},
	}
	got := FormatEvents(events)
	if !strings.Contains(got, "Standup") || !strings.Contains(got, "Lunch") {
		t.Errorf("format = %q", got)
	}
	if !strings.Contains(got, "(Cafe)") {
		t.Errorf("location missing: %q", got)
	}
}
