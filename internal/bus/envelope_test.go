package bus

import (
	"strings"
	"testing"
	"time"
)

func TestNewEventShape(t *testing.T) {
	t.Parallel()
	ev := NewEvent("time-trigger", "time.cron.wakeup_call", map[string]any{"variant": "weekday"})

	if err := ev.Validate(); err != nil {
		t.Fatalf("fresh event invalid: %v", err)
	}
	if len(ev.ID) != 32 || strings.Contains(ev.ID, "-") {
		t.Fatalf("id = %q, want 32 chars without dashes", ev.ID)
	}
	if len(ev.TraceID) != 32 || ev.TraceID == ev.ID {
		t.Fatalf("trace_id = %q", ev.TraceID)
	}
	ts, err := time.Parse(time.RFC3339Nano, ev.TS)
	if err != nil {
		t.Fatalf("ts %q not RFC3339: %v", ev.TS, err)
	}
	if ts.Location() != time.UTC {
		t.Fatalf("ts %q not UTC", ev.TS)
	}
}

func TestNewEventNilDataBecomesEmptyObject(t *testing.T) {
	t.Parallel()
	ev := NewEvent("x", "y", nil)
	if ev.Data == nil {
		t.Fatal("data must never be nil")
	}
}

func TestWithTrace(t *testing.T) {
	t.Parallel()
	ev := NewEvent("x", "y", nil)
	got := ev.WithTrace("abc123")
	if got.TraceID != "abc123" {
		t.Fatalf("trace_id = %q", got.TraceID)
	}
	// Blank trace keeps the generated one.
	kept := ev.WithTrace("  ")
	if kept.TraceID != ev.TraceID {
		t.Fatalf("blank trace replaced id: %q", kept.TraceID)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	t.Parallel()
	base := NewEvent("src", "typ", nil)

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing id", func(e *Event) { e.ID = "" }},
		{"missing ts", func(e *Event) { e.TS = " " }},
		{"missing source", func(e *Event) { e.Source = "" }},
		{"missing type", func(e *Event) { e.Type = "" }},
		{"missing trace", func(e *Event) { e.TraceID = "" }},
		{"nil data", func(e *Event) { e.Data = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			tt.mutate(&ev)
			if err := ev.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSubject(t *testing.T) {
	t.Parallel()
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"hub", "time.cron.wakeup_call"}, "hub.time.cron.wakeup_call"},
		{[]string{"hub", "", "camera.event"}, "hub.camera.event"},
		{[]string{" hub. ", ".lutron.command."}, "hub.lutron.command"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Subject(tt.parts...); got != tt.want {
			t.Fatalf("Subject(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}
