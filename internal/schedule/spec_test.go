package schedule

import (
	"testing"
	"time"
)

func TestParseIntervalSpecVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"60", 60 * time.Second},
		{"90s", 90 * time.Second},
		{"5m", 5 * time.Minute},
		{"1h", time.Hour},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseIntervalSpec(tt.raw)
			if err != nil {
				t.Fatalf("parseIntervalSpec(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("parseIntervalSpec(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseIntervalSpecInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "0", "-5", "abc", "5x"} {
		if _, err := parseIntervalSpec(raw); err == nil {
			t.Fatalf("expected error for interval %q", raw)
		}
	}
}

func TestParseOnceSpec(t *testing.T) {
	t.Parallel()
	got, err := parseOnceSpec("2025-06-01T09:30:00-04:00")
	if err != nil {
		t.Fatalf("parseOnceSpec error: %v", err)
	}
	if got.UTC().Hour() != 13 || got.UTC().Minute() != 30 {
		t.Fatalf("unexpected instant: %v", got)
	}

	// A naive timestamp has no offset and must be rejected.
	if _, err := parseOnceSpec("2025-06-01 09:30:00"); err == nil {
		t.Fatal("expected error for naive timestamp")
	}
}

func TestParseSunsetSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"-15", -15 * time.Minute},
		{"30", 30 * time.Minute},
		{`{"offset_minutes": -15}`, -15 * time.Minute},
		{`{"offset_minutes": 0}`, 0},
	}
	for _, tt := range tests {
		got, err := parseSunsetSpec(tt.raw)
		if err != nil {
			t.Fatalf("parseSunsetSpec(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("parseSunsetSpec(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	if _, err := parseSunsetSpec(`{"offset": 1}`); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseCronSpecFieldCount(t *testing.T) {
	t.Parallel()
	if _, err := parseCronSpec("0 7 * *"); err == nil {
		t.Fatal("expected error for 4-field spec")
	}
	if _, err := parseCronSpec("0 0 7 * * mon"); err == nil {
		t.Fatal("expected error for 6-field spec")
	}
	if _, err := parseCronSpec("0 7 * * mon-fri"); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
}
