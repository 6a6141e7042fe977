package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Timezone != "America/New_York" {
		t.Fatalf("timezone default = %q", cfg.Timezone)
	}
	if cfg.Bus.URL != "nats://127.0.0.1:4222" || cfg.Bus.BaseSubject != "hub" {
		t.Fatalf("bus defaults = %+v", cfg.Bus)
	}
	if cfg.Dispatcher.Tick != "15s" || cfg.Dispatcher.Source != "time-trigger" {
		t.Fatalf("dispatcher defaults = %+v", cfg.Dispatcher)
	}
	if cfg.QuietHours.WeekdayEnd != "05:50" || cfg.QuietHours.WeekendEnd != "06:50" {
		t.Fatalf("quiet defaults = %+v", cfg.QuietHours)
	}
	if cfg.Lighting.HoldSeconds != 180 {
		t.Fatalf("hold default = %d", cfg.Lighting.HoldSeconds)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"timzone": "UTC"}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("typo field must be rejected")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{} {}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("trailing tokens must be rejected")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", strings.Join([]string{
		"timezone: UTC",
		"dispatcher:",
		"  enabled: true",
		"  tick: 30s",
		"lighting:",
		"  enabled: true",
		"  camera: driveway",
		"  device_id: porch",
	}, "\n"))

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != "UTC" || cfg.Dispatcher.Tick != "30s" {
		t.Fatalf("yaml values lost: %+v", cfg)
	}
	if !cfg.Lighting.Enabled || cfg.Lighting.Camera != "driveway" {
		t.Fatalf("lighting = %+v", cfg.Lighting)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", `{"timezone": "Mars/Olympus"}`},
		{"bad tick", `{"dispatcher": {"tick": "soon"}}`},
		{"bad quiet time", `{"quiet_hours": {"enabled": true, "weekday_start": "25:00"}}`},
		{"lighting missing camera", `{"lighting": {"enabled": true, "device_id": "porch"}}`},
		{"lighting missing device", `{"lighting": {"enabled": true, "camera": "driveway"}}`},
		{"only_dark needs location", `{"lighting": {"enabled": true, "camera": "c", "device_id": "d", "only_dark": true}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.json", tt.body)
			if _, err := NewManager(path).Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSubscribePublishDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Timezone: "UTC"}
	second := &Config{Timezone: "America/New_York"}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Timezone != "America/New_York" {
		t.Fatalf("subscriber got %q, want the newest config", got.Timezone)
	}
}
