package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full daemon configuration.
//
// Files may be JSON or YAML; both are decoded strictly (unknown fields are
// rejected) so typos surface at startup instead of silently disabling things.
type Config struct {
	Timezone string `json:"timezone"`

	Log        LogConfig        `json:"log"`
	Bus        BusConfig        `json:"bus"`
	Storage    StorageConfig    `json:"storage"`
	Location   LocationConfig   `json:"location"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	QuietHours QuietHoursConfig `json:"quiet_hours"`
	Lighting   LightingConfig   `json:"lighting"`
	Announce   AnnounceConfig   `json:"announce"`
	Recorder   RecorderConfig   `json:"recorder"`
	Seed       SeedConfig       `json:"seed"`
	Sun        SunConfig        `json:"sun"`
}

type LogConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
	Bus     LogBusConfig  `json:"bus"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LogBusConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type BusConfig struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	// BaseSubject prefixes every published subject, e.g. "hub" ->
	// "hub.time.cron.wakeup_call".
	BaseSubject string `json:"base_subject"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type LocationConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type DispatcherConfig struct {
	Enabled bool   `json:"enabled"`
	Tick    string `json:"tick"`
	// Source identifies this daemon in published envelopes.
	Source string `json:"source"`
}

type QuietHoursConfig struct {
	Enabled      bool   `json:"enabled"`
	WeekdayStart string `json:"weekday_start"`
	WeekdayEnd   string `json:"weekday_end"`
	WeekendStart string `json:"weekend_start"`
	WeekendEnd   string `json:"weekend_end"`
}

type LightingConfig struct {
	Enabled bool `json:"enabled"`
	// Camera restricts triggers to one camera name as reported in
	// camera.event payloads.
	Camera string `json:"camera"`
	// DetectedObjects is a comma/semicolon-delimited token list, e.g.
	// "vehicle,person". Empty matches every detection.
	DetectedObjects          string `json:"detected_objects"`
	DeviceID                 string `json:"device_id"`
	HoldSeconds              int    `json:"hold_seconds"`
	RetriggerSuppressSeconds int    `json:"retrigger_suppress_seconds"`
	OnlyDark                 bool   `json:"only_dark"`
}

type AnnounceConfig struct {
	Enabled bool `json:"enabled"`
}

type RecorderConfig struct {
	Enabled       bool `json:"enabled"`
	RetentionDays int  `json:"retention_days"`
}

type SeedConfig struct {
	Enabled bool `json:"enabled"`
}

type SunConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout"`
}

// Normalize fills defaults for optional fields. Called after decode,
// before Validate.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "America/New_York"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if strings.TrimSpace(c.Bus.URL) == "" {
		c.Bus.URL = "nats://127.0.0.1:4222"
	}
	if strings.TrimSpace(c.Bus.Name) == "" {
		c.Bus.Name = "hubd"
	}
	if strings.TrimSpace(c.Bus.BaseSubject) == "" {
		c.Bus.BaseSubject = "hub"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./data/hub.db"
	}
	if strings.TrimSpace(c.Dispatcher.Tick) == "" {
		c.Dispatcher.Tick = "15s"
	}
	if strings.TrimSpace(c.Dispatcher.Source) == "" {
		c.Dispatcher.Source = "time-trigger"
	}
	if strings.TrimSpace(c.QuietHours.WeekdayStart) == "" {
		c.QuietHours.WeekdayStart = "21:00"
	}
	if strings.TrimSpace(c.QuietHours.WeekdayEnd) == "" {
		c.QuietHours.WeekdayEnd = "05:50"
	}
	if strings.TrimSpace(c.QuietHours.WeekendStart) == "" {
		c.QuietHours.WeekendStart = "21:00"
	}
	if strings.TrimSpace(c.QuietHours.WeekendEnd) == "" {
		c.QuietHours.WeekendEnd = "06:50"
	}
	if c.Lighting.HoldSeconds <= 0 {
		c.Lighting.HoldSeconds = 180
	}
	if c.Lighting.RetriggerSuppressSeconds < 0 {
		c.Lighting.RetriggerSuppressSeconds = 0
	}
	if c.Recorder.RetentionDays <= 0 {
		c.Recorder.RetentionDays = 30
	}
	if strings.TrimSpace(c.Sun.BaseURL) == "" {
		c.Sun.BaseURL = "https://api.open-meteo.com"
	}
	if strings.TrimSpace(c.Sun.Timeout) == "" {
		c.Sun.Timeout = "10s"
	}
}

// Validate rejects configs that would make a component misbehave at
// runtime. It does not reach out to the network or filesystem.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if _, err := ParseDurationField("dispatcher.tick", c.Dispatcher.Tick); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("sun.timeout", c.Sun.Timeout); err != nil {
		return err
	}
	if c.QuietHours.Enabled {
		for _, f := range []struct{ name, v string }{
			{"quiet_hours.weekday_start", c.QuietHours.WeekdayStart},
			{"quiet_hours.weekday_end", c.QuietHours.WeekdayEnd},
			{"quiet_hours.weekend_start", c.QuietHours.WeekendStart},
			{"quiet_hours.weekend_end", c.QuietHours.WeekendEnd},
		} {
			if err := validateHHMM(f.name, f.v); err != nil {
				return err
			}
		}
	}
	if c.Lighting.Enabled {
		if strings.TrimSpace(c.Lighting.Camera) == "" {
			return errors.New("lighting.camera is required when lighting is enabled")
		}
		if strings.TrimSpace(c.Lighting.DeviceID) == "" {
			return errors.New("lighting.device_id is required when lighting is enabled")
		}
		if c.Lighting.OnlyDark && c.Location.Latitude == 0 && c.Location.Longitude == 0 {
			return errors.New("location is required when lighting.only_dark is set")
		}
	}
	return nil
}

func validateHHMM(path, raw string) error {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return fmt.Errorf("%s: invalid time %q, expected HH:MM", path, raw)
	}
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return fmt.Errorf("%s: invalid time %q: %w", path, raw, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return fmt.Errorf("%s: time %q out of range", path, raw)
	}
	return nil
}
