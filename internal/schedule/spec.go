package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the classic 5-field form: minute hour dom month dow,
// with lists, ranges, wildcards and day/month name abbreviations.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseCronSpec(spec string) (cron.Schedule, error) {
	s := strings.TrimSpace(spec)
	if len(strings.Fields(s)) != 5 {
		return nil, fmt.Errorf("cron spec %q must have 5 fields: 'min hour day month dow'", spec)
	}
	sched, err := cronParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return sched, nil
}

// parseIntervalSpec accepts bare seconds ("60") or a duration string
// ("90s", "5m", "1h").
func parseIntervalSpec(spec string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(spec))
	if s == "" {
		return 0, errors.New("empty interval spec")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("interval %q must be positive", spec)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("interval %q: %w", spec, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval %q must be positive", spec)
	}
	return d, nil
}

// parseOnceSpec requires an RFC3339 instant; the offset makes the intent
// unambiguous across hosts in different zones.
func parseOnceSpec(spec string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(spec))
	if err != nil {
		return time.Time{}, fmt.Errorf("once spec %q: %w", spec, err)
	}
	return t, nil
}

// parseSunsetSpec accepts bare minutes ("-15") or {"offset_minutes": -15}.
func parseSunsetSpec(spec string) (time.Duration, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return 0, errors.New("empty sunset spec")
	}
	if strings.HasPrefix(s, "{") {
		var v struct {
			OffsetMinutes int `json:"offset_minutes"`
		}
		dec := json.NewDecoder(strings.NewReader(s))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			return 0, fmt.Errorf("sunset spec %q: %w", spec, err)
		}
		return time.Duration(v.OffsetMinutes) * time.Minute, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("sunset spec %q: %w", spec, err)
	}
	return time.Duration(n) * time.Minute, nil
}
