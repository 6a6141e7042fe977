// Package schedule defines persisted schedule definitions and evaluates
// when they are due.
package schedule

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
	KindOnce     Kind = "once"
	KindSunset   Kind = "sunset"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCron, KindInterval, KindOnce, KindSunset:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown schedule kind %q", s)
}

// Definition is a persisted schedule row. Name is the unique key;
// upsert-by-name is the only mutation path.
type Definition struct {
	Name     string
	Enabled  bool
	Kind     Kind
	Timezone string
	// Spec is kind-dependent: a 5-field cron expression, an interval
	// ("90s", "5m", or bare seconds), an RFC3339 instant, or a sunset
	// offset (bare minutes or {"offset_minutes": N}).
	Spec      string
	Topic     string
	EventType string
	Data      map[string]any
	UpdatedAt time.Time
}
