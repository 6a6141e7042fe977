// Package seed installs the default schedule set. Upsert-by-name makes
// it safe to run on every startup.
package seed

import (
	"context"

	"homehub/internal/bus"
	"homehub/internal/schedule"
	"homehub/pkg/logx"
)

// Store is the slice of the persistence API seeding needs.
type Store interface {
	UpsertSchedule(ctx context.Context, def schedule.Definition) error
}

// Defaults is the opinionated starter set:
//   - wakeup call 06:00 Mon-Fri, 07:00 Sat-Sun
//   - morning briefing 07:00 Mon-Fri, 08:00 Sat-Sun
//   - hourly chime, hour ranges clear of the default quiet windows
//   - porch light on at sunset minus 15 minutes
func Defaults(timezone, baseSubject string) []schedule.Definition {
	wakeTopic := bus.Subject(baseSubject, "time.cron.wakeup_call")
	briefTopic := bus.Subject(baseSubject, "time.cron.morning_briefing")
	chimeTopic := bus.Subject(baseSubject, "time.cron.hourly_chime")
	porchTopic := bus.Subject(baseSubject, "time.sunset.porch_light")

	return []schedule.Definition{
		{
			Name: "wakeup_weekday_0600", Enabled: true,
			Kind: schedule.KindCron, Timezone: timezone, Spec: "0 6 * * mon-fri",
			Topic: wakeTopic, EventType: "time.cron.wakeup_call",
			Data: map[string]any{"variant": "weekday"},
		},
		{
			Name: "wakeup_weekend_0700", Enabled: true,
			Kind: schedule.KindCron, Timezone: timezone, Spec: "0 7 * * sat,sun",
			Topic: wakeTopic, EventType: "time.cron.wakeup_call",
			Data: map[string]any{"variant": "weekend"},
		},
		{
			Name: "morning_briefing_weekday_0700", Enabled: true,
			Kind: schedule.KindCron, Timezone: timezone, Spec: "0 7 * * mon-fri",
			Topic: briefTopic, EventType: "time.cron.morning_briefing",
			Data: map[string]any{"variant": "weekday"},
		},
		{
			Name: "morning_briefing_weekend_0800", Enabled: true,
			Kind: schedule.KindCron, Timezone: timezone, Spec: "0 8 * * sat,sun",
			Topic: briefTopic, EventType: "time.cron.morning_briefing",
			Data: map[string]any{"variant": "weekend"},
		},
		// Chime hour ranges stay inside audible hours: quiet ends 05:50
		// weekdays and 06:50 weekends, and starts again at 21:00.
		{
			Name: "hourly_chime_weekday_8_to_20", Enabled: true,
			Kind: schedule.KindCron, Timezone: timezone, Spec: "0 8-20 * * mon-fri",
			Topic: chimeTopic, EventType: "time.cron.hourly_chime",
			Data: map[string]any{"variant": "weekday"},
		},
		{
			Name: "hourly_chime_weekend_9_to_20", Enabled: true,
			Kind: schedule.KindCron, Timezone: timezone, Spec: "0 9-20 * * sat,sun",
			Topic: chimeTopic, EventType: "time.cron.hourly_chime",
			Data: map[string]any{"variant": "weekend"},
		},
		{
			Name: "porch_light_sunset", Enabled: true,
			Kind: schedule.KindSunset, Timezone: timezone, Spec: "-15",
			Topic: porchTopic, EventType: "time.sunset.porch_light",
			Data: map[string]any{"device_id": "porch"},
		},
	}
}

// Apply upserts every definition. A single failed row aborts: a partial
// seed would be harder to reason about than a clean retry on restart.
func Apply(ctx context.Context, store Store, defs []schedule.Definition, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	for _, def := range defs {
		if err := store.UpsertSchedule(ctx, def); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	log.Info("schedules seeded", logx.Int("count", len(defs)), logx.Any("names", names))
	return nil
}
