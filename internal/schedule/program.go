package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// catchUpWindow bounds how far back a cron evaluation reaches when there
// is no usable fire history (first run, or downtime longer than a day).
// A daily schedule missed during an outage still fires once; anything
// older is discarded.
const catchUpWindow = 25 * time.Hour

// maxCronScan caps the Next() iteration per evaluation. A minute-step
// schedule over the catch-up window stays under this.
const maxCronScan = 2000

// SunResolver supplies the local sunset instant for the day containing
// the given time. Implementations may fail (external data source); the
// schedule then simply is not due and is retried next evaluation.
type SunResolver interface {
	Sunset(ctx context.Context, day time.Time) (time.Time, error)
}

// Program is a compiled Definition, ready for due-instant evaluation.
type Program struct {
	def Definition
	loc *time.Location

	cronSched cron.Schedule // cron
	every     time.Duration // interval
	at        time.Time     // once
	offset    time.Duration // sunset
	sun       SunResolver   // sunset
}

// Compile validates the definition and resolves its timezone and spec.
// A nil SunResolver is only an error for sunset definitions.
func Compile(def Definition, sun SunResolver) (*Program, error) {
	if _, err := ParseKind(string(def.Kind)); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(def.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: timezone: %w", def.Name, err)
	}

	p := &Program{def: def, loc: loc}
	switch def.Kind {
	case KindCron:
		p.cronSched, err = parseCronSpec(def.Spec)
	case KindInterval:
		p.every, err = parseIntervalSpec(def.Spec)
	case KindOnce:
		p.at, err = parseOnceSpec(def.Spec)
	case KindSunset:
		p.offset, err = parseSunsetSpec(def.Spec)
		if err == nil && sun == nil {
			err = fmt.Errorf("sunset schedule %q needs a sun resolver", def.Name)
		}
		p.sun = sun
	}
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", def.Name, err)
	}
	return p, nil
}

func (p *Program) Definition() Definition { return p.def }

// NeedsAnchor reports whether the schedule needs an initial fire record
// before it can ever become due. Only interval schedules qualify: their
// period is measured from the last fire, so a definition with no history
// gets an anchor record (without publishing) at first evaluation.
func (p *Program) NeedsAnchor() bool { return p.def.Kind == KindInterval }

// Spent reports whether a once schedule has already fired and can never
// be due again. Other kinds are never spent.
func (p *Program) Spent(lastFire time.Time) bool {
	if p.def.Kind != KindOnce {
		return false
	}
	return !lastFire.IsZero() && !lastFire.Before(p.at)
}

// Due returns the most recent due instant in (after, now]. A zero
// `after` means no fire has ever been recorded; the evaluation then
// reaches back through the catch-up window so a fire missed during
// downtime is not silently skipped. Only the single most recent missed
// occurrence is ever returned.
func (p *Program) Due(ctx context.Context, after, now time.Time) (time.Time, bool, error) {
	now = now.In(p.loc)
	if !after.IsZero() {
		after = after.In(p.loc)
	}

	switch p.def.Kind {
	case KindCron:
		return p.cronDue(after, now)
	case KindInterval:
		return p.intervalDue(after, now)
	case KindOnce:
		return p.onceDue(after, now)
	case KindSunset:
		return p.sunsetDue(ctx, after, now)
	}
	return time.Time{}, false, fmt.Errorf("unknown kind %q", p.def.Kind)
}

func (p *Program) cronDue(after, now time.Time) (time.Time, bool, error) {
	start := after
	if floor := now.Add(-catchUpWindow); start.IsZero() || start.Before(floor) {
		start = floor
	}

	var due time.Time
	t := p.cronSched.Next(start)
	for i := 0; i < maxCronScan && !t.IsZero() && !t.After(now); i++ {
		due = t
		t = p.cronSched.Next(t)
	}
	return due, !due.IsZero(), nil
}

func (p *Program) intervalDue(after, now time.Time) (time.Time, bool, error) {
	// No history: not due. The dispatcher persists a phase anchor for
	// interval schedules it has never fired (see NeedsAnchor), so the
	// period is measured from a stable instant, not from process start.
	if after.IsZero() {
		return time.Time{}, false, nil
	}
	if after.Add(p.every).After(now) {
		return time.Time{}, false, nil
	}
	// Skip to the most recent elapsed period; earlier misses are dropped.
	n := now.Sub(after) / p.every
	return after.Add(n * p.every), true, nil
}

func (p *Program) onceDue(after, now time.Time) (time.Time, bool, error) {
	if p.Spent(after) {
		return time.Time{}, false, nil
	}
	if p.at.After(now) {
		return time.Time{}, false, nil
	}
	return p.at.In(p.loc), true, nil
}

func (p *Program) sunsetDue(ctx context.Context, after, now time.Time) (time.Time, bool, error) {
	sunset, err := p.sun.Sunset(ctx, now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("schedule %q: resolve sunset: %w", p.def.Name, err)
	}
	due := sunset.Add(p.offset)
	if due.After(now) {
		return time.Time{}, false, nil
	}
	if !after.IsZero() && !due.After(after) {
		return time.Time{}, false, nil
	}
	return due.In(p.loc), true, nil
}
