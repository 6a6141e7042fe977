// Package sun resolves daily sunrise/sunset instants from an external
// astronomical data source and answers the "is it dark" question for the
// lighting automation.
package sun

import (
	"context"
	"sync"
	"time"

	"homehub/pkg/logx"
)

// Times are the resolved sun events for one calendar day, in local time.
type Times struct {
	Sunrise time.Time
	Sunset  time.Time
}

// Source fetches sun times for the day containing the given time.
// Implementations must bound their own I/O (timeouts); a failure is
// non-fatal for callers.
type Source interface {
	SunTimes(ctx context.Context, day time.Time) (Times, error)
}

// Resolver caches one resolved Times per local calendar day so a source
// failure or a flood of lookups never turns into redundant external
// calls. The cache invalidates itself at local midnight because the day
// key changes.
type Resolver struct {
	src Source
	loc *time.Location
	log logx.Logger

	mu    sync.Mutex
	day   string
	times Times
}

func NewResolver(src Source, loc *time.Location, log logx.Logger) *Resolver {
	return &Resolver{src: src, loc: loc, log: log}
}

func (r *Resolver) lookup(ctx context.Context, day time.Time) (Times, error) {
	key := day.In(r.loc).Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.day == key {
		return r.times, nil
	}

	ts, err := r.src.SunTimes(ctx, day.In(r.loc))
	if err != nil {
		return Times{}, err
	}
	r.day = key
	r.times = ts
	r.log.Debug("sun times resolved",
		logx.String("day", key),
		logx.Time("sunrise", ts.Sunrise),
		logx.Time("sunset", ts.Sunset),
	)
	return ts, nil
}

// Sunset returns the local sunset instant for the day containing `day`.
func (r *Resolver) Sunset(ctx context.Context, day time.Time) (time.Time, error) {
	ts, err := r.lookup(ctx, day)
	if err != nil {
		return time.Time{}, err
	}
	return ts.Sunset, nil
}

// Sunrise returns the local sunrise instant for the day containing `day`.
func (r *Resolver) Sunrise(ctx context.Context, day time.Time) (time.Time, error) {
	ts, err := r.lookup(ctx, day)
	if err != nil {
		return time.Time{}, err
	}
	return ts.Sunrise, nil
}

// IsDark reports whether now is before sunrise or after sunset.
// Fail-safe: when sun times cannot be resolved, it reports false so
// nothing turns on against an unknown sky.
func (r *Resolver) IsDark(ctx context.Context, now time.Time) bool {
	ts, err := r.lookup(ctx, now)
	if err != nil {
		r.log.Warn("sun times unavailable; assuming not dark", logx.Err(err))
		return false
	}
	local := now.In(r.loc)
	return local.Before(ts.Sunrise) || local.After(ts.Sunset)
}
