// Package recorder archives every bus envelope into the events history
// table and prunes rows past the retention window.
package recorder

import (
	"context"
	"encoding/json"
	"time"

	"homehub/internal/bus"
	"homehub/internal/storage"
	"homehub/pkg/logx"
)

// Store is the slice of the persistence API the recorder needs.
type Store interface {
	AppendEvent(ctx context.Context, e storage.EventRecord) error
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	Retention time.Duration
	// PruneEvery is how often the retention sweep runs.
	PruneEvery time.Duration
}

type Recorder struct {
	cfg   Config
	store Store
	log   logx.Logger
	clock func() time.Time
}

func New(cfg Config, store Store, log logx.Logger) *Recorder {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{cfg: cfg, store: store, log: log, clock: time.Now}
}

// HandleEvent persists one envelope. Insert failures are logged and
// dropped; history is best-effort and must never back-pressure the bus.
func (r *Recorder) HandleEvent(ctx context.Context, subject string, ev bus.Event) {
	rec := storage.EventRecord{
		ID:      ev.ID,
		TS:      parseTS(ev.TS, r.clock),
		Subject: subject,
		Source:  ev.Source,
		Type:    ev.Type,
		TraceID: ev.TraceID,
	}
	if b, err := json.Marshal(ev.Data); err == nil {
		rec.DataJSON = string(b)
	}
	if err := r.store.AppendEvent(ctx, rec); err != nil {
		r.log.Warn("event not recorded",
			logx.String("subject", subject),
			logx.String("id", ev.ID),
			logx.Err(err),
		)
	}
}

// RunPruner sweeps expired history until ctx is cancelled. One sweep
// runs immediately so a long-stopped daemon catches up on restart.
func (r *Recorder) RunPruner(ctx context.Context) {
	r.prune(ctx)
	t := time.NewTicker(r.cfg.PruneEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	cutoff := r.clock().Add(-r.cfg.Retention)
	n, err := r.store.PruneEvents(ctx, cutoff)
	if err != nil {
		r.log.Warn("history prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		r.log.Info("history pruned",
			logx.Int64("removed", n),
			logx.Time("cutoff", cutoff),
		)
	}
}

// parseTS turns an envelope timestamp into a concrete instant. Anything
// unparseable falls back to arrival time rather than being dropped.
func parseTS(s string, clock func() time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return clock()
}
