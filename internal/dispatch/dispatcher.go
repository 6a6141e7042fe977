// Package dispatch runs the scheduler loop: every tick it reloads
// definitions when the store changed, evaluates which are due, publishes
// one event per due schedule, and persists the fire record.
package dispatch

import (
	"context"
	"time"

	"homehub/internal/bus"
	"homehub/internal/schedule"
	"homehub/pkg/logx"
)

// Store is the slice of the persistence API the dispatcher needs.
type Store interface {
	ListEnabled(ctx context.Context) ([]schedule.Definition, error)
	LastModified(ctx context.Context) (time.Time, error)
	FireRecords(ctx context.Context) (map[string]time.Time, error)
	RecordFire(ctx context.Context, name string, at time.Time) error
}

type Publisher interface {
	Publish(subject string, ev bus.Event) error
}

type Config struct {
	Tick time.Duration
	// Source names this dispatcher in published envelopes.
	Source string
}

type Dispatcher struct {
	cfg   Config
	store Store
	pub   Publisher
	sun   schedule.SunResolver
	log   logx.Logger
	clock func() time.Time

	// Loaded programs plus the store marker they were compiled from.
	// Only touched by the tick loop; ticks never overlap.
	programs []*schedule.Program
	marker   time.Time
	loaded   bool
}

func New(cfg Config, store Store, pub Publisher, sun schedule.SunResolver, log logx.Logger) *Dispatcher {
	if cfg.Tick <= 0 {
		cfg.Tick = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:   cfg,
		store: store,
		pub:   pub,
		sun:   sun,
		log:   log,
		clock: time.Now,
	}
}

// Run ticks until ctx is cancelled. Ticks are sequential: a slow tick
// delays the next one instead of overlapping it, and cancellation waits
// for the in-flight tick to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("dispatcher started", logx.Duration("tick", d.cfg.Tick))
	d.tick(ctx)

	t := time.NewTicker(d.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return
		case <-t.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	now := d.clock()

	if err := d.reloadIfChanged(ctx); err != nil {
		d.log.Error("schedule reload failed", logx.Err(err))
		if !d.loaded {
			return
		}
		// Keep dispatching the last good set.
	}
	if len(d.programs) == 0 {
		return
	}

	records, err := d.store.FireRecords(ctx)
	if err != nil {
		// Without history the catch-up logic would re-fire everything.
		d.log.Error("fire records unavailable, skipping tick", logx.Err(err))
		return
	}

	for _, p := range d.programs {
		d.evaluate(ctx, p, records, now)
	}
}

// reloadIfChanged recompiles programs when the store's modification
// marker moved. Definitions that fail to compile are logged and skipped;
// one broken row must not stall the rest.
func (d *Dispatcher) reloadIfChanged(ctx context.Context) error {
	marker, err := d.store.LastModified(ctx)
	if err != nil {
		return err
	}
	if d.loaded && marker.Equal(d.marker) {
		return nil
	}

	defs, err := d.store.ListEnabled(ctx)
	if err != nil {
		return err
	}
	programs := make([]*schedule.Program, 0, len(defs))
	for _, def := range defs {
		p, err := schedule.Compile(def, d.sun)
		if err != nil {
			d.log.Warn("schedule skipped", logx.String("schedule", def.Name), logx.Err(err))
			continue
		}
		programs = append(programs, p)
	}

	d.programs = programs
	d.marker = marker
	d.loaded = true
	d.log.Info("schedules loaded",
		logx.Int("enabled", len(defs)),
		logx.Int("compiled", len(programs)),
	)
	return nil
}

func (d *Dispatcher) evaluate(ctx context.Context, p *schedule.Program, records map[string]time.Time, now time.Time) {
	def := p.Definition()
	last := records[def.Name]

	// Interval schedules measure their period from the last fire. With no
	// history there is nothing to measure from, so persist an anchor
	// without publishing; the first real fire lands one period later.
	if last.IsZero() && p.NeedsAnchor() {
		if err := d.store.RecordFire(ctx, def.Name, now); err != nil {
			d.log.Error("anchor write failed", logx.String("schedule", def.Name), logx.Err(err))
			return
		}
		d.log.Debug("interval anchored", logx.String("schedule", def.Name))
		return
	}
	if p.Spent(last) {
		return
	}

	due, ok, err := p.Due(ctx, last, now)
	if err != nil {
		// Transient (sunset resolver down); retried next tick.
		d.log.Warn("evaluation failed", logx.String("schedule", def.Name), logx.Err(err))
		return
	}
	if !ok {
		return
	}

	// Publish before recording: a crash between the two replays the fire
	// once, which downstream consumers tolerate better than a lost one.
	if err := d.publish(def, due); err != nil {
		d.log.Error("publish failed",
			logx.String("schedule", def.Name),
			logx.String("topic", def.Topic),
			logx.Err(err),
		)
		return
	}
	if err := d.store.RecordFire(ctx, def.Name, due); err != nil {
		d.log.Error("fire record write failed", logx.String("schedule", def.Name), logx.Err(err))
		return
	}
	d.log.Info("schedule fired",
		logx.String("schedule", def.Name),
		logx.String("type", def.EventType),
		logx.Time("due", due),
	)
}

func (d *Dispatcher) publish(def schedule.Definition, due time.Time) error {
	// Schedule metadata rides along without clobbering user data keys.
	data := make(map[string]any, len(def.Data)+2)
	for k, v := range def.Data {
		data[k] = v
	}
	if _, ok := data["schedule_name"]; !ok {
		data["schedule_name"] = def.Name
	}
	if _, ok := data["fired_at"]; !ok {
		data["fired_at"] = due.UTC().Format(time.RFC3339)
	}

	ev := bus.NewEvent(d.cfg.Source, def.EventType, data)
	return d.pub.Publish(def.Topic, ev)
}
