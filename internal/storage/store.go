// Package storage persists the hub's control-plane and history data:
// schedule definitions, per-schedule fire records, and the event log.
package storage

import (
	"context"
	"time"

	"homehub/internal/schedule"
	"homehub/pkg/logx"
)

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// EventRecord is one bus envelope captured by the event recorder.
type EventRecord struct {
	ID      string
	TS      time.Time
	Subject string
	Source  string
	Type    string
	TraceID string
	// DataJSON is the envelope's data object, verbatim.
	DataJSON string
}

// Store is the persistence API used by the dispatcher, seeder and
// recorder.
type Store interface {
	// ListEnabled returns enabled schedule definitions ordered by name.
	ListEnabled(ctx context.Context) ([]schedule.Definition, error)
	// UpsertSchedule inserts or fully replaces a definition by name and
	// advances its updated_at marker.
	UpsertSchedule(ctx context.Context, def schedule.Definition) error
	// LastModified returns the greatest updated_at across all
	// definitions (zero when there are none). The dispatcher uses it to
	// detect edits without reloading every tick.
	LastModified(ctx context.Context) (time.Time, error)

	// FireRecords returns the last confirmed fire instant per schedule.
	FireRecords(ctx context.Context) (map[string]time.Time, error)
	// RecordFire persists a fire instant. Updates never move a record
	// backwards: a stored instant is monotonically non-decreasing.
	RecordFire(ctx context.Context, name string, at time.Time) error

	AppendEvent(ctx context.Context, e EventRecord) error
	// PruneEvents deletes history rows with ts older than the cutoff and
	// reports how many were removed.
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open initializes the sqlite store at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
