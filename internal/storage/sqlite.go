package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"homehub/internal/schedule"
	"homehub/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const timeFormat = time.RFC3339Nano

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListEnabled(ctx context.Context) ([]schedule.Definition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, enabled, kind, timezone, spec, topic, event_type, data, updated_at
		 FROM schedules WHERE enabled = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []schedule.Definition
	for rows.Next() {
		var (
			d         schedule.Definition
			enabled   int
			kind      string
			dataJSON  string
			updatedAt string
		)
		if err := rows.Scan(&d.Name, &enabled, &kind, &d.Timezone, &d.Spec, &d.Topic, &d.EventType, &dataJSON, &updatedAt); err != nil {
			return nil, err
		}
		d.Enabled = enabled != 0
		d.Kind = schedule.Kind(kind)
		if err := json.Unmarshal([]byte(dataJSON), &d.Data); err != nil {
			// One corrupt data blob must not hide the whole table.
			s.log.Warn("schedule data unreadable", logx.String("schedule", d.Name), logx.Err(err))
			d.Data = map[string]any{}
		}
		if t, err := time.Parse(timeFormat, updatedAt); err == nil {
			d.UpdatedAt = t
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *sqliteStore) UpsertSchedule(ctx context.Context, def schedule.Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return errors.New("schedule name is required")
	}
	data := def.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	updated := def.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (name, enabled, kind, timezone, spec, topic, event_type, data, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET
		   enabled    = excluded.enabled,
		   kind       = excluded.kind,
		   timezone   = excluded.timezone,
		   spec       = excluded.spec,
		   topic      = excluded.topic,
		   event_type = excluded.event_type,
		   data       = excluded.data,
		   updated_at = excluded.updated_at`,
		def.Name, boolInt(def.Enabled), string(def.Kind), def.Timezone, def.Spec,
		def.Topic, def.EventType, string(dataJSON), updated.UTC().Format(timeFormat),
	)
	return err
}

func (s *sqliteStore) LastModified(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM schedules`).Scan(&raw)
	if err != nil {
		return time.Time{}, err
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, raw.String)
}

func (s *sqliteStore) FireRecords(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, fired_at FROM fire_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var name string
		var ms int64
		if err := rows.Scan(&name, &ms); err != nil {
			return nil, err
		}
		out[name] = time.UnixMilli(ms)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RecordFire(ctx context.Context, name string, at time.Time) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("schedule name is required")
	}
	// The WHERE clause keeps fired_at monotonically non-decreasing even
	// if a late tick tries to write an older instant.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fire_records (name, fired_at) VALUES (?,?)
		 ON CONFLICT(name) DO UPDATE SET fired_at = excluded.fired_at
		 WHERE excluded.fired_at > fire_records.fired_at`,
		name, at.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) AppendEvent(ctx context.Context, e EventRecord) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("event id is required")
	}
	ts := e.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	data := e.DataJSON
	if strings.TrimSpace(data) == "" {
		data = "{}"
	}
	// Replays of the same envelope id are idempotent.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, ts, subject, source, type, trace_id, data)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID, ts.UnixMilli(), e.Subject, e.Source, e.Type, e.TraceID, data,
	)
	return err
}

func (s *sqliteStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`,
		before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
