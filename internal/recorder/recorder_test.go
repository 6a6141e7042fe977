package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homehub/internal/bus"
	"homehub/internal/storage"
	"homehub/pkg/logx"
)

type fakeStore struct {
	mu       sync.Mutex
	events   []storage.EventRecord
	pruned   []time.Time
	appendEr error
	pruneErr error
}

func (s *fakeStore) AppendEvent(ctx context.Context, e storage.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendEr != nil {
		return s.appendEr
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pruneErr != nil {
		return 0, s.pruneErr
	}
	s.pruned = append(s.pruned, before)
	return 3, nil
}

func TestHandleEventPersistsEnvelope(t *testing.T) {
	st := &fakeStore{}
	r := New(Config{}, st, logx.Nop())

	ev := bus.NewEvent("camect-agent", "camera.event", map[string]any{"camera_name": "driveway"})
	r.HandleEvent(context.Background(), "hub.camera.event", ev)

	if len(st.events) != 1 {
		t.Fatalf("stored %d events, want 1", len(st.events))
	}
	got := st.events[0]
	if got.ID != ev.ID || got.Subject != "hub.camera.event" || got.Type != "camera.event" {
		t.Fatalf("record = %+v", got)
	}
	if got.DataJSON != `{"camera_name":"driveway"}` {
		t.Fatalf("data = %q", got.DataJSON)
	}
	want, err := time.Parse(time.RFC3339Nano, ev.TS)
	if err != nil {
		t.Fatalf("envelope ts unparseable: %v", err)
	}
	if !got.TS.Equal(want) {
		t.Fatalf("ts = %v, want %v", got.TS, want)
	}
}

func TestHandleEventBadTimestampFallsBack(t *testing.T) {
	st := &fakeStore{}
	r := New(Config{}, st, logx.Nop())
	arrival := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return arrival }

	ev := bus.NewEvent("x", "y", nil)
	ev.TS = "garbage"
	r.HandleEvent(context.Background(), "hub.x", ev)

	if len(st.events) != 1 || !st.events[0].TS.Equal(arrival) {
		t.Fatalf("events = %+v, want arrival-time fallback", st.events)
	}
}

func TestHandleEventStoreFailureIsNonFatal(t *testing.T) {
	st := &fakeStore{appendEr: errors.New("disk full")}
	r := New(Config{}, st, logx.Nop())

	// Must not panic or block.
	r.HandleEvent(context.Background(), "hub.x", bus.NewEvent("x", "y", nil))
}

func TestPruneUsesRetentionCutoff(t *testing.T) {
	st := &fakeStore{}
	r := New(Config{Retention: 48 * time.Hour}, st, logx.Nop())
	now := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	r.prune(context.Background())

	if len(st.pruned) != 1 {
		t.Fatalf("prune called %d times, want 1", len(st.pruned))
	}
	if want := now.Add(-48 * time.Hour); !st.pruned[0].Equal(want) {
		t.Fatalf("cutoff = %v, want %v", st.pruned[0], want)
	}
}

func TestRunPrunerStopsOnCancel(t *testing.T) {
	st := &fakeStore{}
	r := New(Config{PruneEvery: time.Hour}, st, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.RunPruner(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPruner did not stop after cancel")
	}
}
