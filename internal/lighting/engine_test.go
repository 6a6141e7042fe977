package lighting

import (
	"context"
	"sync"
	"testing"
	"time"

	"homehub/internal/bus"
	"homehub/pkg/logx"
)

type fakePub struct {
	mu   sync.Mutex
	cmds []string // "action device_id"
}

func (p *fakePub) Publish(subject string, ev bus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	action, _ := ev.Data["action"].(string)
	device, _ := ev.Data["device_id"].(string)
	p.cmds = append(p.cmds, action+" "+device)
	return nil
}

func (p *fakePub) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cmds...)
}

// testEngine wires a manual clock and captures off callbacks so tests
// control exactly when deadlines elapse.
type testEngine struct {
	*Engine
	pub     *fakePub
	now     time.Time
	pending []func()
}

func newTestEngine(t *testing.T, cfg Config, dark DarkFunc) *testEngine {
	t.Helper()
	if cfg.DeviceID == "" {
		cfg.DeviceID = "porch"
	}
	if cfg.Source == "" {
		cfg.Source = "camera-lighting"
	}
	if cfg.CommandSubject == "" {
		cfg.CommandSubject = "hub.lutron.command"
	}
	if dark == nil {
		dark = func(context.Context, time.Time) bool { return true }
	}
	te := &testEngine{pub: &fakePub{}, now: time.Date(2025, 3, 12, 20, 0, 0, 0, time.UTC)}
	te.Engine = New(cfg, te.pub, dark, logx.Nop())
	te.Engine.clock = func() time.Time { return te.now }
	te.Engine.afterFunc = func(d time.Duration, f func()) *time.Timer {
		te.pending = append(te.pending, f)
		return time.AfterFunc(24*time.Hour, func() {})
	}
	return te
}

func (te *testEngine) advance(d time.Duration) { te.now = te.now.Add(d) }

// firePending invokes the i-th captured off callback, simulating its
// timer elapsing.
func (te *testEngine) firePending(i int) { te.pending[i]() }

func (te *testEngine) stateCount() int {
	te.mu.Lock()
	defer te.mu.Unlock()
	return len(te.states)
}

func TestTriggerActivatesAndSchedulesOff(t *testing.T) {
	te := newTestEngine(t, Config{Hold: 180 * time.Second, RetriggerSuppress: 30 * time.Second}, nil)
	ctx := context.Background()

	te.Trigger(ctx, "porch", "t1")
	if got := te.pub.commands(); len(got) != 1 || got[0] != "on porch" {
		t.Fatalf("commands = %v, want [on porch]", got)
	}
	if len(te.pending) != 1 {
		t.Fatalf("scheduled %d off timers, want 1", len(te.pending))
	}

	te.advance(180 * time.Second)
	te.firePending(0)
	if got := te.pub.commands(); len(got) != 2 || got[1] != "off porch" {
		t.Fatalf("commands = %v, want trailing off", got)
	}
	if te.stateCount() != 0 {
		t.Fatal("state not discarded after deactivation")
	}
}

func TestRetriggerWithinSuppressionExtendsWithoutOn(t *testing.T) {
	te := newTestEngine(t, Config{Hold: 180 * time.Second, RetriggerSuppress: 30 * time.Second}, nil)
	ctx := context.Background()

	te.Trigger(ctx, "porch", "t1")
	te.advance(5 * time.Second)
	te.Trigger(ctx, "porch", "t2")

	// Still exactly one "on": the retrigger landed inside the window.
	if got := te.pub.commands(); len(got) != 1 {
		t.Fatalf("commands = %v, want a single on", got)
	}
	if len(te.pending) != 2 {
		t.Fatalf("scheduled %d off timers, want 2 (replacement)", len(te.pending))
	}

	// The replaced timer's callback is stale and must do nothing.
	te.firePending(0)
	if got := te.pub.commands(); len(got) != 1 {
		t.Fatalf("stale off timer issued a command: %v", got)
	}
	if te.stateCount() != 1 {
		t.Fatal("stale off timer discarded live state")
	}

	// The live timer deactivates at the extended deadline.
	te.advance(180 * time.Second)
	te.firePending(1)
	if got := te.pub.commands(); len(got) != 2 || got[1] != "off porch" {
		t.Fatalf("commands = %v, want trailing off", got)
	}
}

func TestRetriggerPastSuppressionReissuesOn(t *testing.T) {
	te := newTestEngine(t, Config{Hold: 180 * time.Second, RetriggerSuppress: 30 * time.Second}, nil)
	ctx := context.Background()

	te.Trigger(ctx, "porch", "t1")
	te.advance(40 * time.Second)
	te.Trigger(ctx, "porch", "t2")

	got := te.pub.commands()
	if len(got) != 2 || got[0] != "on porch" || got[1] != "on porch" {
		t.Fatalf("commands = %v, want two on commands", got)
	}
}

func TestGateDenialTouchesNothing(t *testing.T) {
	dark := func(context.Context, time.Time) bool { return false }
	te := newTestEngine(t, Config{
		Camera:   "driveway",
		DeviceID: "porch",
		Hold:     180 * time.Second,
		OnlyDark: true,
	}, dark)

	ev := bus.NewEvent("camect-agent", "camera.event", map[string]any{
		"camera_name": "driveway",
		"event":       map[string]any{"detected_obj": "person"},
	})
	te.HandleEvent(context.Background(), "hub.camera.event", ev)

	if got := te.pub.commands(); len(got) != 0 {
		t.Fatalf("gate-denied trigger issued commands: %v", got)
	}
	if te.stateCount() != 0 {
		t.Fatal("gate-denied trigger created timer state")
	}
}

func TestHandleEventFiltering(t *testing.T) {
	camEvent := func(typ, camera string, detected any) bus.Event {
		data := map[string]any{"camera_name": camera}
		if detected != nil {
			data["event"] = map[string]any{"detected_obj": detected}
		}
		return bus.NewEvent("camect-agent", typ, data)
	}

	tests := []struct {
		name    string
		objects string
		ev      bus.Event
		want    int
	}{
		{"wrong type", "vehicle", camEvent("time.cron.chime", "driveway", "car"), 0},
		{"wrong camera", "vehicle", camEvent("camera.event", "backyard", "car"), 0},
		{"unmatched object", "vehicle", camEvent("camera.event", "driveway", "cat"), 0},
		{"umbrella expansion", "vehicle", camEvent("camera.event", "driveway", "truck"), 1},
		{"person alias", "person", camEvent("camera.event", "driveway", "human"), 1},
		{"label list", "vehicle", camEvent("camera.event", "driveway", []any{"", "suv"}), 1},
		{"empty filter matches all", "", camEvent("camera.event", "driveway", "cat"), 1},
		{"missing detection", "vehicle", camEvent("camera.event", "driveway", nil), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t, Config{
				Camera:          "driveway",
				DetectedObjects: tt.objects,
				Hold:            time.Minute,
			}, nil)
			te.HandleEvent(context.Background(), "hub.camera.event", tt.ev)
			if got := len(te.pub.commands()); got != tt.want {
				t.Fatalf("issued %d commands, want %d", got, tt.want)
			}
		})
	}
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	te := newTestEngine(t, Config{Hold: 60 * time.Second, RetriggerSuppress: 30 * time.Second}, nil)
	ctx := context.Background()

	te.Trigger(ctx, "porch", "t1")
	te.Trigger(ctx, "garage", "t2")
	if got := te.pub.commands(); len(got) != 2 {
		t.Fatalf("commands = %v, want on for both keys", got)
	}

	te.advance(60 * time.Second)
	te.firePending(0) // porch
	got := te.pub.commands()
	if len(got) != 3 || got[2] != "off porch" {
		t.Fatalf("commands = %v, want off for porch only", got)
	}
	if te.stateCount() != 1 {
		t.Fatalf("state count = %d, want garage still held", te.stateCount())
	}
}

func TestStopCancelsPendingDeactivations(t *testing.T) {
	te := newTestEngine(t, Config{Hold: 60 * time.Second}, nil)
	te.Trigger(context.Background(), "porch", "t1")

	te.Stop()
	te.firePending(0)
	if got := te.pub.commands(); len(got) != 1 {
		t.Fatalf("commands after Stop = %v, want only the initial on", got)
	}
}
