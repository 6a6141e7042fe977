// Package lighting turns camera detection events into debounced on/off
// device commands. Each device key owns one pending off timer; retriggers
// extend the deadline instead of stacking deactivations.
package lighting

import (
	"context"
	"strings"
	"sync"
	"time"

	"homehub/internal/bus"
	"homehub/pkg/logx"
)

// Publisher is the command sink. Satisfied by *bus.Conn.
type Publisher interface {
	Publish(subject string, ev bus.Event) error
}

// DarkFunc is the gate consulted before any activation. False means the
// trigger is ignored entirely.
type DarkFunc func(ctx context.Context, now time.Time) bool

type Config struct {
	// Camera restricts triggers to one camera name.
	Camera string
	// DetectedObjects is a comma/semicolon token list. Umbrella tokens
	// expand to the labels cameras actually report (vehicle covers
	// car/truck/van/suv, person covers people/human). Empty matches all.
	DetectedObjects string
	DeviceID        string
	// Hold is how long activation persists after the most recent trigger.
	Hold time.Duration
	// RetriggerSuppress is the window after an "on" command during which
	// further triggers extend the hold without re-issuing "on".
	RetriggerSuppress time.Duration
	OnlyDark          bool

	// Source names this engine in published envelopes.
	Source string
	// CommandSubject is where on/off commands are published.
	CommandSubject string
}

type timerState struct {
	onSince       time.Time
	suppressUntil time.Time
	offDeadline   time.Time
	off           *time.Timer
	// gen invalidates callbacks from replaced timers: a fired callback
	// whose generation no longer matches is a cancelled deactivation.
	gen int
}

// Engine is the per-key debounce/extend/off state machine. Triggers for
// the same key are serialized by the engine mutex; distinct keys only
// contend on map access.
type Engine struct {
	cfg   Config
	pub   Publisher
	dark  DarkFunc
	log   logx.Logger
	match map[string]struct{}

	clock     func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu     sync.Mutex
	states map[string]*timerState
}

func New(cfg Config, pub Publisher, dark DarkFunc, log logx.Logger) *Engine {
	if cfg.Hold <= 0 {
		cfg.Hold = time.Second
	}
	if cfg.RetriggerSuppress < 0 {
		cfg.RetriggerSuppress = 0
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:       cfg,
		pub:       pub,
		dark:      dark,
		log:       log,
		match:     ExpandTokens(ParseTokens(cfg.DetectedObjects)),
		clock:     time.Now,
		afterFunc: time.AfterFunc,
		states:    map[string]*timerState{},
	}
}

// HandleEvent filters bus traffic down to qualifying triggers. Non-camera
// events, other cameras, and unmatched detections are ignored silently;
// gate-denied triggers are logged because they are the interesting case
// when debugging "why didn't the light come on".
func (e *Engine) HandleEvent(ctx context.Context, subject string, ev bus.Event) {
	if ev.Type != "camera.event" {
		return
	}
	cam := stringField(ev.Data, "camera_name")
	if cam == "" || cam != e.cfg.Camera {
		return
	}
	obj := detectedObject(ev.Data)
	if len(e.match) > 0 {
		if _, ok := e.match[obj]; !ok {
			return
		}
	}
	if e.cfg.OnlyDark && !e.dark(ctx, e.clock()) {
		e.log.Info("trigger ignored, not dark",
			logx.String("camera", cam),
			logx.String("detected", obj),
		)
		return
	}
	e.Trigger(ctx, e.cfg.DeviceID, ev.TraceID)
}

// Trigger processes one qualifying trigger for key. Within the
// suppression window the activate command is withheld but the off
// deadline still moves; past it, "on" is re-issued and a fresh window
// starts. The pending off timer is always replaced, never stacked.
func (e *Engine) Trigger(ctx context.Context, key, traceID string) {
	now := e.clock()

	e.mu.Lock()
	st := e.states[key]
	if st == nil {
		st = &timerState{onSince: now}
		e.states[key] = st
	} else if st.off != nil {
		st.off.Stop()
	}
	st.gen++

	sendOn := now.Compare(st.suppressUntil) >= 0
	if sendOn {
		st.suppressUntil = now.Add(e.cfg.RetriggerSuppress)
		st.onSince = now
	}
	st.offDeadline = now.Add(e.cfg.Hold)
	gen := st.gen
	st.off = e.afterFunc(e.cfg.Hold, func() { e.deactivate(key, gen) })
	e.mu.Unlock()

	if sendOn {
		e.command("on", key, traceID)
	} else {
		e.log.Debug("retrigger suppressed, hold extended",
			logx.String("device", key),
			logx.Time("off_deadline", now.Add(e.cfg.Hold)),
		)
	}
}

// deactivate runs when a key's off timer elapses with no further trigger.
func (e *Engine) deactivate(key string, gen int) {
	e.mu.Lock()
	st := e.states[key]
	if st == nil || st.gen != gen {
		// Replaced by a newer trigger; this deactivation is cancelled.
		e.mu.Unlock()
		return
	}
	delete(e.states, key)
	onSince := st.onSince
	e.mu.Unlock()

	e.command("off", key, "")
	e.log.Info("lights off",
		logx.String("device", key),
		logx.Duration("held", e.clock().Sub(onSince)),
	)
}

func (e *Engine) command(action, deviceID, traceID string) {
	ev := bus.NewEvent(e.cfg.Source, "lutron.command", map[string]any{
		"action":    action,
		"device_id": deviceID,
	}).WithTrace(traceID)
	if err := e.pub.Publish(e.cfg.CommandSubject, ev); err != nil {
		// One key's sink failure must not disturb other keys' timers.
		e.log.Error("command publish failed",
			logx.String("action", action),
			logx.String("device", deviceID),
			logx.Err(err),
		)
		return
	}
	if action == "on" {
		e.log.Info("lights on", logx.String("device", deviceID))
	}
}

// Stop cancels every pending off timer without issuing commands.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, st := range e.states {
		if st.off != nil {
			st.off.Stop()
		}
		delete(e.states, key)
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}

// detectedObject digs the detection label out of a camera.event payload.
// Cameras report either a string or a list of labels under
// data.event.detected_obj; the first non-empty label wins.
func detectedObject(data map[string]any) string {
	inner, _ := data["event"].(map[string]any)
	if inner == nil {
		return ""
	}
	switch v := inner["detected_obj"].(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok && strings.TrimSpace(s) != "" {
				return strings.ToLower(strings.TrimSpace(s))
			}
		}
	}
	return ""
}
