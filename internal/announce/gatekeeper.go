// Package announce gates announcement requests behind quiet hours.
// Approved requests are forwarded for playback; suppressed ones turn
// into an announce.suppressed event so callers can tell why nothing was
// heard.
package announce

import (
	"strings"
	"time"

	"homehub/internal/bus"
	"homehub/internal/quiet"
	"homehub/pkg/logx"
)

type Publisher interface {
	Publish(subject string, ev bus.Event) error
}

type Config struct {
	// QuietEnabled turns the gate on. Off means every request passes.
	QuietEnabled bool
	Window       quiet.Window
	// WindowErr is the parse error for a malformed quiet-hours config.
	// Non-nil fails safe: everything is suppressed until fixed.
	WindowErr error

	Loc    *time.Location
	Source string
	// PlaySubject receives approved requests; SuppressedSubject the
	// rejections.
	PlaySubject       string
	SuppressedSubject string
}

// Gatekeeper consumes announce.request events and either forwards or
// suppresses them. It never renders audio itself.
type Gatekeeper struct {
	cfg   Config
	pub   Publisher
	log   logx.Logger
	clock func() time.Time
}

func New(cfg Config, pub Publisher, log logx.Logger) *Gatekeeper {
	if cfg.Loc == nil {
		cfg.Loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gatekeeper{cfg: cfg, pub: pub, log: log, clock: time.Now}
}

// HandleEvent processes one announce.request envelope.
func (g *Gatekeeper) HandleEvent(subject string, ev bus.Event) {
	if ev.Type != "announce.request" {
		return
	}
	text, _ := ev.Data["text"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		g.log.Warn("announce request without text", logx.String("id", ev.ID))
		return
	}

	if g.suppressed() {
		g.log.Warn("announcement suppressed",
			logx.String("id", ev.ID),
			logx.String("trace_id", ev.TraceID),
			logx.String("reason", "quiet_hours"),
		)
		out := bus.NewEvent(g.cfg.Source, "announce.suppressed", map[string]any{
			"reason":            "quiet_hours",
			"original_event_id": ev.ID,
			"original_source":   ev.Source,
			"text_len":          len(text),
		}).WithTrace(ev.TraceID)
		if err := g.pub.Publish(g.cfg.SuppressedSubject, out); err != nil {
			g.log.Error("suppression publish failed", logx.Err(err))
		}
		return
	}

	out := bus.NewEvent(g.cfg.Source, "announce.play", ev.Data).WithTrace(ev.TraceID)
	if err := g.pub.Publish(g.cfg.PlaySubject, out); err != nil {
		g.log.Error("announce forward failed", logx.Err(err))
		return
	}
	g.log.Info("announcement approved",
		logx.String("id", ev.ID),
		logx.Int("text_len", len(text)),
	)
}

// suppressed is the hard stop: nothing plays during quiet hours, and a
// broken quiet-hours config counts as quiet.
func (g *Gatekeeper) suppressed() bool {
	if !g.cfg.QuietEnabled {
		return false
	}
	if g.cfg.WindowErr != nil {
		g.log.Warn("quiet window unusable, assuming quiet", logx.Err(g.cfg.WindowErr))
		return true
	}
	return quiet.Suppressed(g.clock().In(g.cfg.Loc), g.cfg.Window)
}
