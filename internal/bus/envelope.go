package bus

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope carried by every message on the bus. All services
// publish and consume exactly this shape.
type Event struct {
	ID      string         `json:"id"`
	TS      string         `json:"ts"`
	Source  string         `json:"source"`
	Type    string         `json:"type"`
	TraceID string         `json:"trace_id"`
	Data    map[string]any `json:"data"`
}

// NewEvent builds an envelope with fresh id/ts and, unless WithTrace is
// applied, a fresh trace id.
func NewEvent(source, typ string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:      newID(),
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Source:  source,
		Type:    typ,
		TraceID: newID(),
		Data:    data,
	}
}

// WithTrace returns a copy that continues an existing trace.
func (e Event) WithTrace(traceID string) Event {
	if strings.TrimSpace(traceID) != "" {
		e.TraceID = traceID
	}
	return e
}

// Validate checks the fields every consumer relies on. Malformed events
// are dropped at the subscription boundary, not deep in handlers.
func (e Event) Validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return errors.New("event missing id")
	case strings.TrimSpace(e.TS) == "":
		return errors.New("event missing ts")
	case strings.TrimSpace(e.Source) == "":
		return errors.New("event missing source")
	case strings.TrimSpace(e.Type) == "":
		return errors.New("event missing type")
	case strings.TrimSpace(e.TraceID) == "":
		return errors.New("event missing trace_id")
	case e.Data == nil:
		return errors.New("event missing data")
	}
	return nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Subject joins subject tokens with the NATS separator. Tokens are
// trimmed; empty tokens are skipped.
func Subject(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), ".")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}
