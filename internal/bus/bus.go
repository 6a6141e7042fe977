// Package bus wraps the NATS connection behind a small publish/subscribe
// API that only speaks Event envelopes.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"homehub/pkg/logx"
)

type Config struct {
	URL  string
	Name string
}

// Handler receives validated envelopes. Subject is the concrete subject
// the message arrived on (useful with wildcard subscriptions).
type Handler func(subject string, ev Event)

type Conn struct {
	nc  *nats.Conn
	log logx.Logger
}

// Connect dials the broker and keeps reconnecting forever; the hub is
// useless without its bus, so giving up is not an option.
func Connect(cfg Config, log logx.Logger) (*Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("bus disconnected", logx.Err(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("bus reconnected", logx.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	log.Info("bus connected", logx.String("url", nc.ConnectedUrl()))
	return &Conn{nc: nc, log: log}, nil
}

func (c *Conn) Publish(subject string, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe decodes and validates each message before invoking the
// handler. Malformed payloads are logged and dropped so one bad producer
// cannot wedge a consumer.
func (c *Conn) Subscribe(subject string, h Handler) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.log.Warn("bad event payload", logx.String("subject", msg.Subject), logx.Err(err))
			return
		}
		if err := ev.Validate(); err != nil {
			c.log.Warn("bad event envelope", logx.String("subject", msg.Subject), logx.Err(err))
			return
		}
		h(msg.Subject, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains in-flight messages before disconnecting.
func (c *Conn) Close() {
	if c == nil || c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}
