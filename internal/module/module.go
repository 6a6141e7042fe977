// Package module defines the lifecycle every hub component implements
// and a registry that starts and stops them as a unit.
package module

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"homehub/pkg/logx"
)

// Module is one runnable hub component. Start must not block; long
// running work belongs in goroutines the module owns. Stop blocks until
// the module is down or ctx expires.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Registry owns module startup order. Modules are started in
// registration order and stopped in reverse, so consumers outlive what
// they consume from.
type Registry struct {
	log logx.Logger

	mu      sync.Mutex
	mods    []Module
	started []Module
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log}
}

func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mods = append(r.mods, m)
}

// StartAll starts every registered module. On the first failure the
// already-started modules are stopped again in reverse order and the
// failure is returned; the daemon either runs whole or not at all.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.mods {
		if err := m.Start(ctx); err != nil {
			r.log.Error("module failed to start", logx.String("module", m.Name()), logx.Err(err))
			r.stopLocked(ctx)
			return fmt.Errorf("start %s: %w", m.Name(), err)
		}
		r.started = append(r.started, m)
		r.log.Info("module started", logx.String("module", m.Name()))
	}
	return nil
}

// StopAll stops the started modules in reverse order. Stop errors are
// logged, not returned: shutdown always visits every module.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(ctx)
}

func (r *Registry) stopLocked(ctx context.Context) {
	for i := len(r.started) - 1; i >= 0; i-- {
		m := r.started[i]
		if err := m.Stop(ctx); err != nil {
			r.log.Warn("module stop failed", logx.String("module", m.Name()), logx.Err(err))
			continue
		}
		r.log.Info("module stopped", logx.String("module", m.Name()))
	}
	r.started = nil
}

// loop adapts a blocking run function into a Module. The function runs
// on its own goroutine until Stop cancels its context.
type loop struct {
	name string
	run  func(ctx context.Context)
	log  logx.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// RunLoop wraps a blocking run function (a ticker loop, a pruner) as a
// Module named for logs.
func RunLoop(name string, run func(ctx context.Context), log logx.Logger) Module {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &loop{name: name, run: run, log: log}
}

func (l *loop) Name() string { return l.name }

func (l *loop) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		defer func() {
			if r := recover(); r != nil {
				l.log.Error("module panicked",
					logx.String("module", l.name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		l.run(ctx)
	}()
	return nil
}

func (l *loop) Stop(ctx context.Context) error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s did not stop: %w", l.name, ctx.Err())
	}
}

// Hooks builds a Module from explicit start/stop functions, for
// components that manage their own goroutines (bus subscriptions).
type Hooks struct {
	ModuleName string
	OnStart    func(ctx context.Context) error
	OnStop     func(ctx context.Context) error
}

func (h Hooks) Name() string { return h.ModuleName }

func (h Hooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

func (h Hooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}
