// hubd is the household automation hub daemon: it evaluates persisted
// schedules into bus events, drives camera-triggered lighting, gates
// announcements behind quiet hours, and archives bus traffic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/nats-io/nats.go"

	"homehub/internal/announce"
	"homehub/internal/bus"
	"homehub/internal/config"
	"homehub/internal/dispatch"
	"homehub/internal/lighting"
	"homehub/internal/module"
	"homehub/internal/quiet"
	"homehub/internal/recorder"
	"homehub/internal/schedule"
	"homehub/internal/seed"
	"homehub/internal/storage"
	"homehub/internal/sun"
	"homehub/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("component", "config")))
	log.Info("hubd starting", logx.String("config", cfgPath), logx.String("tz", cfg.Timezone))

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busyTimeout},
		log.With(logx.String("component", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	conn, err := bus.Connect(bus.Config{URL: cfg.Bus.URL, Name: cfg.Bus.Name},
		log.With(logx.String("component", "bus")))
	if err != nil {
		return err
	}
	defer conn.Close()

	// Warn+ log records double as bus events once the connection is up.
	if cfg.Log.Bus.Enabled {
		logSvc.SetSink(&busSink{
			conn:    conn,
			subject: bus.Subject(cfg.Bus.BaseSubject, "log"),
			source:  cfg.Bus.Name,
		})
		defer logSvc.SetSink(nil)
	}

	sunTimeout, err := config.ParseDurationOrDefault("sun.timeout", cfg.Sun.Timeout, 10*time.Second)
	if err != nil {
		return err
	}
	sunRes := sun.NewResolver(
		sun.NewOpenMeteo(cfg.Sun.BaseURL, cfg.Location.Latitude, cfg.Location.Longitude, loc, sunTimeout),
		loc,
		log.With(logx.String("component", "sun")),
	)

	if cfg.Seed.Enabled {
		defs := seed.Defaults(cfg.Timezone, cfg.Bus.BaseSubject)
		if err := seed.Apply(ctx, store, defs, log.With(logx.String("component", "seed"))); err != nil {
			return fmt.Errorf("seed schedules: %w", err)
		}
	}

	reg := module.NewRegistry(log)
	registerConfigWatch(reg, mgr, logSvc, log)
	registerDispatcher(reg, cfg, store, conn, sunRes, log)
	registerLighting(ctx, reg, cfg, conn, sunRes, log)
	registerAnnounce(reg, cfg, conn, loc, log)
	registerRecorder(ctx, reg, cfg, store, conn, log)

	if err := reg.StartAll(ctx); err != nil {
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("hubd ready")

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("hubd stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg.StopAll(stopCtx)
	return nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
		Bus: logx.BusConfig{
			Enabled:    cfg.Log.Bus.Enabled,
			MinLevel:   cfg.Log.Bus.MinLevel,
			RatePerSec: cfg.Log.Bus.RatePerSec,
		},
	}
}

// registerConfigWatch keeps the daemon watching its config file; only
// the logging section applies live, everything else needs a restart.
func registerConfigWatch(reg *module.Registry, mgr *config.Manager, logSvc *logx.Service, log logx.Logger) {
	reg.Register(module.RunLoop("config-watch", func(ctx context.Context) {
		ch := mgr.Subscribe(1)
		defer mgr.Unsubscribe(ch)
		go func() { _ = mgr.Watch(ctx) }()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-ch:
				if !ok {
					return
				}
				logSvc.Apply(logConfig(cfg))
				log.Info("log config applied", logx.String("level", cfg.Log.Level))
			}
		}
	}, log))
}

func registerDispatcher(reg *module.Registry, cfg *config.Config, store storage.Store, conn *bus.Conn, sunRes schedule.SunResolver, log logx.Logger) {
	if !cfg.Dispatcher.Enabled {
		return
	}
	tick, _ := config.ParseDurationOrDefault("dispatcher.tick", cfg.Dispatcher.Tick, 15*time.Second)
	d := dispatch.New(
		dispatch.Config{Tick: tick, Source: cfg.Dispatcher.Source},
		store, conn, sunRes,
		log.With(logx.String("component", "dispatch")),
	)
	reg.Register(module.RunLoop("dispatcher", d.Run, log))
}

func registerLighting(runCtx context.Context, reg *module.Registry, cfg *config.Config, conn *bus.Conn, sunRes *sun.Resolver, log logx.Logger) {
	if !cfg.Lighting.Enabled {
		return
	}
	engine := lighting.New(
		lighting.Config{
			Camera:            cfg.Lighting.Camera,
			DetectedObjects:   cfg.Lighting.DetectedObjects,
			DeviceID:          cfg.Lighting.DeviceID,
			Hold:              time.Duration(cfg.Lighting.HoldSeconds) * time.Second,
			RetriggerSuppress: time.Duration(cfg.Lighting.RetriggerSuppressSeconds) * time.Second,
			OnlyDark:          cfg.Lighting.OnlyDark,
			Source:            "camera-lighting",
			CommandSubject:    bus.Subject(cfg.Bus.BaseSubject, "lutron.command"),
		},
		conn, sunRes.IsDark,
		log.With(logx.String("component", "lighting")),
	)

	var sub *nats.Subscription
	reg.Register(module.Hooks{
		ModuleName: "lighting",
		OnStart: func(context.Context) error {
			var err error
			sub, err = conn.Subscribe(bus.Subject(cfg.Bus.BaseSubject, "camera.event"),
				func(subject string, ev bus.Event) {
					engine.HandleEvent(runCtx, subject, ev)
				})
			return err
		},
		OnStop: func(context.Context) error {
			if sub != nil {
				_ = sub.Unsubscribe()
			}
			engine.Stop()
			return nil
		},
	})
}

func registerAnnounce(reg *module.Registry, cfg *config.Config, conn *bus.Conn, loc *time.Location, log logx.Logger) {
	if !cfg.Announce.Enabled {
		return
	}
	window, werr := quiet.ParseWindow(
		cfg.QuietHours.WeekdayStart, cfg.QuietHours.WeekdayEnd,
		cfg.QuietHours.WeekendStart, cfg.QuietHours.WeekendEnd,
	)
	gate := announce.New(
		announce.Config{
			QuietEnabled:      cfg.QuietHours.Enabled,
			Window:            window,
			WindowErr:         werr,
			Loc:               loc,
			Source:            "announce-gate",
			PlaySubject:       bus.Subject(cfg.Bus.BaseSubject, "announce.play"),
			SuppressedSubject: bus.Subject(cfg.Bus.BaseSubject, "announce.suppressed"),
		},
		conn,
		log.With(logx.String("component", "announce")),
	)

	var sub *nats.Subscription
	reg.Register(module.Hooks{
		ModuleName: "announce-gate",
		OnStart: func(context.Context) error {
			var err error
			sub, err = conn.Subscribe(bus.Subject(cfg.Bus.BaseSubject, "announce.request"), gate.HandleEvent)
			return err
		},
		OnStop: func(context.Context) error {
			if sub != nil {
				_ = sub.Unsubscribe()
			}
			return nil
		},
	})
}

func registerRecorder(runCtx context.Context, reg *module.Registry, cfg *config.Config, store storage.Store, conn *bus.Conn, log logx.Logger) {
	if !cfg.Recorder.Enabled {
		return
	}
	rec := recorder.New(
		recorder.Config{Retention: time.Duration(cfg.Recorder.RetentionDays) * 24 * time.Hour},
		store,
		log.With(logx.String("component", "recorder")),
	)

	var sub *nats.Subscription
	reg.Register(module.Hooks{
		ModuleName: "recorder",
		OnStart: func(context.Context) error {
			var err error
			sub, err = conn.Subscribe(bus.Subject(cfg.Bus.BaseSubject)+".>",
				func(subject string, ev bus.Event) {
					rec.HandleEvent(runCtx, subject, ev)
				})
			return err
		},
		OnStop: func(context.Context) error {
			if sub != nil {
				_ = sub.Unsubscribe()
			}
			return nil
		},
	})
	reg.Register(module.RunLoop("recorder-pruner", rec.RunPruner, log))
}

// busSink republishes rendered log records as bus events.
type busSink struct {
	conn    *bus.Conn
	subject string
	source  string
}

func (s *busSink) Emit(level, message string, fields map[string]any) {
	ev := bus.NewEvent(s.source, "log.record", map[string]any{
		"level":   level,
		"message": message,
		"fields":  fields,
	})
	_ = s.conn.Publish(s.subject, ev)
}
