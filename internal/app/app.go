package app

import (
	"context"
	"errors"
	"fmt"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pushrelay/internal/config"
	"pushrelay/internal/eventbus"
	"pushrelay/internal/ingress"
	"pushrelay/internal/metrics"
	"pushrelay/internal/notification"
	"pushrelay/internal/receiver"
	"pushrelay/internal/relay"
	"pushrelay/internal/runtime/supervisor"
	"pushrelay/internal/storage"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	// attach is set when the store backend is opened after start.
	attach func(context.Context) error

	catalog   *receiver.Catalog
	reg       *receiver.Registry
	state     *notification.State
	loc       *notification.CatalogLocalizer
	callbacks *eventbus.Callbacks

	out     *outputs
	metrics *metrics.Metrics
	relay   *relay.Service

	http *ingress.HTTP
	nats *ingress.NATS
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	callbacks := eventbus.NewCallbacks(bus)

	store, attach, err := openStore(cfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	catalog := receiver.NewCatalog()
	receiver.AddBuiltins(catalog, log.With(logx.String("comp", "receiver.audit")))
	reg := receiver.New(receiver.Deps{
		Store:   store,
		Catalog: catalog,
		Logger:  log.With(logx.String("comp", "registry")),
		Bus:     bus,
	})

	state := notification.NewState(cfg.State.Background, callbacks.Active)
	loc := notification.NewCatalogLocalizer(cfg.Localization.Strings)
	norm := notification.NewNormalizer(
		notification.WithAppState(state),
		notification.WithLocalizer(loc),
		notification.WithLogger(log.With(logx.String("comp", "normalizer"))),
	)

	out, err := buildOutputs(cfg, bus, log.With(logx.String("comp", "delivery")))
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}

	m := metrics.New(func() float64 { return float64(reg.Stats().Live) })

	svc := relay.New(relay.Deps{
		Registry:   reg,
		Normalizer: norm,
		Renderer:   out.renderers,
		Sink:       out.sinks,
		Bus:        bus,
		Observer:   m,
		Logger:     log.With(logx.String("comp", "relay")),
	})

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		attach:    attach,
		catalog:   catalog,
		reg:       reg,
		state:     state,
		loc:       loc,
		callbacks: callbacks,
		out:       out,
		metrics:   m,
		relay:     svc,
	}

	if hc := cfg.Ingress.HTTP; hc != nil {
		readTimeout, err := config.ParseDurationOrDefault("ingress.http.read_timeout", hc.ReadTimeout, 10*time.Second)
		if err != nil {
			a.release()
			return nil, err
		}
		a.http = ingress.NewHTTP(ingress.HTTPConfig{
			Addr:         hc.Addr,
			MaxBodyBytes: hc.MaxBodyBytes,
			ReadTimeout:  readTimeout,
			Pprof:        hc.Pprof,
		}, svc, ingress.HTTPDeps{
			Logger:     log.With(logx.String("comp", "ingress.http")),
			Stats:      func() any { return reg.Stats() },
			Health:     a.health,
			Metrics:    m.Handler(),
			Middleware: m.Middleware,
		})
	}
	if nc := cfg.Ingress.NATS; nc != nil {
		n, err := ingress.NewNATS(ingress.NATSConfig{
			URL:     nc.URL,
			Subject: nc.Subject,
			Queue:   nc.Queue,
		}, svc, log.With(logx.String("comp", "ingress.nats")))
		if err != nil {
			a.release()
			return nil, err
		}
		a.nats = n
	}

	return a, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// Catalog lets the embedding program add receiver factories before Start.
func (a *App) Catalog() *receiver.Catalog { return a.catalog }

func (a *App) Registry() *receiver.Registry { return a.reg }

func (a *App) Relay() *relay.Service { return a.relay }

// Callbacks is the in-process message callback channel. While a subscriber
// is active, notifications are not shown.
func (a *App) Callbacks() *eventbus.Callbacks { return a.callbacks }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if err := a.Err(); err != nil {
		return err
	}
	if st := a.reg.State(); st != receiver.StateReady {
		return fmt.Errorf("receiver registry %s", st)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if tg := cfg.Delivery.Telegram; tg != nil && strings.TrimSpace(tg.Token) == "" {
			return errors.New("delivery.telegram.token is empty")
		}
		return nil
	})

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
		a.sup.Go("metrics.consume", func(c context.Context) error {
			return a.metrics.Consume(c, a.bus)
		})
	}

	builtins := a.cfgm.Get().Receivers
	if a.attach == nil {
		if err := a.reg.Initialize(ctx); err != nil {
			a.log.Warn("receiver revival postponed", logx.Err(err))
		}
		receiver.EnableBuiltins(ctx, a.reg, builtins, a.log.With(logx.String("comp", "receiver.audit")))
	} else {
		// Revival waits for the backend; messages relayed before that reach
		// only receivers registered directly.
		a.sup.GoRestart("storage.attach", supervisor.RestartPolicy{MinBackoff: time.Second}, func(c context.Context) error {
			if err := a.attach(c); err != nil {
				return err
			}
			if err := a.reg.Initialize(c); err != nil {
				return err
			}
			receiver.EnableBuiltins(c, a.reg, builtins, a.log.With(logx.String("comp", "receiver.audit")))
			return nil
		})
	}

	if a.http != nil {
		a.sup.GoRestart("ingress.http", supervisor.RestartPolicy{}, a.http.Run)
	}
	if a.nats != nil {
		a.sup.GoRestart("ingress.nats", supervisor.RestartPolicy{}, a.nats.Run)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.Bool("http", a.http != nil),
		logx.Bool("nats", a.nats != nil),
		logx.Int("renderers", len(a.out.renderers)),
		logx.Int("sinks", len(a.out.sinks)),
	)
	return nil
}

// applyConfig applies the sections that can change live: logging, app state,
// localization and newly enabled built-in receivers. Everything else is
// logged as needing a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(mapLogConfig(newCfg))
	a.state.SetBackground(newCfg.State.Background)
	a.loc.Replace(newCfg.Localization.Strings)

	enable := map[string]bool{}
	for id, on := range newCfg.Receivers {
		if on && !oldCfg.Receivers[id] {
			enable[id] = true
		} else if !on && oldCfg.Receivers[id] {
			a.log.Warn("built-in receiver disabled; restart required to remove it", logx.String("receiver", id))
		}
	}
	if len(enable) > 0 {
		receiver.EnableBuiltins(ctx, a.reg, enable, a.log.With(logx.String("comp", "receiver.audit")))
	}

	if restart := config.NeedsRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.Strs("sections", restart))
	}
	a.log.Info("config reloaded", fields...)
}

func (a *App) release() {
	if a.out != nil {
		_ = a.out.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// Cancel first so ingress stops accepting while in-flight messages finish.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Ingress, config watch and revival retries run on the supervisor.
	step("supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("delivery", 2*time.Second, func(context.Context) error { return a.out.Close() })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
