package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cadencebot/internal/automation"
	"cadencebot/internal/config"
	"cadencebot/internal/device"
	"cadencebot/internal/eventbus"
	"cadencebot/internal/runtime/supervisor"
	"cadencebot/internal/storage"
	logx "cadencebot/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	dev   device.Device

	sup *automation.Supervisor
	rec *recorder
	grp *supervisor.Group
}

// NewApp loads the config, opens storage and the device, and restores the
// persisted instances (all Stopped). Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.Component("app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.Component("storage")))
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Debug("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	closeStore := func() {
		if store != nil {
			_ = store.Close()
		}
	}

	dc, err := mapDeviceConfig(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	dev, err := device.Open(dc, log)
	if err != nil {
		closeStore()
		return nil, err
	}

	settings, err := mapSettings(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	timing, err := mapTiming(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}

	execOpts := []automation.ExecutorOption{
		automation.WithBus(bus),
		automation.WithBounds(automation.Bounds{W: cfg.Device.Width, H: cfg.Device.Height}),
	}
	if cfg.Device.Verify {
		execOpts = append(execOpts, automation.WithVerifier(device.NewChangeVerifier(dev)))
	}
	exec := automation.NewExecutor(dev, automation.NewGate(), log.With(logx.Component("executor")), execOpts...)

	supOpts := []automation.Option{automation.WithEvents(bus)}
	if store != nil {
		supOpts = append(supOpts, automation.WithStore(store))
	}
	sup := automation.NewSupervisor(
		automation.Config{Timing: timing, Cadences: mapCadences(cfg)},
		automation.NewRegistry(),
		exec,
		automation.NewSettingsStore(settings),
		log,
		supOpts...,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := sup.Load(ctx); err != nil {
		closeStore()
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		dev:     dev,
		sup:     sup,
		rec:     startRecorder(bus, store, log.With(logx.Component("recorder"))),
	}, nil
}

func (a *App) Supervisor() *automation.Supervisor { return a.sup }

func (a *App) Store() storage.Store { return a.store }

func (a *App) Device() device.Device { return a.dev }

func (a *App) Logs() *logx.Service { return a.logs }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the runtime group is canceled.
func (a *App) Done() <-chan struct{} {
	if a.grp == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.grp.Context().Done()
}

func (a *App) Err() error {
	if a.grp == nil {
		return nil
	}
	return a.grp.Err()
}

// Start runs the background loops and starts the named instances. "all"
// starts every instance.
func (a *App) Start(ctx context.Context, names []string) error {
	a.grp = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.Component("runtime"))))

	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if spec := statusSpec(a.cfgm.Get()); spec != "" {
		a.grp.Go("status.report", func(c context.Context) error {
			return a.runStatusReporter(c, spec)
		})
	}
	a.grp.Go0("config.reload", a.applyReloads)
	a.grp.Go("config.watch", a.cfgm.Watch)

	var errs []error
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, "all") {
			errs = append(errs, a.sup.StartAll())
			continue
		}
		errs = append(errs, a.sup.Start(name))
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started",
		logx.Int("instances", a.sup.Registry().Len()),
		logx.Int("running", a.sup.Units()),
	)
	return errors.Join(errs...)
}

func (a *App) applyReloads(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
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
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if s, err := mapSettings(newCfg); err != nil {
		a.log.Warn("invalid automation settings; keeping previous", logx.Err(err))
	} else if err := a.sup.Settings().Update(s); err != nil {
		a.log.Warn("automation settings rejected", logx.Err(err))
	}

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for these sections",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop stops every instance, the background loops and storage, each step
// bounded by its own timeout.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("instances", 5*time.Second, a.sup.Shutdown)
	if a.grp != nil {
		step("runtime", 3*time.Second, a.grp.Stop)
	}
	step("recorder", 2*time.Second, a.rec.Close)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// Close releases storage and log sinks for one-shot commands that never
// called Start.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errs := []error{a.rec.Close(ctx)}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
