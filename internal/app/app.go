// Package app wires configuration, storage, transport and the reminder engine
// into one process and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"remindbot/internal/config"
	"remindbot/internal/dateparse"
	"remindbot/internal/eventbus"
	"remindbot/internal/metrics"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/ops"
	"remindbot/internal/reminders"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	"remindbot/pkg/logx"
)

const scanJob = "reminders.scan"

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter *telegram.Adapter
	sched   *scheduler.Service
	notif   *notifier.Service
	svc     *reminders.Service
	router  *router.Router

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	ops      *ops.Service

	scanEvery time.Duration
	updates   chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{Token: resolveToken(cfg), PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	// the chat target is set before the sink is enabled so Apply does not warn
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
		return err
	})
	logSvc.SetChatTarget(logTarget(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	a, err := build(cfg, store, ad, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.cfgm = cfgm
	a.logs = logSvc
	a.log = appLog
	return a, nil
}

// build wires everything that does not touch the network or the disk.
func build(cfg *config.Config, store storage.Store, ad *telegram.Adapter, log logx.Logger) (*App, error) {
	set, err := mapSettings(cfg)
	if err != nil {
		return nil, err
	}
	every, err := mapScanInterval(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	sched := scheduler.New(log.With(logx.String("comp", "scheduler")))
	notif := notifier.New(ncfg, ad, log)

	svc, err := reminders.New(reminders.Deps{
		Store:        store,
		Parser:       dateparse.New(),
		Messenger:    ad,
		Dispatcher:   notif,
		Timers:       sched,
		Bus:          bus,
		Log:          log,
		FiredLogSize: cfg.Reminders.FiredLogSize,
	}, set)
	if err != nil {
		return nil, err
	}

	rt := router.New(router.Config{}, ad, log)
	router.RegisterReminders(rt, svc)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:       log.With(logx.String("comp", "app")),
		bus:       bus,
		store:     store,
		adapter:   ad,
		sched:     sched,
		notif:     notif,
		svc:       svc,
		router:    rt,
		registry:  reg,
		metrics:   m,
		scanEvery: every,
		updates:   make(chan kit.Update, 256),
	}
	if cfg.Metrics.Enabled {
		a.ops = ops.New(mapOpsConfig(cfg), reg, a.health, log)
	}
	return a, nil
}

func (a *App) health() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) scan(ctx context.Context) error {
	rep, err := a.svc.Scanner().Scan(ctx)
	if err != nil {
		return err
	}
	if rep.CleanupFailed > 0 {
		return fmt.Errorf("scan: cleanup failed for %d chats", rep.CleanupFailed)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapSettings(cfg); err != nil {
			return err
		}
		if _, err := mapScanInterval(cfg); err != nil {
			return err
		}
		_, err := mapNotifierConfig(cfg)
		return err
	})

	if _, err := a.sched.AddInterval(scanJob, a.scanEvery, a.scanEvery*3, a.scan); err != nil {
		return err
	}
	a.sched.Start(run)

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if a.ops != nil {
		a.ops.Start(run)
	}

	a.sup.Go("router", func(c context.Context) error { return a.router.Run(c, a.updates) })
	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
	)

	a.log.Info("app started", logx.Duration("scan_interval", a.scanEvery))
	return nil
}

// reloadLoop applies committed configs. Bursts are coalesced to the latest one.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(prev, cfg *config.Config) {
	change := config.SummarizeChange(prev, cfg)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart", logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}

	for _, section := range change.Sections {
		switch section {
		case "logging":
			a.logs.SetChatTarget(logTarget(cfg), cfg.Logging.Telegram.ThreadID)
			a.logs.Apply(mapLogConfig(cfg))
		case "reminders":
			if set, err := mapSettings(cfg); err != nil {
				a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
			} else {
				a.svc.Apply(set)
			}
			if ncfg, err := mapNotifierConfig(cfg); err == nil {
				a.notif.Apply(ncfg)
			}
			if every, err := mapScanInterval(cfg); err == nil && every != a.scanEvery {
				if _, err := a.sched.AddInterval(scanJob, every, every*3, a.scan); err != nil {
					a.log.Warn("rescheduling scan failed", logx.Err(err))
				} else {
					a.scanEvery = every
				}
			}
		}
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config applied", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown step by max, never extending the caller's deadline
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error {
		if a.ops != nil {
			a.ops.Stop(c)
		}
		return nil
	})
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
