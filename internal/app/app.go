// Package app wires configuration, logging, the delivery channel, the
// contact book and the send services into one runnable unit.
//
// Both entry modes share the same construction path: RunMenu drives the
// interactive console, StartDaemon runs headless under a supervisor with
// config hot-reload. Stop tears either mode down step by step.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"blastbot/internal/audit"
	"blastbot/internal/bulk"
	"blastbot/internal/channel"
	"blastbot/internal/cli"
	"blastbot/internal/config"
	"blastbot/internal/contacts"
	"blastbot/internal/dispatch"
	"blastbot/internal/eventbus"
	"blastbot/internal/observability/pprof"
	"blastbot/internal/runtime/supervisor"
	"blastbot/internal/schedule"
	logx "blastbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	rec   audit.Log
	store contacts.Store
	book  *contacts.Manager

	disp  *dispatch.Service
	bulk  *bulk.Runner
	sched *schedule.Service
	pprof *pprof.Service

	jobMu   sync.Mutex
	cfgJobs map[string]struct{}
}

// New loads and validates the config at cfgPath and constructs every
// component. Nothing is running yet when New returns.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	bus := eventbus.New()

	ch, err := channel.Open(mapChannelConfig(cfg), root.With(logx.String("comp", "channel")))
	if err != nil {
		return nil, err
	}

	rec, err := audit.NewFileLog(auditPath(cfg), root.With(logx.String("comp", "audit")))
	if err != nil {
		return nil, err
	}

	ccfg, err := mapContactsConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := contacts.Open(ccfg, root.With(logx.String("comp", "contacts")))
	if err != nil {
		return nil, err
	}
	book, err := contacts.NewManager(context.Background(), store, root.With(logx.String("comp", "contacts")))
	if err != nil {
		return nil, err
	}

	disp := dispatch.New(ch, rec, bus, root.With(logx.String("comp", "dispatch")), mapDispatchConfig(cfg))
	runner := bulk.NewRunner(disp, bus, root.With(logx.String("comp", "bulk")), mapBulkConfig(cfg))
	sched := schedule.New(mapScheduleConfig(cfg), root.With(logx.String("comp", "schedule")), bus)

	ppc, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pp := pprof.New(ppc, root)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		rec:     rec,
		store:   store,
		book:    book,
		disp:    disp,
		bulk:    runner,
		sched:   sched,
		pprof:   pp,
		cfgJobs: map[string]struct{}{},
	}, nil
}

// Done closes when the daemon's run context ends, either because Stop was
// called or a supervised goroutine failed. Before StartDaemon it is already
// closed.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.sup.Context().Done()
}

// Err reports the first fatal error from a supervised goroutine, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunMenu drives the interactive console on stdin/stdout. It returns when
// the user exits, stdin closes, or ctx ends.
func (a *App) RunMenu(ctx context.Context) error {
	hour, minute := scheduleDefaults(a.cfgm.Get())
	m := cli.NewMenu(cli.Deps{
		Dispatcher: a.disp,
		Bulk:       a.bulk,
		Book:       a.book,
		Scheduler:  a.sched,
		Bus:        a.bus,
		Log:        a.log,
		Defaults:   cli.Defaults{ScheduleHour: hour, ScheduleMinute: minute},
	}, os.Stdin, os.Stdout)
	return m.Run(ctx)
}

// StartDaemon brings up the headless mode: config-declared jobs, the
// scheduler, optional pprof, and the config watch/reload loops, all under
// one supervisor rooted at ctx.
func (a *App) StartDaemon(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)
	root := a.sup.Context()

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.applyJobs(a.cfgm.Get()); err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}
	if a.sched.Enabled() {
		a.sched.Start(root)
	} else if a.jobCount() > 0 {
		a.log.Warn("schedule.enabled is false; configured jobs will not fire")
	}
	a.pprof.Start(root)

	// Debug visibility into the bus without wiring a real consumer.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot-reload fan-out. The watcher publishes validated configs; this
	// loop applies them to the live services.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the newest queued config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				if newCfg == nil {
					continue
				}
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				a.warnRestartOnly(lastApplied, newCfg, sections)
				lastApplied = newCfg

				// Logging first so everything after reports at the new level.
				a.logs.Apply(mapLoggingConfig(newCfg))

				a.disp.Apply(mapDispatchConfig(newCfg))
				a.bulk.Apply(mapBulkConfig(newCfg))

				prevSchedEnabled := a.sched.Enabled()
				a.sched.Apply(mapScheduleConfig(newCfg))
				if err := a.applyJobs(newCfg); err != nil {
					a.log.Warn("job re-registration incomplete", logx.Err(err))
				}
				newSchedEnabled := newCfg.Schedule.Enabled
				if prevSchedEnabled && !newSchedEnabled {
					a.log.Info("schedule disabled via config")
					stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
					a.sched.Stop(stopCtx)
					cancel()
				} else if !prevSchedEnabled && newSchedEnabled {
					a.log.Info("schedule enabled via config")
					a.sched.Start(c)
				}

				if ppc, err := mapPprofConfig(newCfg); err != nil {
					a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
				} else {
					a.pprof.Reconfigure(c, ppc)
				}

				a.bus.Publish(eventbus.Event{Type: "config.reloaded", Data: sections})

				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("daemon started",
		logx.Bool("schedule", a.sched.Enabled()),
		logx.Int("jobs", a.jobCount()),
		logx.Bool("pprof", a.pprof.Enabled()),
	)
	return nil
}

// warnRestartOnly flags config changes that only a restart can apply. The
// channel, the audit file and the contact store are bound at construction.
func (a *App) warnRestartOnly(oldCfg, newCfg *config.Config, sections []string) {
	if oldCfg == nil || newCfg == nil {
		return
	}
	for _, s := range sections {
		switch s {
		case "channel":
			a.log.Warn("channel config changed; restart required to take effect")
		case "contacts":
			a.log.Warn("contacts backend changed; restart required to take effect")
		}
	}
	if strings.TrimSpace(oldCfg.LogPath) != strings.TrimSpace(newCfg.LogPath) {
		a.log.Warn("log_path changed; restart required to take effect")
	}
	if strings.TrimSpace(oldCfg.ContactsPath) != strings.TrimSpace(newCfg.ContactsPath) {
		a.log.Warn("contacts_path changed; restart required to take effect")
	}
}

// Stop tears the app down. Each step runs with an upper bound so one stuck
// component cannot stall the whole shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
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
			// The step must honor its context; if it does not, at least
			// record when it eventually unblocks.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline",
						logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				} else {
					a.log.Info("stop step finished after deadline",
						logx.String("name", name), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	// Supervised loops drain first so a reload in flight cannot restart a
	// service after its stop step has run.
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("audit", time.Second, func(context.Context) error { return a.rec.Close() })
	step("contacts", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
