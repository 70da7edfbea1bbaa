package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/janitor"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	audit   storage.Store
	adapter kit.Adapter

	notif *notifier.Service
	store *reminder.Store
	sched *reminder.Scheduler
	svc   *reminder.Service
	jan   *janitor.Service

	cmdm *CommandManager

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Audit trail (optional)
	var audit storage.Store
	if sc, enabled, err := mapAuditConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "audit")))
		if err != nil {
			return nil, err
		}
		audit = st
		log.Info("audit enabled", logx.String("driver", sc.Driver))
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)

	storePath := strings.TrimSpace(cfg.Store.Path)
	if storePath == "" {
		storePath = "./reminders.json"
	}
	store := reminder.NewStore(storePath, log.With(logx.String("comp", "store")))

	markup := telegram.ReplyKeyboard([]string{"/start", "/remind", "/reminders", "/help"})
	sendOpts := &kit.SendOptions{ParseMode: "Markdown", ReplyMarkupAdapter: markup}

	sched := reminder.NewScheduler(store, reminderDelivery{notif: notifSvc, opts: sendOpts}, bus,
		log.With(logx.String("comp", "scheduler")))
	svc := reminder.NewService(store, sched, bus, log.With(logx.String("comp", "reminder")))

	jcfg, err := mapJanitorConfig(cfg)
	if err != nil {
		return nil, err
	}
	jan := janitor.New(jcfg, store, audit, log.With(logx.String("comp", "janitor")))

	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")), ad, svc, sendOpts)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		audit:   audit,
		adapter: ad,
		notif:   notifSvc,
		store:   store,
		sched:   sched,
		svc:     svc,
		jan:     jan,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}, nil
}

// reminderDelivery adapts the notifier to the scheduler's Notifier interface.
// Reminders go to the owner's private chat, with the persistent keyboard.
type reminderDelivery struct {
	notif *notifier.Service
	opts  *kit.SendOptions
}

func (d reminderDelivery) Deliver(ctx context.Context, owner int64, text string) error {
	return d.notif.Deliver(ctx, kit.ChatTarget{ChatID: owner}, "⏰ *Reminder:* "+text, d.opts)
}

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

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapAuditConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sched.Start(a.sup.Context())
	a.svc.Recover()

	if err := a.jan.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.audit != nil {
		sub, unsub := a.bus.Subscribe(64)
		a.sup.Go0("audit.write", func(c context.Context) {
			defer unsub()
			a.auditLoop(c, sub)
		})
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Hot reload fan-out: logging and notifier settings apply live.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Best-effort Telegram /menu sync; never blocks startup.
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 15*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, a.cmdm.MenuCommands()); err != nil {
				a.log.Warn("menu command sync failed", logx.Err(err))
			}
		})
	}

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if ncfg, err := mapNotifierConfig(cfg); err == nil {
		a.notif.Apply(ncfg)
	} else {
		a.log.Warn("notifier config invalid on reload, keeping previous", logx.Err(err))
	}

	a.log.Info("config reloaded")
}

func (a *App) auditLoop(ctx context.Context, sub <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			le, isReminder := ev.Data.(reminder.LifecycleEvent)
			if !isReminder || !strings.HasPrefix(ev.Type, "reminder.") {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := a.audit.AppendAudit(wctx, storage.AuditEntry{
				At:         ev.Time,
				OwnerID:    le.OwnerID,
				ReminderID: le.ID,
				Event:      ev.Type,
				Detail:     le.Error,
			})
			cancel()
			if err != nil {
				a.log.Warn("audit append failed", logx.Err(err))
			}
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		start := time.Now()
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
			} else {
				a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("janitor", 2*time.Second, func(c context.Context) error { a.jan.Stop(c); return nil })
	step("scheduler", 3*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("store", 2*time.Second, func(context.Context) error { return a.store.Persist() })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	if a.audit != nil {
		step("audit", time.Second, func(context.Context) error { return a.audit.Close() })
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// ---- config mapping ----

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	out := notifier.Config{}
	nc := cfg.Notifier
	if nc == nil {
		return out, nil
	}
	out.RatePerSec = nc.RatePerSec
	out.RetryMax = nc.RetryMax

	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", nc.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay); err != nil {
		return out, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", nc.SendTimeout); err != nil {
		return out, err
	}
	return out, nil
}

func mapAuditConfig(cfg *config.Config) (storage.Config, bool, error) {
	ac := cfg.Audit
	if ac == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(ac.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}

	busy, err := config.ParseDurationOrDefault("audit.busy_timeout", ac.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	switch driver {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(ac.Path) == "" {
			return storage.Config{}, false, fmt.Errorf("audit.path is required when audit.driver=%s", driver)
		}
		return storage.Config{Driver: driver, Path: ac.Path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown audit.driver: %s", ac.Driver)
	}
}

func mapJanitorConfig(cfg *config.Config) (janitor.Config, error) {
	out := janitor.Config{Enabled: true}
	if jc := cfg.Janitor; jc != nil {
		if jc.Enabled != nil {
			out.Enabled = *jc.Enabled
		}
		out.Schedule = jc.Schedule
	}
	if ac := cfg.Audit; ac != nil {
		ret, err := config.ParseDurationField("audit.retention", ac.Retention)
		if err != nil {
			return out, err
		}
		out.AuditRetention = ret
	}
	return out, nil
}
