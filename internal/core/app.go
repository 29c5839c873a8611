package core

import (
	"context"
	"fmt"
	"time"

	"chanwatch/internal/audit"
	"chanwatch/internal/commands"
	"chanwatch/internal/digest"
	"chanwatch/internal/notifier"
	"chanwatch/internal/poller"
	"chanwatch/internal/settings"
	"chanwatch/internal/stream"
	"chanwatch/internal/syncops"
	"chanwatch/internal/watchlist"
	"chanwatch/pkg/logx"
)

type App struct {
	setm *settings.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	store *watchlist.Store
	hist  *audit.Store
	disp  *notifier.Dispatcher
	poll  *poller.Poller
	lis   *stream.Listener
	dig   *digest.Service
}

func NewApp(setPath string) (*App, error) {
	setm := settings.NewManager(setPath)
	set, err := setm.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   set.Logging.Level,
		Console: set.Logging.Console,
		File: logx.FileConfig{
			Enabled: set.Logging.File.Enabled,
			Path:    set.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	var syncer watchlist.Syncer
	if cs := watchlist.NewCommandSyncer(set.SyncCommand, log.With(logx.String("comp", "syncer"))); cs != nil {
		syncer = cs
	}
	store := watchlist.NewStore(set.Paths.Watchlist, log.With(logx.String("comp", "watchlist")), syncer)

	hist, err := audit.Open(set.Paths.AuditDB, log.With(logx.String("comp", "audit")))
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	disp := notifier.New(notifier.Config{
		Token:  set.Telegram.BotToken,
		ChatID: set.Telegram.OwnerChatID,
	}, log.With(logx.String("comp", "notifier")))

	sync := syncops.New(store, disp, log.With(logx.String("comp", "sync")))

	cmds := commands.New(commands.Deps{
		Store:    store,
		Out:      disp,
		History:  hist,
		Log:      log.With(logx.String("comp", "commands")),
		PanelURL: set.PanelURL,
		Env:      set.Env,
	})

	poll := poller.New(poller.Config{
		Token:   set.Telegram.BotToken,
		OwnerID: set.Telegram.OwnerChatID,
		Timeout: set.PollTimeout(),
		Backoff: set.PollBackoff(),
	}, cmds, sync, log.With(logx.String("comp", "poller")))

	// The listener session runs on its own bot token. Sharing the command
	// poller's token would put two getUpdates consumers on one queue and
	// each would steal (and then drop) the other's updates.
	factory := stream.NewTelebotFactory(stream.TelebotConfig{
		Token:       set.Telegram.StreamBotToken,
		OwnerChatID: set.Telegram.OwnerChatID,
		PollTimeout: set.StreamPollTimeout(),
	}, log.With(logx.String("comp", "session")))

	lis := stream.NewListener(stream.ListenerConfig{
		ReconnectDelay: set.ReconnectDelay(),
		OwnerChatID:    set.Telegram.OwnerChatID,
	}, store, factory, disp, sync, hist, log.With(logx.String("comp", "listener")))

	dig, err := digest.New(set.Digest.At, store, hist, disp, log.With(logx.String("comp", "digest")))
	if err != nil {
		return nil, fmt.Errorf("digest schedule: %w", err)
	}

	return &App{
		setm:  setm,
		log:   log,
		logs:  logSvc,
		store: store,
		hist:  hist,
		disp:  disp,
		poll:  poll,
		lis:   lis,
		dig:   dig,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	a.sup.Go("poller.run", a.poll.Run)
	a.sup.Go("listener.run", a.lis.Run)
	a.sup.Go("settings.watch", a.setm.Watch)

	// Hot reload: only logging is applied live; credential or path changes
	// need a restart and are just logged.
	sub := a.setm.Subscribe(4)
	a.sup.Go0("settings.reload", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case set, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   set.Logging.Level,
					Console: set.Logging.Console,
					File: logx.FileConfig{
						Enabled: set.Logging.File.Enabled,
						Path:    set.Logging.File.Path,
					},
				})
				a.log.Info("settings reloaded (logging applied; other changes need restart)")
			}
		}
	})

	a.dig.Start()

	a.log.Info("monitor started")
	return nil
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

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so both loops start unwinding immediately.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("digest", 2*time.Second, func(c context.Context) error { a.dig.Stop(c); return nil })
	step("supervisor", 5*time.Second, a.sup.Wait)
	step("audit", time.Second, func(context.Context) error { return a.hist.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
