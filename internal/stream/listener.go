package stream

import (
	"context"
	"runtime/debug"
	"time"

	"chanwatch/internal/audit"
	"chanwatch/internal/match"
	"chanwatch/internal/syncops"
	"chanwatch/internal/watchlist"
	"chanwatch/pkg/logx"
)

// Sender is the primary alert path (the Bot API notifier).
type Sender interface {
	Send(ctx context.Context, text string) error
}

type ListenerConfig struct {
	// ReconnectDelay is the fixed wait between session rebuilds. Default 10s.
	ReconnectDelay time.Duration
	// OwnerChatID is the only sender allowed to push in-band sync payloads.
	OwnerChatID int64
}

// Listener supervises the live session: CONNECTING -> SUBSCRIBED -> event
// loop -> DISCONNECTED -> CONNECTING, forever, with a fixed delay between
// attempts.
type Listener struct {
	cfg     ListenerConfig
	store   *watchlist.Store
	factory Factory
	out     Sender
	sync    *syncops.Applier
	hist    *audit.Store
	log     logx.Logger
}

func NewListener(cfg ListenerConfig, store *watchlist.Store, factory Factory, out Sender, sync *syncops.Applier, hist *audit.Store, log logx.Logger) *Listener {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 10 * time.Second
	}
	return &Listener{
		cfg:     cfg,
		store:   store,
		factory: factory,
		out:     out,
		sync:    sync,
		hist:    hist,
		log:     log,
	}
}

// Run reconnects until ctx is canceled.
//
// The monitored channel set is snapshotted at connect time: edits made while
// subscribed only take effect on the next reconnect. Known staleness window,
// kept on purpose because existing deployments rely on it.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		cfg := l.store.Load(ctx)
		sess, err := l.factory(cfg.MonitoredChannels)
		if err != nil {
			l.log.Error("session create failed", logx.Err(err))
			if !sleepCtx(ctx, l.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}

		l.log.Info("listening", logx.Any("channels", cfg.MonitoredChannels))
		err = l.consume(ctx, sess)
		sess.Close()

		if ctx.Err() != nil {
			return nil
		}
		l.log.Error("session ended, reconnecting",
			logx.Err(err),
			logx.Duration("delay", l.cfg.ReconnectDelay))
		if !sleepCtx(ctx, l.cfg.ReconnectDelay) {
			return nil
		}
	}
}

func (l *Listener) consume(ctx context.Context, sess Session) error {
	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			sess.Close()
			<-runDone
			return nil
		case err := <-runDone:
			return err
		case ev := <-sess.Events():
			l.handleEvent(ctx, sess, ev)
		}
	}
}

// handleEvent is a fault-isolation boundary: a panic or error in one event
// must not take down the subscription.
func (l *Listener) handleEvent(ctx context.Context, sess Session, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic in event handler",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	switch ev.Kind {
	case KindAppData:
		// Same authorization as the poller path: only the owner may push
		// panel updates. The session delivers whatever Telegram routes to it.
		if ev.ChatID != l.cfg.OwnerChatID {
			l.log.Warn("in-band sync payload from unauthorized sender dropped",
				logx.Int64("sender", ev.ChatID))
			return
		}
		payload, err := syncops.Decode(ev.Data)
		if err != nil {
			l.log.Error("bad in-band sync payload", logx.Err(err))
			return
		}
		l.sync.Apply(ctx, payload)
	case KindMessage:
		l.handleMessage(ctx, sess, ev)
	}
}

func (l *Listener) handleMessage(ctx context.Context, sess Session, ev Event) {
	if ev.Text == "" {
		return
	}

	// Fresh read: keyword edits apply to the very next message.
	cfg := l.store.Load(ctx)
	d := match.Decide(ev.Text, cfg.Keywords, cfg.Excluded)
	if len(d.Matched) == 0 {
		return
	}

	if err := l.hist.RecordAlert(ctx, ev.ChatID, d.Matched, d.Suppressed); err != nil {
		l.log.Debug("alert not recorded", logx.Err(err))
	}

	if d.Suppressed {
		l.log.Info("match suppressed by exclusion", logx.Strings("matched", d.Matched))
		return
	}

	l.log.Info("keyword match", logx.Strings("matched", d.Matched), logx.Int64("chat_id", ev.ChatID))
	if err := l.out.Send(ctx, ev.Text); err != nil {
		l.log.Error("alert dispatch failed, trying session fallback", logx.Err(err))
		if ferr := sess.SendSelf(ctx, ev.Text); ferr != nil {
			// Best effort only; the alert is lost beyond this point.
			l.log.Error("session fallback failed", logx.Err(ferr))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
