package stream

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"chanwatch/pkg/logx"
)

type TelebotConfig struct {
	// Token is the listener's dedicated bot credential, never the command
	// poller's token (one getUpdates queue per token).
	Token string
	// OwnerChatID is where SendSelf posts fallback alerts.
	OwnerChatID int64
	// PollTimeout is the long-poll window for the session. Default 10s.
	PollTimeout time.Duration
}

// telebotSession adapts a telebot long-poll bot to the Session interface.
// The monitored channel set is fixed for the session lifetime; edits take
// effect on the next reconnect.
type telebotSession struct {
	bot     *tele.Bot
	cfg     TelebotConfig
	log     logx.Logger
	watched map[int64]struct{}

	out  chan Event
	stop chan struct{}

	stopOnce sync.Once
	started  atomic.Bool

	// dropped counts events lost because the consumer lagged the poll loop.
	dropped uint64
}

// NewTelebotFactory returns a Factory producing telebot-backed sessions.
func NewTelebotFactory(cfg TelebotConfig, log logx.Logger) Factory {
	return func(channels []int64) (Session, error) {
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, errors.New("stream: telegram token is empty")
		}
		timeout := cfg.PollTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		b, err := tele.NewBot(tele.Settings{
			Token:  cfg.Token,
			Poller: &tele.LongPoller{Timeout: timeout},
		})
		if err != nil {
			return nil, err
		}

		watched := make(map[int64]struct{}, len(channels))
		for _, id := range channels {
			watched[id] = struct{}{}
		}

		s := &telebotSession{
			bot:     b,
			cfg:     cfg,
			log:     log,
			watched: watched,
			out:     make(chan Event, 64),
			stop:    make(chan struct{}),
		}
		s.install()
		return s, nil
	}
}

func (s *telebotSession) install() {
	onPost := func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		if _, ok := s.watched[m.Chat.ID]; !ok {
			return nil
		}
		s.emit(Event{Kind: KindMessage, ChatID: m.Chat.ID, Text: m.Text})
		return nil
	}
	s.bot.Handle(tele.OnChannelPost, onPost)
	s.bot.Handle(tele.OnText, onPost)

	s.bot.Handle(tele.OnWebApp, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.WebAppData == nil {
			return nil
		}
		s.emit(Event{Kind: KindAppData, ChatID: m.Chat.ID, Data: json.RawMessage(m.WebAppData.Data)})
		return nil
	})
}

func (s *telebotSession) emit(ev Event) {
	select {
	case s.out <- ev:
	default:
		atomic.AddUint64(&s.dropped, 1)
	}
}

func (s *telebotSession) Events() <-chan Event { return s.out }

func (s *telebotSession) SendSelf(ctx context.Context, text string) error {
	if s.cfg.OwnerChatID == 0 {
		return errors.New("stream: owner chat id not configured")
	}
	_, err := s.bot.Send(&tele.Chat{ID: s.cfg.OwnerChatID}, text)
	return err
}

func (s *telebotSession) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("stream: session already ran")
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
		s.bot.Stop()
	}()

	s.log.Info("session polling started", logx.Int("channels", len(s.watched)))
	s.bot.Start() // blocks until Stop()

	if n := atomic.SwapUint64(&s.dropped, 0); n > 0 {
		s.log.Warn("stream events dropped (consumer lagged)", logx.Any("count", n))
	}
	return nil
}

func (s *telebotSession) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}
