// Package digest sends the trusted recipient a short daily summary of
// monitor activity.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"chanwatch/internal/audit"
	"chanwatch/internal/settings"
	"chanwatch/internal/watchlist"
	"chanwatch/pkg/logx"
	"chanwatch/pkg/tghtml"
)

type Sender interface {
	Send(ctx context.Context, text string) error
}

type Service struct {
	c     *cron.Cron
	store *watchlist.Store
	hist  *audit.Store
	out   Sender
	log   logx.Logger
}

// New schedules a daily digest at the given local HH:MM. An empty at
// disables the service (nil, nil).
func New(at string, store *watchlist.Store, hist *audit.Store, out Sender, log logx.Logger) (*Service, error) {
	if at == "" {
		return nil, nil
	}
	hour, minute, err := settings.ParseHHMM(at)
	if err != nil {
		return nil, err
	}

	s := &Service{
		c:     cron.New(),
		store: store,
		hist:  hist,
		out:   out,
		log:   log,
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := s.c.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Start() {
	if s == nil {
		return
	}
	s.c.Start()
	s.log.Info("daily digest scheduled")
}

func (s *Service) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

func (s *Service) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := s.store.Load(ctx)
	st, err := s.hist.Counts(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.log.Error("digest counts failed", logx.Err(err))
		return
	}

	text := tghtml.Join("\n",
		tghtml.B("Daily monitor digest"),
		tghtml.Esc(fmt.Sprintf("watching %d keywords across %d channels (%d excluded)",
			len(cfg.Keywords), len(cfg.MonitoredChannels), len(cfg.Excluded))),
		tghtml.Esc(fmt.Sprintf("last 24h: %d alerts sent, %d suppressed", st.Alerts, st.Suppressed)),
	).String()

	if err := s.out.Send(ctx, text); err != nil {
		s.log.Error("digest not delivered", logx.Err(err))
	}
}
