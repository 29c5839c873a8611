// Package poller long-polls the Bot API for inbound owner traffic: text
// commands and control-panel sync payloads.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"chanwatch/internal/commands"
	"chanwatch/internal/syncops"
	"chanwatch/pkg/logx"
)

const defaultAPIBase = "https://api.telegram.org"

type Config struct {
	Token   string
	OwnerID int64

	// APIBase overrides the Bot API endpoint (tests).
	APIBase string
	// Timeout is the server-side long-poll window. Default 30s.
	Timeout time.Duration
	// Backoff is the fixed delay after a transport or decode error. Default 5s.
	Backoff time.Duration
}

// Poller is a single long-running loop: POLLING -> PROCESSING -> POLLING.
// It owns the update cursor; the cursor advances past every update it has
// seen, even ones whose processing failed, so nothing is redelivered.
type Poller struct {
	cfg  Config
	http *http.Client
	cmds *commands.Handler
	sync *syncops.Applier
	log  logx.Logger

	cursor int64
}

func New(cfg Config, cmds *commands.Handler, sync *syncops.Applier, log logx.Logger) *Poller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	cfg.APIBase = base
	return &Poller{
		cfg: cfg,
		// Client timeout must outlive the server-side long-poll window.
		http: &http.Client{Timeout: cfg.Timeout + 5*time.Second},
		cmds: cmds,
		sync: sync,
		log:  log,
	}
}

// Run polls until ctx is canceled. Transport errors back off and retry
// forever; the loop never exits on them.
func (p *Poller) Run(ctx context.Context) error {
	if strings.TrimSpace(p.cfg.Token) == "" {
		p.log.Warn("command polling disabled (no bot token)")
		<-ctx.Done()
		return nil
	}

	p.log.Info("command polling started", logx.Duration("timeout", p.cfg.Timeout))
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("poll failed", logx.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.Backoff):
			}
			continue
		}

		for _, u := range updates {
			// Advance past this update no matter what happens below:
			// a processing failure is logged, never redelivered.
			p.cursor = u.UpdateID
			p.process(ctx, u)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(p.cursor+1, 10))
	q.Set("timeout", strconv.Itoa(int(p.cfg.Timeout/time.Second)))

	u := p.cfg.APIBase + "/bot" + strings.TrimSpace(p.cfg.Token) + "/getUpdates?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool     `json:"ok"`
		Result      []update `json:"result"`
		ErrorCode   int      `json:"error_code"`
		Description string   `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("getUpdates decode: %w", err)
	}
	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return nil, fmt.Errorf("getUpdates failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return nil, fmt.Errorf("getUpdates failed: http=%d", resp.StatusCode)
	}
	return out.Result, nil
}

// process handles one update. It is a fault-isolation boundary: panics and
// errors are logged and swallowed so one bad update cannot stall the loop.
func (p *Poller) process(ctx context.Context, u update) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic processing update",
				logx.Int64("update_id", u.UpdateID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	in := classify(u)
	switch in.kind {
	case inboundIgnore:
		return
	case inboundCommand, inboundSyncPayload:
	}

	// Only the configured owner may steer the bot. Unauthorized traffic is
	// dropped after a log line, never answered.
	if in.senderID != p.cfg.OwnerID {
		p.log.Warn("update from unauthorized sender dropped",
			logx.Int64("sender", in.senderID),
			logx.Int64("update_id", u.UpdateID))
		return
	}

	switch in.kind {
	case inboundCommand:
		p.cmds.Handle(ctx, in.text)
	case inboundSyncPayload:
		payload, err := syncops.Decode(in.data)
		if err != nil {
			p.log.Error("bad sync payload", logx.Int64("update_id", u.UpdateID), logx.Err(err))
			return
		}
		p.sync.Apply(ctx, payload)
	}
}
