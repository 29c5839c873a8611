// Package notifier delivers alert and reply messages to the trusted
// recipient through the Telegram Bot HTTP API.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chanwatch/pkg/logx"
)

// ErrNotConfigured is returned when the bot token or recipient chat id is
// missing. No network I/O is attempted in that case.
var ErrNotConfigured = errors.New("notifier: bot token or recipient not configured")

const defaultAPIBase = "https://api.telegram.org"

type Config struct {
	Token  string
	ChatID int64

	// APIBase overrides the Bot API endpoint (tests).
	APIBase string
	// RatePerSec caps outbound sends; defaults to 3 like the rest of the bot's
	// telegram traffic.
	RatePerSec int
}

// Dispatcher sends one message per call, no retries. Retry policy belongs to
// the caller (the stream listener falls back to the live session on failure).
type Dispatcher struct {
	cfg     Config
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Dispatcher {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	return &Dispatcher{
		cfg:     cfg,
		base:    base,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// Configured reports whether Send can do anything at all.
func (d *Dispatcher) Configured() bool {
	return strings.TrimSpace(d.cfg.Token) != "" && d.cfg.ChatID != 0
}

// Send posts text (HTML parse mode) to the trusted recipient.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	if !d.Configured() {
		return ErrNotConfigured
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := struct {
		ChatID    int64  `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}{ChatID: d.cfg.ChatID, Text: text, ParseMode: "HTML"}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := d.base + "/bot" + strings.TrimSpace(d.cfg.Token) + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram sendMessage failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram sendMessage failed: http=%d", resp.StatusCode)
	}
	return nil
}
