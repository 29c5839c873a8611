// Package settings loads the operator settings file (YAML or JSON) and
// republishes it on change. The watch list itself lives elsewhere; this file
// covers credentials, paths, timings and logging.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Settings struct {
	Env      string `json:"env"`
	PanelURL string `json:"panel_url"`
	// SyncCommand, when set, is run after every successful watch-list save
	// with the file path appended (e.g. a git commit-and-push script).
	SyncCommand string `json:"sync_command"`

	Telegram TelegramSettings `json:"telegram"`
	Logging  LoggingSettings  `json:"logging"`
	Paths    PathSettings     `json:"paths"`
	Digest   DigestSettings   `json:"digest"`
}

type TelegramSettings struct {
	BotToken string `json:"bot_token"`
	// StreamBotToken is the dedicated credential for the channel listener
	// session. Telegram hands each getUpdates batch to exactly one consumer
	// per token, so the command poller and the listener must never share one.
	StreamBotToken string `json:"stream_bot_token"`
	OwnerChatID    int64  `json:"owner_chat_id"`

	// Durations are strings like "30s"; zero values fall back to defaults.
	PollTimeout       string `json:"poll_timeout"`
	PollBackoff       string `json:"poll_backoff"`
	ReconnectDelay    string `json:"reconnect_delay"`
	StreamPollTimeout string `json:"stream_poll_timeout"`
}

type LoggingSettings struct {
	Level   string          `json:"level"`
	Console bool            `json:"console"`
	File    LogFileSettings `json:"file"`
}

type LogFileSettings struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type PathSettings struct {
	Watchlist string `json:"watchlist"`
	Lock      string `json:"lock"`
	AuditDB   string `json:"audit_db"`
}

type DigestSettings struct {
	// At is a local HH:MM; empty disables the daily digest.
	At string `json:"at"`
}

const (
	envBotToken       = "CHANWATCH_BOT_TOKEN"
	envStreamBotToken = "CHANWATCH_STREAM_BOT_TOKEN"
	envOwnerID        = "CHANWATCH_OWNER_ID"
)

// Parse strictly decodes raw settings bytes (YAML is coerced to JSON first so
// one DisallowUnknownFields decoder covers both formats), then overlays env
// secrets and defaults.
func Parse(path string, raw []byte) (*Settings, error) {
	jsonBytes, format, err := coerceToJSONBytes(path, raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	var s Settings
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("settings (%s): %w", format, err)
	}

	s.applyEnv()
	s.applyDefaults()
	return &s, nil
}

func (s *Settings) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envBotToken)); v != "" {
		s.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(envStreamBotToken)); v != "" {
		s.Telegram.StreamBotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(envOwnerID)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.Telegram.OwnerChatID = id
		}
	}
}

func (s *Settings) applyDefaults() {
	if s.Env == "" {
		s.Env = "local"
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "INFO"
	}
	if s.Paths.Watchlist == "" {
		s.Paths.Watchlist = "./monitor_config.json"
	}
	if s.Paths.Lock == "" {
		s.Paths.Lock = "./monitor_bot.lock"
	}
	if s.Paths.AuditDB == "" {
		s.Paths.AuditDB = "./chanwatch.db"
	}
}

// Validate reports fatal startup problems. Missing credentials keep the
// process from ever entering the main loop.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram.bot_token is required (or %s)", envBotToken)
	}
	if strings.TrimSpace(s.Telegram.StreamBotToken) == "" {
		return fmt.Errorf("telegram.stream_bot_token is required (or %s)", envStreamBotToken)
	}
	if strings.TrimSpace(s.Telegram.StreamBotToken) == strings.TrimSpace(s.Telegram.BotToken) {
		return fmt.Errorf("telegram.stream_bot_token must differ from telegram.bot_token: " +
			"two getUpdates consumers on one token steal each other's updates")
	}
	if s.Telegram.OwnerChatID == 0 {
		return fmt.Errorf("telegram.owner_chat_id is required (or %s)", envOwnerID)
	}
	if s.Digest.At != "" {
		if _, _, err := ParseHHMM(s.Digest.At); err != nil {
			return fmt.Errorf("digest.at: %w", err)
		}
	}
	for field, v := range map[string]string{
		"telegram.poll_timeout":        s.Telegram.PollTimeout,
		"telegram.poll_backoff":        s.Telegram.PollBackoff,
		"telegram.reconnect_delay":     s.Telegram.ReconnectDelay,
		"telegram.stream_poll_timeout": s.Telegram.StreamPollTimeout,
	} {
		if _, err := parseDuration(field, v, 0); err != nil {
			return err
		}
	}
	return nil
}

// Duration accessors with the original constants as defaults.

func (s *Settings) PollTimeout() time.Duration    { return mustDuration(s.Telegram.PollTimeout, 30*time.Second) }
func (s *Settings) PollBackoff() time.Duration    { return mustDuration(s.Telegram.PollBackoff, 5*time.Second) }
func (s *Settings) ReconnectDelay() time.Duration { return mustDuration(s.Telegram.ReconnectDelay, 10*time.Second) }
func (s *Settings) StreamPollTimeout() time.Duration {
	return mustDuration(s.Telegram.StreamPollTimeout, 10*time.Second)
}

func parseDuration(field, v string, def time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}

func mustDuration(v string, def time.Duration) time.Duration {
	d, err := parseDuration("", v, def)
	if err != nil || d == 0 {
		return def
	}
	return d
}

// ParseHHMM validates a "HH:MM" clock time.
func ParseHHMM(v string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hour, minute, nil
}
