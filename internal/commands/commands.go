// Package commands implements the owner command set that mutates and
// inspects the watch list over the notification channel.
package commands

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"chanwatch/internal/audit"
	"chanwatch/internal/watchlist"
	"chanwatch/pkg/logx"
	"chanwatch/pkg/tghtml"
)

// Sender is the reply channel back to the trusted recipient.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type Handler struct {
	store *watchlist.Store
	out   Sender
	hist  *audit.Store
	log   logx.Logger

	panelURL  string
	env       string
	startedAt time.Time
}

type Deps struct {
	Store    *watchlist.Store
	Out      Sender
	History  *audit.Store
	Log      logx.Logger
	PanelURL string
	Env      string
}

func New(d Deps) *Handler {
	return &Handler{
		store:     d.Store,
		out:       d.Out,
		hist:      d.History,
		log:       d.Log,
		panelURL:  d.PanelURL,
		env:       d.Env,
		startedAt: time.Now(),
	}
}

// Handle parses and executes one inbound text. Non-command text and unknown
// verbs are ignored without a reply. The sender has already been authorized
// by the poller.
func (h *Handler) Handle(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	verb := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(verb, '@'); i >= 0 {
		verb = verb[:i]
	}
	arg := ""
	if len(parts) > 1 {
		arg = watchlist.Normalize(parts[1])
	}

	var reply string
	ok := true
	switch verb {
	case "insert":
		reply, ok = h.insert(ctx, arg)
	case "remove":
		reply, ok = h.remove(ctx, arg)
	case "exclude":
		reply, ok = h.exclude(ctx, arg)
	case "include":
		reply, ok = h.include(ctx, arg)
	case "list":
		reply = h.list(ctx)
	case "status":
		reply = h.status(ctx)
	case "panel":
		reply = h.panel()
	case "help":
		reply = helpText()
	default:
		return
	}

	if err := h.hist.RecordCommand(ctx, verb, arg, ok); err != nil {
		h.log.Debug("command not recorded", logx.String("verb", verb), logx.Err(err))
	}
	if reply == "" {
		return
	}
	if err := h.out.Send(ctx, reply); err != nil {
		h.log.Error("command reply not delivered", logx.String("verb", verb), logx.Err(err))
	}
}

func (h *Handler) insert(ctx context.Context, arg string) (string, bool) {
	if arg == "" {
		return usage("/insert TOKEN"), false
	}
	return h.mutate(ctx, func(cfg *watchlist.Config) (string, bool, bool) {
		if !cfg.AddKeyword(arg) {
			return info("Token " + arg + " is already on the list."), false, true
		}
		return confirm("Token", arg, "added to the watch list."), true, true
	})
}

func (h *Handler) remove(ctx context.Context, arg string) (string, bool) {
	if arg == "" {
		return usage("/remove TOKEN"), false
	}
	return h.mutate(ctx, func(cfg *watchlist.Config) (string, bool, bool) {
		if !cfg.RemoveKeyword(arg) {
			return info("Token " + arg + " is not on the list."), false, false
		}
		return confirm("Token", arg, "removed from the watch list."), true, true
	})
}

func (h *Handler) exclude(ctx context.Context, arg string) (string, bool) {
	if arg == "" {
		return usage("/exclude WORD"), false
	}
	return h.mutate(ctx, func(cfg *watchlist.Config) (string, bool, bool) {
		if !cfg.AddExcluded(arg) {
			return info("Word " + arg + " is already excluded."), false, true
		}
		return confirm("Word", arg, "added to the exclusion list."), true, true
	})
}

func (h *Handler) include(ctx context.Context, arg string) (string, bool) {
	if arg == "" {
		return usage("/include WORD"), false
	}
	return h.mutate(ctx, func(cfg *watchlist.Config) (string, bool, bool) {
		if !cfg.RemoveExcluded(arg) {
			return info("Word " + arg + " is not on the exclusion list."), false, false
		}
		return confirm("Word", arg, "removed from the exclusion list (monitored again)."), true, true
	})
}

// mutate runs fn against a freshly loaded watch list under the store lock and
// persists only when fn changed something. On a failed save the in-memory
// change is discarded, so nothing is considered committed.
func (h *Handler) mutate(ctx context.Context, fn func(cfg *watchlist.Config) (reply string, changed, ok bool)) (string, bool) {
	unlock, locked := h.store.Lock(ctx)
	if !locked {
		return "", false
	}
	defer unlock()

	cfg := h.store.Load(ctx)
	reply, changed, ok := fn(cfg)
	if !changed {
		return reply, ok
	}
	if err := h.store.Save(ctx, cfg); err != nil {
		return errText("Failed to save configuration."), false
	}
	return reply, ok
}

func (h *Handler) list(ctx context.Context) string {
	cfg := h.store.Load(ctx)
	return tghtml.Join("\n",
		tghtml.B("Current watch list"),
		tghtml.Join(" ", tghtml.B("Keywords:"), tghtml.Esc(orDash(cfg.Keywords))),
		tghtml.Join(" ", tghtml.B("Excluded:"), tghtml.Esc(orDash(cfg.Excluded))),
	).String()
}

func (h *Handler) status(ctx context.Context) string {
	cfg := h.store.Load(ctx)

	lines := []tghtml.H{
		tghtml.B("Monitor status"),
		tghtml.Esc(fmt.Sprintf("env: %s (%s, %s/%s)", h.env, runtime.Version(), runtime.GOOS, runtime.GOARCH)),
		tghtml.Esc("uptime: " + time.Since(h.startedAt).Round(time.Second).String()),
		tghtml.Esc("channels: " + orDashIDs(cfg.MonitoredChannels)),
		tghtml.Esc(fmt.Sprintf("keywords: %d, excluded: %d",
			len(cfg.Keywords), len(cfg.Excluded))),
	}
	if st, err := h.hist.Counts(ctx, time.Now().Add(-24*time.Hour)); err == nil {
		lines = append(lines, tghtml.Esc(fmt.Sprintf("last 24h: %d alerts, %d suppressed, %d commands",
			st.Alerts, st.Suppressed, st.Commands)))
	}
	return tghtml.Join("\n", lines...).String()
}

func (h *Handler) panel() string {
	if strings.TrimSpace(h.panelURL) == "" {
		return info("No control panel configured.")
	}
	return tghtml.Join("\n",
		tghtml.B("Control panel"),
		tghtml.Esc(h.panelURL),
	).String()
}

func helpText() string {
	return tghtml.Join("\n",
		tghtml.B("Commands"),
		tghtml.Esc("/insert TOKEN - watch a keyword"),
		tghtml.Esc("/remove TOKEN - stop watching a keyword"),
		tghtml.Esc("/exclude WORD - suppress alerts containing a word"),
		tghtml.Esc("/include WORD - lift a suppression"),
		tghtml.Esc("/list - show both lists"),
		tghtml.Esc("/status - runtime and counters"),
		tghtml.Esc("/panel - control panel link"),
	).String()
}

func confirm(noun, arg, rest string) string {
	return tghtml.Join(" ", tghtml.Esc(noun), tghtml.B(arg), tghtml.Esc(rest)).String()
}

func info(s string) string    { return tghtml.Esc(s).String() }
func errText(s string) string { return tghtml.Esc(s).String() }
func usage(s string) string   { return tghtml.Esc("Usage: " + s).String() }

func orDash(list []string) string {
	if len(list) == 0 {
		return "(none)"
	}
	return strings.Join(list, ", ")
}

func orDashIDs(ids []int64) string {
	if len(ids) == 0 {
		return "(none)"
	}
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(ss, ", ")
}
