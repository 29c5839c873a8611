// Package syncops applies structured watch-list updates pushed from the
// control panel, whether they arrive over the Bot API long poll or embedded
// in a live-session service event.
package syncops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chanwatch/internal/watchlist"
	"chanwatch/pkg/logx"
	"chanwatch/pkg/tghtml"
)

// ActionSyncConfig is the only payload action currently understood.
const ActionSyncConfig = "sync_config"

// Payload is the wire format of a panel push.
type Payload struct {
	Action string   `json:"action"`
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

// Result summarizes what one Apply actually changed. Replaying the same
// payload against an already-synced list yields an empty Result.
type Result struct {
	Added   []string
	Removed []string // entries removed from the exclusion list carry an " (excluded)" suffix
}

func (r Result) Changed() bool { return len(r.Added) > 0 || len(r.Removed) > 0 }

// Sender is the reply channel back to the trusted recipient.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Applier runs the sync procedure against the shared store.
type Applier struct {
	store *watchlist.Store
	out   Sender
	log   logx.Logger
}

func New(store *watchlist.Store, out Sender, log logx.Logger) *Applier {
	return &Applier{store: store, out: out, log: log}
}

// Decode parses raw JSON into a Payload, rejecting unknown actions.
func Decode(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("sync payload: %w", err)
	}
	if p.Action != ActionSyncConfig {
		return Payload{}, fmt.Errorf("sync payload: unknown action %q", p.Action)
	}
	return p, nil
}

// Apply loads the watch list, applies additions then removals, persists when
// something changed, and notifies the recipient of the outcome. Additions
// only ever target the keyword list; removals prefer the keyword list and
// fall back to the exclusion list, never both for one token.
func (a *Applier) Apply(ctx context.Context, p Payload) Result {
	unlock, ok := a.store.Lock(ctx)
	if !ok {
		return Result{}
	}

	cfg := a.store.Load(ctx)

	var res Result
	for _, t := range p.Add {
		if cfg.AddKeyword(t) {
			res.Added = append(res.Added, watchlist.Normalize(t))
		}
	}
	for _, t := range p.Remove {
		norm := watchlist.Normalize(t)
		if cfg.RemoveKeyword(t) {
			res.Removed = append(res.Removed, norm)
		} else if cfg.RemoveExcluded(t) {
			res.Removed = append(res.Removed, norm+" (excluded)")
		}
	}

	var saveErr error
	if res.Changed() {
		saveErr = a.store.Save(ctx, cfg)
	}
	// The reply can block on the rate limiter and a slow HTTP round trip;
	// it must never run under the store lock.
	unlock()

	if !res.Changed() {
		a.reply(ctx, "No changes were needed.")
		return res
	}
	if saveErr != nil {
		a.log.Error("sync save failed", logx.Err(saveErr))
		a.reply(ctx, "Failed to save the panel update.")
		return res
	}

	a.log.Info("panel sync applied",
		logx.Strings("added", res.Added),
		logx.Strings("removed", res.Removed))
	a.reply(ctx, summary(res))
	return res
}

func summary(res Result) string {
	lines := []tghtml.H{tghtml.B("Panel update applied")}
	if len(res.Added) > 0 {
		lines = append(lines, tghtml.Join(" ", tghtml.Esc("Added:"), tghtml.Code(strings.Join(res.Added, ", "))))
	}
	if len(res.Removed) > 0 {
		lines = append(lines, tghtml.Join(" ", tghtml.Esc("Removed:"), tghtml.Code(strings.Join(res.Removed, ", "))))
	}
	return tghtml.Join("\n", lines...).String()
}

func (a *Applier) reply(ctx context.Context, text string) {
	if a.out == nil {
		return
	}
	if err := a.out.Send(ctx, text); err != nil {
		a.log.Warn("sync reply not delivered", logx.Err(err))
	}
}
