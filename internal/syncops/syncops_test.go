package syncops

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"chanwatch/internal/watchlist"
	"chanwatch/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no notification was sent")
	}
	return f.sent[len(f.sent)-1]
}

func newApplier(t *testing.T) (*Applier, *watchlist.Store, *fakeSender) {
	t.Helper()
	store := watchlist.NewStore(filepath.Join(t.TempDir(), "wl.json"), logx.Nop(), nil)
	out := &fakeSender{}
	return New(store, out, logx.Nop()), store, out
}

func TestDecode(t *testing.T) {
	t.Parallel()
	p, err := Decode([]byte(`{"action":"sync_config","add":["eth"],"remove":["btc"]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Action != ActionSyncConfig || len(p.Add) != 1 || len(p.Remove) != 1 {
		t.Fatalf("unexpected payload: %+v", p)
	}

	if _, err := Decode([]byte(`{"action":"drop_tables"}`)); err == nil {
		t.Fatal("unknown action must be rejected")
	}
	if _, err := Decode([]byte(`{broken`)); err == nil {
		t.Fatal("malformed JSON must be rejected")
	}
}

func TestApplyAddAndRemove(t *testing.T) {
	t.Parallel()
	a, store, out := newApplier(t)
	ctx := context.Background()

	seed := watchlist.Default()
	seed.AddKeyword("BTC")
	seed.AddKeyword("XRP")
	if err := store.Save(ctx, seed); err != nil {
		t.Fatal(err)
	}

	res := a.Apply(ctx, Payload{Action: ActionSyncConfig, Add: []string{"eth"}, Remove: []string{"xrp"}})
	if !reflect.DeepEqual(res.Added, []string{"ETH"}) {
		t.Fatalf("Added = %v", res.Added)
	}
	if !reflect.DeepEqual(res.Removed, []string{"XRP"}) {
		t.Fatalf("Removed = %v", res.Removed)
	}

	cfg := store.Load(ctx)
	if !reflect.DeepEqual(cfg.Keywords, []string{"BTC", "ETH"}) {
		t.Fatalf("Keywords = %v", cfg.Keywords)
	}
	if !strings.Contains(out.last(t), "Panel update applied") {
		t.Fatalf("unexpected summary: %q", out.last(t))
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()
	a, _, out := newApplier(t)
	ctx := context.Background()

	p := Payload{Action: ActionSyncConfig, Add: []string{"btc", "eth"}, Remove: []string{"doge"}}

	first := a.Apply(ctx, p)
	if !first.Changed() {
		t.Fatal("first application must report changes")
	}

	second := a.Apply(ctx, p)
	if second.Changed() {
		t.Fatalf("second application must be empty, got %+v", second)
	}
	if !strings.Contains(out.last(t), "No changes") {
		t.Fatalf("expected no-op notification, got %q", out.last(t))
	}
}

// lockCheckingSender acquires the store lock inside Send, proving the applier
// released it before dispatching the notification.
type lockCheckingSender struct {
	t     *testing.T
	store *watchlist.Store

	mu    sync.Mutex
	calls int
}

func (s *lockCheckingSender) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlock, ok := s.store.Lock(lctx)
	if !ok {
		s.t.Error("store lock still held while the notification was being sent")
		return nil
	}
	unlock()
	return nil
}

func TestApplyReleasesLockBeforeNotify(t *testing.T) {
	t.Parallel()
	store := watchlist.NewStore(filepath.Join(t.TempDir(), "wl.json"), logx.Nop(), nil)
	out := &lockCheckingSender{t: t, store: store}
	a := New(store, out, logx.Nop())
	ctx := context.Background()

	a.Apply(ctx, Payload{Action: ActionSyncConfig, Add: []string{"btc"}})
	// Replay takes the no-change reply path, which must also run unlocked.
	a.Apply(ctx, Payload{Action: ActionSyncConfig, Add: []string{"btc"}})

	out.mu.Lock()
	defer out.mu.Unlock()
	if out.calls != 2 {
		t.Fatalf("expected one notification per apply, got %d", out.calls)
	}
}

func TestRemovePrefersKeywordsOverExcluded(t *testing.T) {
	t.Parallel()
	a, store, _ := newApplier(t)
	ctx := context.Background()

	seed := watchlist.Default()
	seed.AddKeyword("BTC")
	seed.AddExcluded("BTC")
	if err := store.Save(ctx, seed); err != nil {
		t.Fatal(err)
	}

	res := a.Apply(ctx, Payload{Action: ActionSyncConfig, Remove: []string{"btc"}})
	if !reflect.DeepEqual(res.Removed, []string{"BTC"}) {
		t.Fatalf("Removed = %v, want keyword-list removal only", res.Removed)
	}

	cfg := store.Load(ctx)
	if cfg.HasKeyword("BTC") {
		t.Fatal("keyword should be gone")
	}
	if !cfg.HasExcluded("BTC") {
		t.Fatal("exclusion entry must survive when the keyword list matched first")
	}
}

func TestRemoveFallsBackToExcluded(t *testing.T) {
	t.Parallel()
	a, store, _ := newApplier(t)
	ctx := context.Background()

	seed := watchlist.Default()
	seed.AddExcluded("SPAM")
	if err := store.Save(ctx, seed); err != nil {
		t.Fatal(err)
	}

	res := a.Apply(ctx, Payload{Action: ActionSyncConfig, Remove: []string{"spam"}})
	if !reflect.DeepEqual(res.Removed, []string{"SPAM (excluded)"}) {
		t.Fatalf("Removed = %v, want marked exclusion removal", res.Removed)
	}
	if store.Load(ctx).HasExcluded("SPAM") {
		t.Fatal("exclusion entry should be gone")
	}
}
