package stream

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"chanwatch/internal/syncops"
	"chanwatch/internal/watchlist"
	"chanwatch/pkg/logx"
)

type fakeSession struct {
	events chan Event

	mu       sync.Mutex
	selfSent []string
}

func (f *fakeSession) Events() <-chan Event { return f.events }

func (f *fakeSession) SendSelf(ctx context.Context, text string) error {
	f.mu.Lock()
	f.selfSent = append(f.selfSent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeSession) Close() {}

type fakeOut struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeOut) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeOut) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newListener(t *testing.T, out *fakeOut) (*Listener, *watchlist.Store) {
	t.Helper()
	store := watchlist.NewStore(filepath.Join(t.TempDir(), "wl.json"), logx.Nop(), nil)
	sync := syncops.New(store, out, logx.Nop())
	l := NewListener(ListenerConfig{OwnerChatID: 42}, store, nil, out, sync, nil, logx.Nop())
	return l, store
}

func seedKeywords(t *testing.T, store *watchlist.Store, keywords, excluded []string) {
	t.Helper()
	cfg := watchlist.Default()
	for _, kw := range keywords {
		cfg.AddKeyword(kw)
	}
	for _, ex := range excluded {
		cfg.AddExcluded(ex)
	}
	if err := store.Save(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
}

func TestMatchingMessageIsForwarded(t *testing.T) {
	t.Parallel()
	out := &fakeOut{}
	l, store := newListener(t, out)
	seedKeywords(t, store, []string{"BTC"}, nil)
	sess := &fakeSession{events: make(chan Event, 1)}

	l.handleEvent(context.Background(), sess, Event{Kind: KindMessage, ChatID: -100, Text: "New ATH for BTC today"})

	if out.count() != 1 {
		t.Fatalf("expected one alert, got %d", out.count())
	}
	if len(sess.selfSent) != 0 {
		t.Fatal("fallback must not fire when the notifier succeeds")
	}
}

func TestSuppressedMessageIsSilent(t *testing.T) {
	t.Parallel()
	out := &fakeOut{}
	l, store := newListener(t, out)
	seedKeywords(t, store, []string{"BTC"}, []string{"SCAM"})
	sess := &fakeSession{events: make(chan Event, 1)}

	l.handleEvent(context.Background(), sess, Event{Kind: KindMessage, Text: "BTC SCAM alert"})

	if out.count() != 0 {
		t.Fatal("suppressed match must not be forwarded")
	}
}

func TestNonMatchingAndEmptyMessagesIgnored(t *testing.T) {
	t.Parallel()
	out := &fakeOut{}
	l, store := newListener(t, out)
	seedKeywords(t, store, []string{"BTC"}, nil)
	sess := &fakeSession{events: make(chan Event, 1)}
	ctx := context.Background()

	l.handleEvent(ctx, sess, Event{Kind: KindMessage, Text: "nothing to see"})
	l.handleEvent(ctx, sess, Event{Kind: KindMessage, Text: ""})

	if out.count() != 0 {
		t.Fatalf("expected silence, got %d sends", out.count())
	}
}

func TestDispatchFailureFallsBackToSession(t *testing.T) {
	t.Parallel()
	out := &fakeOut{err: errors.New("api down")}
	l, store := newListener(t, out)
	seedKeywords(t, store, []string{"BTC"}, nil)
	sess := &fakeSession{events: make(chan Event, 1)}

	l.handleEvent(context.Background(), sess, Event{Kind: KindMessage, Text: "BTC pumping"})

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.selfSent) != 1 {
		t.Fatalf("expected session fallback, got %d self-sends", len(sess.selfSent))
	}
}

func TestAppDataEventAppliesSync(t *testing.T) {
	t.Parallel()
	out := &fakeOut{}
	l, store := newListener(t, out)
	sess := &fakeSession{events: make(chan Event, 1)}
	ctx := context.Background()

	raw := json.RawMessage(`{"action":"sync_config","add":["doge"]}`)
	l.handleEvent(ctx, sess, Event{Kind: KindAppData, ChatID: 42, Data: raw})

	if !store.Load(ctx).HasKeyword("DOGE") {
		t.Fatal("in-band sync payload was not applied")
	}

	// Malformed payloads are dropped without disturbing state.
	l.handleEvent(ctx, sess, Event{Kind: KindAppData, ChatID: 42, Data: json.RawMessage(`{broken`)})
	if !store.Load(ctx).HasKeyword("DOGE") {
		t.Fatal("state must survive a malformed payload")
	}
}

func TestAppDataFromNonOwnerIgnored(t *testing.T) {
	t.Parallel()
	out := &fakeOut{}
	l, store := newListener(t, out)
	sess := &fakeSession{events: make(chan Event, 1)}
	ctx := context.Background()

	raw := json.RawMessage(`{"action":"sync_config","add":["doge"]}`)
	l.handleEvent(ctx, sess, Event{Kind: KindAppData, ChatID: 666, Data: raw})

	if store.Load(ctx).HasKeyword("DOGE") {
		t.Fatal("sync payload from a non-owner must not mutate the watch list")
	}
	if out.count() != 0 {
		t.Fatal("non-owner sender must not receive a reply")
	}
}

func TestKeywordEditsApplyWithoutReconnect(t *testing.T) {
	t.Parallel()
	out := &fakeOut{}
	l, store := newListener(t, out)
	sess := &fakeSession{events: make(chan Event, 1)}
	ctx := context.Background()

	l.handleEvent(ctx, sess, Event{Kind: KindMessage, Text: "ETH breakout"})
	if out.count() != 0 {
		t.Fatal("no keywords yet, nothing should be sent")
	}

	seedKeywords(t, store, []string{"ETH"}, nil)
	l.handleEvent(ctx, sess, Event{Kind: KindMessage, Text: "ETH breakout"})
	if out.count() != 1 {
		t.Fatal("keywords are read fresh per message")
	}
}
