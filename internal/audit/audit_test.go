package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chanwatch/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "history.db"), logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRecordAndCount(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.RecordAlert(ctx, -100123, []string{"BTC"}, false); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if err := st.RecordAlert(ctx, -100123, []string{"BTC", "ETH"}, true); err != nil {
		t.Fatalf("RecordAlert suppressed: %v", err)
	}
	if err := st.RecordCommand(ctx, "insert", "BTC", true); err != nil {
		t.Fatalf("RecordCommand: %v", err)
	}

	stats, err := st.Counts(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if stats.Alerts != 1 || stats.Suppressed != 1 || stats.Commands != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCountsHonorWindow(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.RecordAlert(ctx, 1, []string{"XRP"}, false); err != nil {
		t.Fatal(err)
	}

	stats, err := st.Counts(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Alerts != 0 || stats.Commands != 0 {
		t.Fatalf("future cutoff must count nothing, got %+v", stats)
	}
}

func TestNilStoreIsDisabledNotFatal(t *testing.T) {
	t.Parallel()
	var st *Store

	if err := st.RecordAlert(context.Background(), 1, nil, false); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if err := st.RecordCommand(context.Background(), "list", "", true); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if _, err := st.Counts(context.Background(), time.Now()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("nil Close must be a no-op, got %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open("  ", logx.Nop()); err == nil {
		t.Fatal("blank path must be rejected")
	}
}
