package watchlist

import (
	"reflect"
	"testing"
)

func TestAddKeywordIdempotent(t *testing.T) {
	t.Parallel()
	cfg := Default()

	if !cfg.AddKeyword("btc") {
		t.Fatal("first insert should change the list")
	}
	if cfg.AddKeyword("BTC") {
		t.Fatal("second insert must be a no-op")
	}
	if !reflect.DeepEqual(cfg.Keywords, []string{"BTC"}) {
		t.Fatalf("Keywords = %v, want [BTC]", cfg.Keywords)
	}
}

func TestListsAreIndependent(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.AddKeyword("BTC")
	cfg.AddExcluded("BTC")

	if !cfg.HasKeyword("btc") || !cfg.HasExcluded("btc") {
		t.Fatal("same token must be allowed in both lists")
	}
	if !cfg.RemoveKeyword("BTC") {
		t.Fatal("keyword removal failed")
	}
	if !cfg.HasExcluded("BTC") {
		t.Fatal("removing a keyword must not touch the exclusion list")
	}
}

func TestRemoveMissing(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.AddKeyword("BTC")

	if cfg.RemoveKeyword("XRP") {
		t.Fatal("removing an absent token should report false")
	}
	if !reflect.DeepEqual(cfg.Keywords, []string{"BTC"}) {
		t.Fatalf("Keywords = %v, want [BTC]", cfg.Keywords)
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	t.Parallel()
	cfg := Default()
	for _, kw := range []string{"zeta", "alpha", "mid"} {
		cfg.AddKeyword(kw)
	}
	want := []string{"ZETA", "ALPHA", "MID"}
	if !reflect.DeepEqual(cfg.Keywords, want) {
		t.Fatalf("Keywords = %v, want %v", cfg.Keywords, want)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	if got := Normalize("  btc "); got != "BTC" {
		t.Fatalf("Normalize = %q, want BTC", got)
	}
	cfg := Default()
	if cfg.AddKeyword("   ") {
		t.Fatal("blank token must not be added")
	}
}
