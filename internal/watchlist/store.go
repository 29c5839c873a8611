package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"chanwatch/pkg/logx"
)

// Syncer pushes the persisted watch list to an external durability mirror
// (e.g. a git remote). It is invoked fire-and-forget after every successful
// save; a sync failure never rolls back the local write.
type Syncer interface {
	Sync(ctx context.Context, path string)
}

// Store reads and writes the watch-list file.
//
// There is deliberately no in-memory cache: every Load reflects the latest
// on-disk state, which is what makes changes visible to the next matching
// decision without any cross-component signaling. The mutex serializes
// concurrent load/save pairs from the poller and the stream listener.
type Store struct {
	path   string
	log    logx.Logger
	syncer Syncer

	mu chan struct{} // 1-slot semaphore so lock acquisition can honor ctx
}

func NewStore(path string, log logx.Logger, syncer Syncer) *Store {
	s := &Store{path: path, log: log, syncer: syncer, mu: make(chan struct{}, 1)}
	s.mu <- struct{}{}
	return s
}

func (s *Store) Path() string { return s.path }

// Lock acquires the store for a load-mutate-save sequence. The returned
// function releases it. Returns false if ctx was canceled first.
func (s *Store) Lock(ctx context.Context) (func(), bool) {
	select {
	case <-s.mu:
		return func() { s.mu <- struct{}{} }, true
	case <-ctx.Done():
		return nil, false
	}
}

// Load reads the watch list from disk. It never fails the caller: a missing
// file yields the empty default, and read/parse errors are logged and also
// degrade to the default.
func (s *Store) Load(ctx context.Context) *Config {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Error("watchlist read failed", logx.String("path", s.path), logx.Err(err))
		}
		return Default()
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		s.log.Error("watchlist parse failed", logx.String("path", s.path), logx.Err(err))
		return Default()
	}
	if cfg.MonitoredChannels == nil {
		cfg.MonitoredChannels = []int64{}
	}
	if cfg.Keywords == nil {
		cfg.Keywords = []string{}
	}
	if cfg.Excluded == nil {
		cfg.Excluded = []string{}
	}
	return &cfg
}

// Save atomically replaces the on-disk watch list (temp file + rename) and,
// on success, kicks the external syncer in the background. Callers must not
// assume success.
func (s *Store) Save(ctx context.Context, cfg *Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		s.log.Error("watchlist marshal failed", logx.Err(err))
		return err
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".watchlist-*.json")
	if err != nil {
		s.log.Error("watchlist temp create failed", logx.String("dir", dir), logx.Err(err))
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		s.log.Error("watchlist write failed", logx.Err(err))
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		s.log.Error("watchlist close failed", logx.Err(err))
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		s.log.Error("watchlist rename failed", logx.String("path", s.path), logx.Err(err))
		return err
	}

	if s.syncer != nil {
		go s.syncer.Sync(context.WithoutCancel(ctx), s.path)
	}
	return nil
}
