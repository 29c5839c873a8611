package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the settings file: initial load, change watch, fan-out.
type Manager struct {
	path string

	mu   sync.RWMutex
	cur  *Settings
	subs []chan *Settings
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) Load() (*Settings, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(m.path, b)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) Get() *Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

func (m *Manager) Subscribe(buffer int) <-chan *Settings {
	ch := make(chan *Settings, buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) publish(s *Settings) {
	m.mu.RLock()
	subs := append([]chan *Settings{}, m.subs...)
	m.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			// drop for slow subscribers
		}
	}
}

// Watch republishes the settings when the file changes on disk. A reload
// that fails validation is dropped; the previous settings stay active.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	// debounce to avoid reading partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			s, err := m.Load()
			if err != nil || s == nil {
				return
			}
			if err := s.Validate(); err != nil {
				return
			}
			m.publish(s)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.Events:
			if ev.Name == filepath.Join(dir, file) {
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			}
		case <-w.Errors:
			// keep watching
		}
	}
}
