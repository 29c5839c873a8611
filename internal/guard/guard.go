// Package guard enforces a single running monitor instance per host through
// a pidfile.
package guard

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"chanwatch/pkg/logx"
)

// ErrAlreadyRunning means a live process still holds the pidfile.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Acquire claims the pidfile at path. If the file names a process that is
// still alive, ErrAlreadyRunning is returned and nothing is written. A stale
// pidfile (dead or unparsable pid) is overwritten.
//
// The returned release function removes the file and must run on clean
// shutdown.
func Acquire(path string, log logx.Logger) (func(), error) {
	if b, err := os.ReadFile(path); err == nil {
		content := strings.TrimSpace(string(b))
		if pid, perr := strconv.Atoi(content); perr == nil && pid > 0 && pidAlive(pid) {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		if content != "" {
			log.Warn("stale lock file, taking over", logx.String("path", path), logx.String("content", content))
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	release := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error("lock file not removed", logx.String("path", path), logx.Err(err))
			return
		}
		log.Info("lock file removed")
	}
	return release, nil
}

// pidAlive probes the process with signal 0.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}
