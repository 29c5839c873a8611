package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"chanwatch/internal/core"
	"chanwatch/internal/guard"
	"chanwatch/internal/settings"
	"chanwatch/pkg/logx"
)

func main() {
	var setPath string
	flag.StringVar(&setPath, "config", "./chanwatch.yaml", "path to settings file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.NewConsole("INFO")

	// Missing credentials must never reach the main loop.
	raw, err := os.ReadFile(setPath)
	if err != nil {
		boot.Error("cannot read settings", logx.String("path", setPath), logx.Err(err))
		os.Exit(1)
	}
	set, err := settings.Parse(setPath, raw)
	if err == nil {
		err = set.Validate()
	}
	if err != nil {
		boot.Error("fatal: invalid settings", logx.Err(err))
		os.Exit(1)
	}

	release, err := guard.Acquire(set.Paths.Lock, boot)
	if err != nil {
		if errors.Is(err, guard.ErrAlreadyRunning) {
			// Mirror the lock-holder's behavior: yield quietly.
			boot.Warn("exiting", logx.Err(err))
			os.Exit(0)
		}
		boot.Error("fatal: lock", logx.Err(err))
		os.Exit(1)
	}
	// os.Exit skips defers, so the lock is released explicitly on every path.
	fatal := func(msg string, err error) {
		boot.Error(msg, logx.Err(err))
		release()
		os.Exit(1)
	}

	app, err := core.NewApp(setPath)
	if err != nil {
		fatal("fatal", err)
	}

	if err := app.Start(ctx); err != nil {
		fatal("fatal start", err)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	// Wait for a signal or a fatal component error.
	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = app.Stop(stopCtx)
	release()
}
