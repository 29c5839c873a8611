package watchlist

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"chanwatch/pkg/logx"
)

// CommandSyncer runs an operator-supplied command after every successful
// save, with the watch-list path appended as the last argument. Typical use
// is a small script that commits and pushes the file to a git remote.
type CommandSyncer struct {
	argv    []string
	timeout time.Duration
	log     logx.Logger
}

// NewCommandSyncer builds a syncer from a whitespace-split command line.
// Returns nil when the command line is empty (syncing disabled).
func NewCommandSyncer(cmdline string, log logx.Logger) *CommandSyncer {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return nil
	}
	return &CommandSyncer{argv: argv, timeout: 30 * time.Second, log: log}
}

func (c *CommandSyncer) Sync(ctx context.Context, path string) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string{}, c.argv[1:]...), path)
	cmd := exec.CommandContext(cctx, c.argv[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		c.log.Error("watchlist sync command failed",
			logx.String("cmd", c.argv[0]),
			logx.String("output", logx.Truncate(strings.TrimSpace(string(out)), 600)),
			logx.Err(err))
		return
	}
	c.log.Info("watchlist synced to remote", logx.String("cmd", c.argv[0]))
}
