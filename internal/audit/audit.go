// Package audit keeps a local history of alert decisions and executed
// commands. It backs the /status report and the daily digest; failures here
// are never fatal to the paths that record into it.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chanwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrDisabled = errors.New("audit store disabled")

// Stats are aggregate counts over a time window.
type Stats struct {
	Alerts     int64
	Suppressed int64
	Commands   int64
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open creates (or opens) the sqlite history database at path.
func Open(path string, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 3000")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordAlert stores one match decision.
func (s *Store) RecordAlert(ctx context.Context, chatID int64, keywords []string, suppressed bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts(at, chat_id, keywords, suppressed) VALUES(?,?,?,?)`,
		time.Now().Format(time.RFC3339Nano), chatID, strings.Join(keywords, ","), boolInt(suppressed),
	)
	return err
}

// RecordCommand stores one executed owner command.
func (s *Store) RecordCommand(ctx context.Context, verb, arg string, ok bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commands(at, verb, arg, ok) VALUES(?,?,?,?)`,
		time.Now().Format(time.RFC3339Nano), verb, nullStr(arg), boolInt(ok),
	)
	return err
}

// Counts returns aggregate stats since the given time.
func (s *Store) Counts(ctx context.Context, since time.Time) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, ErrDisabled
	}
	cutoff := since.Format(time.RFC3339Nano)

	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(CASE WHEN suppressed = 0 THEN 1 END),
		   COUNT(CASE WHEN suppressed = 1 THEN 1 END)
		 FROM alerts WHERE at >= ?`, cutoff).Scan(&st.Alerts, &st.Suppressed)
	if err != nil {
		return Stats{}, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM commands WHERE at >= ?`, cutoff).Scan(&st.Commands)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
