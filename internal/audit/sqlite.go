package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps execution history in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Sink = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the history database at path and runs
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; the CLI and server may share the file
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				ts TEXT NOT NULL,
				query_hash TEXT NOT NULL,
				action_id TEXT NOT NULL DEFAULT '',
				phrase TEXT NOT NULL DEFAULT '',
				distance REAL NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				exit_code INTEGER NOT NULL DEFAULT -1,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				server TEXT NOT NULL DEFAULT '',
				issue TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_executions_ts ON executions(ts DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_executions_action ON executions(action_id)`,
		},
	},
}

func (s *SQLiteStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Write(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
			(id, ts, query_hash, action_id, phrase, distance, status, exit_code, duration_ms, server, issue, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Time.UTC().Format(time.RFC3339Nano), r.QueryHash, r.ActionID, r.Phrase, r.Distance,
		r.Status, r.ExitCode, r.DurationMS, r.Server, r.Issue, r.Error)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, query_hash, action_id, phrase, distance, status, exit_code, duration_ms, server, issue, error
		FROM executions
		ORDER BY ts DESC, rowid DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r  Record
			ts string
		)
		if err := rows.Scan(&r.ID, &ts, &r.QueryHash, &r.ActionID, &r.Phrase, &r.Distance,
			&r.Status, &r.ExitCode, &r.DurationMS, &r.Server, &r.Issue, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if r.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
