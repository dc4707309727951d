// Package runlog records agent runs and the insights they produce in SQLite.
package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run or insight does not exist.
var ErrNotFound = errors.New("runlog: not found")

const schemaVersion = 1

// Store is the run log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the run log at path, creating the schema if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS runs (
		id                TEXT PRIMARY KEY,
		caller_id         TEXT NOT NULL,
		thread_id         TEXT NOT NULL,
		run_type          TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT 'running',
		tools_used_json   TEXT NOT NULL DEFAULT '[]',
		insights_count    INTEGER NOT NULL DEFAULT 0,
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT,
		started_at        INTEGER NOT NULL,
		completed_at      INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_caller ON runs(caller_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_thread ON runs(thread_id);

	CREATE TABLE IF NOT EXISTS insights (
		id             TEXT PRIMARY KEY,
		run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		caller_id      TEXT NOT NULL,
		category       TEXT NOT NULL,
		priority       TEXT NOT NULL CHECK (priority IN ('high', 'medium', 'low')),
		finding        TEXT NOT NULL,
		recommendation TEXT,
		status         TEXT NOT NULL DEFAULT 'active',
		created_at     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_insights_caller ON insights(caller_id, status, created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create run log schema: %w", err)
	}
	return ensureSchemaVersion(s.db, schemaVersion, "runs and insights")
}

func ensureSchemaVersion(db *sql.DB, version int, description string) error {
	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current.Valid && current.Int64 >= int64(version) {
		return nil
	}
	_, err := db.Exec("INSERT INTO schema_migrations (version, description) VALUES (?, ?)", version, description)
	return err
}
