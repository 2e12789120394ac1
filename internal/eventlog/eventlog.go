// Package eventlog is the local, structured event store backing the
// EventSink capability: one row per significant state transition the core
// emits (repo.created, workpad.promoted, tests.finished, ...).
package eventlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sologit/sologit/internal/capability"
)

// Event is an alias for the shared capability.Event so DB.Publish satisfies
// capability.EventSink without a wrapper type.
type Event = capability.Event

// DB wraps the SQLite connection backing the local event log.
type DB struct {
	conn *sql.DB
	path string
}

// DefaultPath returns <baseDir>/logs/events.db, creating the directory if
// needed.
func DefaultPath(baseDir string) (string, error) {
	dir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "events.db"), nil
}

// Open opens or creates the event database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	db := &DB{conn: conn, path: path}
	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.conn.Close() }

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_id     TEXT NOT NULL,
    workpad_id  TEXT,
    kind        TEXT NOT NULL,
    detail      TEXT,
    timestamp   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_repo ON events(repo_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_workpad ON events(workpad_id, timestamp DESC);
`

// Migrate applies the event log schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	for _, t := range []string{"events", "schema_version"} {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}

// Publish inserts one event row. It implements EventSink.
func (d *DB) Publish(e Event) error {
	_, err := d.conn.Exec(
		`INSERT INTO events (repo_id, workpad_id, kind, detail) VALUES (?, ?, ?, ?)`,
		e.RepoID, nullable(e.WorkpadID), e.Kind, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("publish event %s: %w", e.Kind, err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// LoggedEvent is one row read back from the event log, including its
// server-assigned timestamp.
type LoggedEvent struct {
	Event
	Timestamp string
}

// Since returns every event for repoID recorded at or after the given
// timestamp (RFC3339 or SQLite datetime string), ordered oldest first.
// This backs Repository.GetOperationalLog.
func (d *DB) Since(repoID string, since string) ([]LoggedEvent, error) {
	rows, err := d.conn.Query(
		`SELECT repo_id, workpad_id, kind, detail, timestamp
		 FROM events WHERE repo_id = ? AND timestamp >= datetime(?) ORDER BY timestamp ASC, id ASC`,
		repoID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query events since %s: %w", since, err)
	}
	defer rows.Close()

	var out []LoggedEvent
	for rows.Next() {
		var e LoggedEvent
		var workpadID sql.NullString
		if err := rows.Scan(&e.RepoID, &workpadID, &e.Kind, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if workpadID.Valid {
			e.WorkpadID = workpadID.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
