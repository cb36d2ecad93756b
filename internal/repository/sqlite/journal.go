// Package sqlite implements repository.Journal on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"meshmap/internal/repository"

	_ "modernc.org/sqlite"
)

const (
	// DefaultLimit is used when Recent is called with a non-positive limit
	DefaultLimit = 100
	// MaxLimit caps a single Recent query
	MaxLimit = 1000
)

// Journal implements repository.Journal using SQLite
type Journal struct {
	db *sql.DB
}

var _ repository.Journal = (*Journal)(nil)

// New opens (creating if needed) the journal at dbPath. ":memory:" gives a
// private in-memory journal.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return j, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		sweep TEXT,
		occurred_at INTEGER NOT NULL,
		payload TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	CREATE INDEX IF NOT EXISTS idx_events_sweep ON events(sweep);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Append stores one entry
func (j *Journal) Append(ctx context.Context, e repository.Entry) (int64, error) {
	if e.Type == "" {
		return 0, fmt.Errorf("entry type required")
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}

	res, err := j.db.ExecContext(ctx, `
		INSERT INTO events (type, sweep, occurred_at, payload)
		VALUES (?, ?, ?, ?)
	`, e.Type, stringToNull(e.Sweep), e.Time.UnixNano(), payload)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}
	return id, nil
}

// Recent returns the newest entries first
func (j *Journal) Recent(ctx context.Context, limit int) ([]repository.Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, type, sweep, occurred_at, payload
		FROM events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	entries := make([]repository.Entry, 0, limit)
	for rows.Next() {
		var (
			e       repository.Entry
			sweep   sql.NullString
			nanos   int64
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &sweep, &nanos, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Sweep = nullToString(sweep)
		e.Time = time.Unix(0, nanos)
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
