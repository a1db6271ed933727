// Package queue provides the durable SQLite-backed capture queue and its
// persisted sync metadata. Every mutating call commits before returning;
// there is no in-memory-only state to lose on a crash.
package queue

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	audio_ref   TEXT NOT NULL DEFAULT '',
	context     TEXT NOT NULL DEFAULT '{}',
	captured_at DATETIME NOT NULL,
	source      TEXT NOT NULL,
	sync_state  TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	synced_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_captures_state ON captures(sync_state, captured_at DESC);

CREATE TABLE IF NOT EXISTS sync_meta (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	online       INTEGER NOT NULL DEFAULT 0,
	last_sync_at DATETIME,
	last_error   TEXT NOT NULL DEFAULT ''
);

INSERT OR IGNORE INTO sync_meta (id) VALUES (1);
`

// Defaults used when Open is given zero limits.
const (
	DefaultMaxEntries = 1000
	DefaultMaxRetries = 3
	DefaultRetain     = 100
)

// DB wraps a sql.DB with capture-queue operations.
type DB struct {
	conn       *sql.DB
	maxEntries int
	maxRetries int
}

// Open opens (or creates) the queue database and applies the schema.
// maxEntries caps the total queue size; maxRetries is the per-capture
// rejection cap before a capture is abandoned. Zero values pick defaults.
func Open(dsn string, maxEntries, maxRetries int) (*DB, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("queue: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: apply schema: %w", err)
	}
	return &DB{conn: conn, maxEntries: maxEntries, maxRetries: maxRetries}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
