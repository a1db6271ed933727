// Package record provides the SQLite-backed server store of ingested
// captures. Records are created only through the reconciliation service,
// never twice for the same client id.
package record

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/dstanfill/inkwell/internal/capture"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	audio_ref   TEXT NOT NULL DEFAULT '',
	context     TEXT NOT NULL DEFAULT '{}',
	captured_at DATETIME NOT NULL,
	source      TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_fingerprint ON records(fingerprint, captured_at);
CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at DESC);
`

// ErrDuplicateID reports an insert that collided with an existing record's
// primary key. The reconciliation service reclassifies these as duplicates.
var ErrDuplicateID = errors.New("record: duplicate id")

// Record is a persisted capture on the server. ID is the client-assigned
// idempotency key; Fingerprint is the content half of the dedup key.
type Record struct {
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Fingerprint string            `json:"-"`
	AudioRef    string            `json:"audio_ref,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	CapturedAt  time.Time         `json:"captured_at"`
	Source      capture.Source    `json:"source"`
	CreatedAt   time.Time         `json:"created_at"`
}

// DB wraps a sql.DB with record store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the record database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("record: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("record: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("record: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Insert stores a new record. A primary-key collision is reported as
// ErrDuplicateID so concurrent retries of the same capture stay idempotent.
func (db *DB) Insert(r Record) error {
	ctxJSON, err := json.Marshal(r.Context)
	if err != nil {
		return fmt.Errorf("record: marshal context: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO records (id, text, fingerprint, audio_ref, context, captured_at, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Text, r.Fingerprint, r.AudioRef, string(ctxJSON), r.CapturedAt, r.Source, r.CreatedAt)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return ErrDuplicateID
		}
		return fmt.Errorf("record: insert: %w", err)
	}
	return nil
}

// GetByID returns the record with the given client id, or nil when absent.
func (db *DB) GetByID(id string) (*Record, error) {
	row := db.conn.QueryRow(`
		SELECT id, text, fingerprint, audio_ref, context, captured_at, source, created_at
		FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByContent returns the earliest-created record whose fingerprint
// matches and whose capture time falls within the window around at. The
// oldest match is authoritative; later near-duplicates merge into it.
func (db *DB) FindByContent(fingerprint string, at time.Time, window time.Duration) (*Record, error) {
	row := db.conn.QueryRow(`
		SELECT id, text, fingerprint, audio_ref, context, captured_at, source, created_at
		FROM records
		WHERE fingerprint = ? AND captured_at BETWEEN ? AND ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, fingerprint, at.Add(-window), at.Add(window))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecent returns records newest-first with the total count.
func (db *DB) ListRecent(limit, offset int) ([]Record, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("record: count: %w", err)
	}
	rows, err := db.conn.Query(`
		SELECT id, text, fingerprint, audio_ref, context, captured_at, source, created_at
		FROM records
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("record: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r       Record
		ctxJSON string
	)
	err := row.Scan(&r.ID, &r.Text, &r.Fingerprint, &r.AudioRef, &ctxJSON, &r.CapturedAt, &r.Source, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	if ctxJSON != "" && ctxJSON != "{}" && ctxJSON != "null" {
		if err := json.Unmarshal([]byte(ctxJSON), &r.Context); err != nil {
			return r, fmt.Errorf("record: unmarshal context: %w", err)
		}
	}
	return r, nil
}
