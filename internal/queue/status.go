package queue

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncStatus is the process-wide sync state persisted alongside the queue
// so it survives restarts. It is written only by the sync engine; status
// consumers get read-only copies.
type SyncStatus struct {
	Online     bool      `json:"online"`
	LastSyncAt time.Time `json:"last_sync_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// LoadStatus reads the persisted sync status.
func (db *DB) LoadStatus() (SyncStatus, error) {
	var (
		s      SyncStatus
		online int
		last   sql.NullTime
	)
	err := db.conn.QueryRow(`SELECT online, last_sync_at, last_error FROM sync_meta WHERE id = 1`).
		Scan(&online, &last, &s.LastError)
	if err != nil {
		return s, fmt.Errorf("queue: load status: %w", err)
	}
	s.Online = online != 0
	if last.Valid {
		s.LastSyncAt = last.Time
	}
	return s, nil
}

// SaveStatus persists the sync status.
func (db *DB) SaveStatus(s SyncStatus) error {
	online := 0
	if s.Online {
		online = 1
	}
	var last any
	if !s.LastSyncAt.IsZero() {
		last = s.LastSyncAt
	}
	if _, err := db.conn.Exec(`UPDATE sync_meta SET online = ?, last_sync_at = ?, last_error = ? WHERE id = 1`,
		online, last, s.LastError); err != nil {
		return fmt.Errorf("queue: save status: %w", err)
	}
	return nil
}
