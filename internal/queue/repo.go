package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dstanfill/inkwell/internal/apperr"
	"github.com/dstanfill/inkwell/internal/capture"
)

// VerdictKind classifies the per-capture outcome of a sync batch.
type VerdictKind string

const (
	VerdictSynced    VerdictKind = "synced"
	VerdictDuplicate VerdictKind = "duplicate"
	VerdictFailed    VerdictKind = "failed"
)

// Verdict is the outcome applied to one capture after a sync attempt.
type Verdict struct {
	Kind  VerdictKind
	Error string
}

// ApplyStats summarizes one ApplyVerdicts call.
type ApplyStats struct {
	Synced    int
	Failed    int
	Abandoned int
	Unknown   int
}

// Append inserts a new pending capture, enforcing the queue cap. When the
// queue is full, the oldest synced rows are pruned to make room; pending,
// failed, and abandoned rows are never evicted. Returns
// apperr.ErrCapacityExceeded when no synced row can be freed.
func (db *DB) Append(c capture.Capture) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("queue: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var total int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&total); err != nil {
		return fmt.Errorf("queue: count: %w", err)
	}
	if total >= db.maxEntries {
		need := total - db.maxEntries + 1
		res, err := tx.Exec(`
			DELETE FROM captures WHERE id IN (
				SELECT id FROM captures
				WHERE sync_state = ?
				ORDER BY captured_at ASC, id ASC
				LIMIT ?
			)`, capture.StateSynced, need)
		if err != nil {
			return fmt.Errorf("queue: evict synced: %w", err)
		}
		freed, _ := res.RowsAffected()
		if int(freed) < need {
			return apperr.ErrCapacityExceeded
		}
	}

	ctxJSON, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("queue: marshal context: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO captures (id, text, audio_ref, context, captured_at, source, sync_state, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, c.ID, c.Text, c.AudioRef, string(ctxJSON), c.CapturedAt, c.Source, capture.StatePending)
	if err != nil {
		return fmt.Errorf("queue: insert capture: %w", err)
	}

	return tx.Commit()
}

// ListPending returns unsynced captures, newest-first. Failed captures
// under the retry cap are included; they are retried on the next cycle.
func (db *DB) ListPending(limit int) ([]capture.Capture, error) {
	return db.listByStates(limit, capture.StatePending, capture.StateFailed)
}

// ListAbandoned returns captures that exceeded the retry cap. They stay
// inspectable until a caller resurrects or the operator clears them.
func (db *DB) ListAbandoned(limit int) ([]capture.Capture, error) {
	return db.listByStates(limit, capture.StateAbandoned, capture.StateAbandoned)
}

func (db *DB) listByStates(limit int, a, b capture.SyncState) ([]capture.Capture, error) {
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	rows, err := db.conn.Query(`
		SELECT id, text, audio_ref, context, captured_at, source, sync_state, retry_count, synced_at
		FROM captures
		WHERE sync_state IN (?, ?)
		ORDER BY captured_at DESC, id DESC
		LIMIT ?
	`, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	defer rows.Close()

	var out []capture.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApplyVerdicts atomically updates the state of each referenced capture.
// Unknown ids are skipped with a warning. A synced capture is never
// demoted, so late or replayed verdicts are harmless.
func (db *DB) ApplyVerdicts(verdicts map[string]Verdict) (ApplyStats, error) {
	var stats ApplyStats

	tx, err := db.conn.Begin()
	if err != nil {
		return stats, fmt.Errorf("queue: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()
	for id, v := range verdicts {
		var state capture.SyncState
		var retries int
		err := tx.QueryRow(`SELECT sync_state, retry_count FROM captures WHERE id = ?`, id).
			Scan(&state, &retries)
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("queue: verdict for unknown capture", slog.String("id", id))
			stats.Unknown++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("queue: load capture %s: %w", id, err)
		}
		if state == capture.StateSynced {
			continue
		}

		switch v.Kind {
		case VerdictSynced, VerdictDuplicate:
			if _, err := tx.Exec(`UPDATE captures SET sync_state = ?, synced_at = ? WHERE id = ?`,
				capture.StateSynced, now, id); err != nil {
				return stats, fmt.Errorf("queue: mark synced %s: %w", id, err)
			}
			stats.Synced++
		case VerdictFailed:
			retries++
			next := capture.StateFailed
			if retries >= db.maxRetries {
				next = capture.StateAbandoned
				stats.Abandoned++
			} else {
				stats.Failed++
			}
			if _, err := tx.Exec(`UPDATE captures SET sync_state = ?, retry_count = ? WHERE id = ?`,
				next, retries, id); err != nil {
				return stats, fmt.Errorf("queue: mark failed %s: %w", id, err)
			}
		default:
			slog.Warn("queue: unrecognized verdict", slog.String("id", id), slog.String("kind", string(v.Kind)))
			stats.Unknown++
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("queue: commit verdicts: %w", err)
	}
	return stats, nil
}

// Prune removes synced captures beyond the most-recent keep entries and
// returns the number removed. Unsynced and abandoned rows are untouched.
func (db *DB) Prune(keep int) (int, error) {
	if keep <= 0 {
		keep = DefaultRetain
	}
	res, err := db.conn.Exec(`
		DELETE FROM captures
		WHERE sync_state = ? AND id NOT IN (
			SELECT id FROM captures
			WHERE sync_state = ?
			ORDER BY captured_at DESC, id DESC
			LIMIT ?
		)`, capture.StateSynced, capture.StateSynced, keep)
	if err != nil {
		return 0, fmt.Errorf("queue: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RetryAbandoned resurrects every abandoned capture back to pending with a
// fresh retry budget, and returns how many were resurrected.
func (db *DB) RetryAbandoned() (int, error) {
	res, err := db.conn.Exec(`UPDATE captures SET sync_state = ?, retry_count = 0 WHERE sync_state = ?`,
		capture.StatePending, capture.StateAbandoned)
	if err != nil {
		return 0, fmt.Errorf("queue: retry abandoned: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Get returns a single capture by id.
func (db *DB) Get(id string) (*capture.Capture, error) {
	row := db.conn.QueryRow(`
		SELECT id, text, audio_ref, context, captured_at, source, sync_state, retry_count, synced_at
		FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Counts returns the number of captures per sync state.
func (db *DB) Counts() (map[capture.SyncState]int, error) {
	rows, err := db.conn.Query(`SELECT sync_state, COUNT(*) FROM captures GROUP BY sync_state`)
	if err != nil {
		return nil, fmt.Errorf("queue: counts: %w", err)
	}
	defer rows.Close()

	out := make(map[capture.SyncState]int)
	for rows.Next() {
		var state capture.SyncState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[state] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(r rowScanner) (capture.Capture, error) {
	var (
		c        capture.Capture
		ctxJSON  string
		syncedAt sql.NullTime
	)
	err := r.Scan(&c.ID, &c.Text, &c.AudioRef, &ctxJSON, &c.CapturedAt, &c.Source, &c.SyncState, &c.RetryCount, &syncedAt)
	if err != nil {
		return c, err
	}
	if ctxJSON != "" && ctxJSON != "{}" && ctxJSON != "null" {
		if err := json.Unmarshal([]byte(ctxJSON), &c.Context); err != nil {
			return c, fmt.Errorf("queue: unmarshal context: %w", err)
		}
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		c.SyncedAt = &t
	}
	return c, nil
}
