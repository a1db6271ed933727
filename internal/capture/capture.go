// Package capture defines the domain types for captured thoughts and the
// canonicalization used for content-based deduplication.
package capture

import "time"

// Source identifies where a capture originated.
type Source string

const (
	SourceExtension Source = "extension"
	SourceWeb       Source = "web"
	SourceAPI       Source = "api"
)

// SyncState is the lifecycle state of a capture in the local queue.
//
// Valid transitions: pending → synced, pending → failed, failed → pending
// (retry), failed → abandoned (retry cap reached). synced is terminal.
type SyncState string

const (
	StatePending   SyncState = "pending"
	StateSynced    SyncState = "synced"
	StateFailed    SyncState = "failed"
	StateAbandoned SyncState = "abandoned"
)

// Capture is a unit of captured user content awaiting delivery to the
// remote store. ID is assigned once at capture time and acts as the
// idempotency key on every retry.
type Capture struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	AudioRef   string            `json:"audio_ref,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
	Source     Source            `json:"source"`
	SyncState  SyncState         `json:"sync_state"`
	RetryCount int               `json:"retry_count"`
	SyncedAt   *time.Time        `json:"synced_at,omitempty"`
}

// Unsynced reports whether the capture still needs a sync attempt.
func (c *Capture) Unsynced() bool {
	return c.SyncState == StatePending || c.SyncState == StateFailed
}
