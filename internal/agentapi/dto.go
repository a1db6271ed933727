package agentapi

import (
	"github.com/dstanfill/inkwell/internal/capture"
	"github.com/dstanfill/inkwell/internal/queue"
)

// StatusResponse reports connectivity, the last sync outcome, and queue
// depth per state.
type StatusResponse struct {
	queue.SyncStatus
	Counts map[capture.SyncState]int `json:"counts"`
}

// CaptureListResponse wraps a queue listing.
type CaptureListResponse struct {
	Captures []capture.Capture `json:"captures"`
}

// RetryResponse reports how many abandoned captures were requeued.
type RetryResponse struct {
	Requeued int `json:"requeued"`
}
