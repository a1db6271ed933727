package api

import (
	"github.com/dstanfill/inkwell/internal/recon"
	"github.com/dstanfill/inkwell/internal/record"
)

// MaxBatchItems bounds how many captures one sync request may carry.
// Clients batch well below this; anything larger is rejected outright
// before any item is processed.
const MaxBatchItems = 100

// SyncRequest is the request body for a sync batch.
type SyncRequest struct {
	Captures []recon.Item `json:"captures"`
}

// SyncResponse carries the per-item verdicts (aliased from the
// reconciliation layer).
type SyncResponse = recon.Result

// CaptureListResponse wraps paginated record listings.
type CaptureListResponse struct {
	Captures []record.Record `json:"captures"`
	Total    int             `json:"total"`
}

// AttachmentUploadResponse is returned after a successful audio upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}
