package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/dstanfill/inkwell/internal/blob"
	"github.com/dstanfill/inkwell/internal/recon"
	"github.com/dstanfill/inkwell/internal/record"
)

// NewRouter creates a chi router with all ingest API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(svc *recon.Service, records *record.DB, attachments blob.Store, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc, records)
	ah := NewAttachmentHandler(attachments)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Batched capture ingest.
	r.Post("/sync", h.SyncBatch)

	// Reconciled record listing.
	r.Get("/captures", h.ListCaptures)

	// Audio attachments.
	r.Post("/attachments", ah.Upload)
	r.Get("/attachments/{filename}", ah.ServeFile)

	return r
}
