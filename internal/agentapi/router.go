package agentapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dstanfill/inkwell/internal/ingress"
	"github.com/dstanfill/inkwell/internal/queue"
)

// NewRouter creates a chi router with all agent routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(ing *ingress.Service, store queue.Store, engine Engine, sseHandler http.Handler, logger *slog.Logger) chi.Router {
	h := NewHandler(ing, store, engine, logger)

	r := chi.NewRouter()

	// Capture intake and queue inspection.
	r.Post("/captures", h.CreateCapture)
	r.Get("/captures/pending", h.ListPending)
	r.Get("/captures/abandoned", h.ListAbandoned)
	r.Post("/captures/retry", h.RetryAbandoned)

	// Sync control.
	r.Get("/status", h.GetStatus)
	r.Post("/sync", h.TriggerSync)

	// Live event stream for popup/UI consumers.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
