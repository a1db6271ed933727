// Package agentapi implements the agent's loopback REST API: the surface
// the browser extension and local tools talk to.
package agentapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dstanfill/inkwell/internal/apperr"
	"github.com/dstanfill/inkwell/internal/capture"
	"github.com/dstanfill/inkwell/internal/ingress"
	"github.com/dstanfill/inkwell/internal/queue"
)

// Engine is the subset of the sync engine the API exposes.
type Engine interface {
	RequestSync()
	Status() queue.SyncStatus
}

// Handler holds agent API route handlers.
type Handler struct {
	ingress *ingress.Service
	store   queue.Store
	engine  Engine
	logger  *slog.Logger
}

// NewHandler creates a new Handler. engine may be nil when the agent runs
// without a remote endpoint configured.
func NewHandler(ing *ingress.Service, store queue.Store, engine Engine, logger *slog.Logger) *Handler {
	return &Handler{ingress: ing, store: store, engine: engine, logger: logger}
}

// CreateCapture handles POST /captures. The capture is durably queued
// before the response is written; 202 means "safe, will sync".
func (h *Handler) CreateCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var d capture.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	c, err := h.ingress.Submit(d)
	switch {
	case errors.Is(err, apperr.ErrCapacityExceeded):
		writeJSON(w, http.StatusInsufficientStorage, errorBody("capture queue is full"))
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusAccepted, c)
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts()
	if err != nil {
		h.logger.Error("status counts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	res := StatusResponse{Counts: counts}
	if h.engine != nil {
		res.SyncStatus = h.engine.Status()
	}
	writeJSON(w, http.StatusOK, res)
}

// ListPending handles GET /captures/pending.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.listState(w, h.store.ListPending)
}

// ListAbandoned handles GET /captures/abandoned.
func (h *Handler) ListAbandoned(w http.ResponseWriter, r *http.Request) {
	h.listState(w, h.store.ListAbandoned)
}

func (h *Handler) listState(w http.ResponseWriter, list func(int) ([]capture.Capture, error)) {
	captures, err := list(0)
	if err != nil {
		h.logger.Error("queue list failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if captures == nil {
		captures = []capture.Capture{}
	}
	writeJSON(w, http.StatusOK, CaptureListResponse{Captures: captures})
}

// RetryAbandoned handles POST /captures/retry: abandoned captures go back
// to pending with a fresh retry budget.
func (h *Handler) RetryAbandoned(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.RetryAbandoned()
	if err != nil {
		h.logger.Error("retry abandoned failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if n > 0 && h.engine != nil {
		h.engine.RequestSync()
	}
	writeJSON(w, http.StatusOK, RetryResponse{Requeued: n})
}

// TriggerSync handles POST /sync: a manual sync nudge. Coalesced with any
// run already in flight.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusConflict, errorBody("no sync endpoint configured"))
		return
	}
	h.engine.RequestSync()
	w.WriteHeader(http.StatusAccepted)
}
