package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dstanfill/inkwell/internal/recon"
	"github.com/dstanfill/inkwell/internal/record"
)

// Handler holds ingest API route handlers.
type Handler struct {
	svc     *recon.Service
	records *record.DB
}

// NewHandler creates a new Handler.
func NewHandler(svc *recon.Service, records *record.DB) *Handler {
	return &Handler{svc: svc, records: records}
}

// SyncBatch handles POST /api/sync: idempotent batched ingest. Every item
// is processed independently; one bad item never fails the request.
func (h *Handler) SyncBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Captures) > MaxBatchItems {
		writeJSON(w, http.StatusUnprocessableEntity,
			errorBody("too many captures in one batch (max "+strconv.Itoa(MaxBatchItems)+")"))
		return
	}

	res := h.svc.Ingest(r.Context(), req.Captures)
	writeJSON(w, http.StatusOK, res)
}

// ListCaptures handles GET /api/captures with optional pagination.
func (h *Handler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	records, total, err := h.records.ListRecent(limit, offset)
	if err != nil {
		slog.Error("list captures failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if records == nil {
		records = []record.Record{}
	}
	writeJSON(w, http.StatusOK, CaptureListResponse{Captures: records, Total: total})
}
