package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/dstanfill/inkwell/internal/blob"
)

// 50 MB is generous for voice memos while still bounding memory use.
const maxUploadBytes = 50 << 20

// AttachmentHandler accepts and serves audio attachments referenced by
// captures via their audio_ref field.
type AttachmentHandler struct {
	store blob.Store
}

// NewAttachmentHandler creates a handler backed by the given blob store.
func NewAttachmentHandler(store blob.Store) *AttachmentHandler {
	return &AttachmentHandler{store: store}
}

// ServeFile handles GET /api/attachments/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	abs, err := h.store.Path(filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/attachments (multipart/form-data, field "file").
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	// Validate the name up front so bad filenames map to 400, not 500.
	if _, err := h.store.Path(header.Filename); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	written, err := h.store.Save(header.Filename, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to store file"))
		return
	}

	writeJSON(w, http.StatusCreated, AttachmentUploadResponse{
		Filename: header.Filename,
		Size:     written,
		URL:      "/api/attachments/" + header.Filename,
	})
}
