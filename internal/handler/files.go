package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"branchchat/internal/config"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
	"branchchat/internal/httputil"
)

// FileStore is the upload storage behind /files.
type FileStore interface {
	InitUpload(ctx context.Context, req repositories.InitUploadRequest) (*models.UploadTicket, error)
	WriteContent(ctx context.Context, id string, body io.Reader) error
	FinalizeUpload(ctx context.Context, id string, size int64) (*models.FileMeta, error)
	GetFile(ctx context.Context, id string) (*models.FileMeta, error)
}

// FileHandler handles the three-step upload and file metadata
type FileHandler struct {
	store  FileStore
	logger *slog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(store FileStore, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		store:  store,
		logger: logger,
	}
}

// FinalizeRequest confirms the size of an uploaded file.
type FinalizeRequest struct {
	Size int64 `json:"size"`
}

// InitUpload registers a file and returns where to send its bytes
// POST /files
func (h *FileHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	var req repositories.InitUploadRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	ticket, err := h.store.InitUpload(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, ticket)
}

// UploadContent receives the raw bytes of a pending file
// PUT /files/{id}/content
func (h *FileHandler) UploadContent(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, config.MaxUploadSize)
	if err := h.store.WriteContent(r.Context(), r.PathValue("id"), body); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FinalizeUpload marks a file as uploaded
// POST /files/{id}/finalize
func (h *FileHandler) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	meta, err := h.store.FinalizeUpload(r.Context(), r.PathValue("id"), req.Size)
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("file uploaded", "file_id", meta.ID, "name", meta.Name, "size", meta.Size)
	httputil.RespondJSON(w, http.StatusOK, meta)
}

// GetFile returns file metadata
// GET /files/{id}
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.GetFile(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, meta)
}
