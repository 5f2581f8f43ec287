package repositories

import (
	"context"
	"io"

	"branchchat/internal/domain/models"
)

// InitUploadRequest announces a file before its bytes are sent.
type InitUploadRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// FileRepository handles file uploads and metadata.
type FileRepository interface {
	InitUpload(ctx context.Context, req InitUploadRequest) (*models.UploadTicket, error)
	Upload(ctx context.Context, uploadURL string, body io.Reader, size int64, mimeType string) error
	FinalizeUpload(ctx context.Context, fileID string, size int64) (*models.FileMeta, error)
	GetFile(ctx context.Context, fileID string) (*models.FileMeta, error)
}
