// Package upload sends attachment files to the backend.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

// MaxFileSize bounds a single attachment.
const MaxFileSize = config.MaxUploadSize

// File is an attachment to upload.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// Validate checks the file before anything is sent.
func (f File) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&f.Size, validation.Required, validation.Max(int64(MaxFileSize))),
		validation.Field(&f.Body, validation.NotNil),
	)
}

// Uploader runs the three-step upload: init, raw upload, finalize.
type Uploader struct {
	files  repositories.FileRepository
	logger *slog.Logger
}

// NewUploader creates an uploader.
func NewUploader(files repositories.FileRepository, logger *slog.Logger) *Uploader {
	return &Uploader{files: files, logger: logger}
}

// Upload sends f and returns the finalized file metadata. Its ID is what a
// message send lists as an attachment.
func (u *Uploader) Upload(ctx context.Context, f File) (*models.FileMeta, error) {
	if f.MimeType == "" {
		f.MimeType = mime.TypeByExtension(filepath.Ext(f.Name))
		if f.MimeType == "" {
			f.MimeType = "application/octet-stream"
		}
	}
	if err := f.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	ticket, err := u.files.InitUpload(ctx, repositories.InitUploadRequest{
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("init upload of %s: %w", f.Name, err)
	}

	counted := &countingReader{r: f.Body}
	if err := u.files.Upload(ctx, ticket.UploadURL, counted, f.Size, f.MimeType); err != nil {
		return nil, fmt.Errorf("upload %s: %w", f.Name, err)
	}
	if counted.n != f.Size {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("file %s: read %d bytes, expected %d", f.Name, counted.n, f.Size)}
	}

	meta, err := u.files.FinalizeUpload(ctx, ticket.FileID, f.Size)
	if err != nil {
		return nil, fmt.Errorf("finalize upload of %s: %w", f.Name, err)
	}

	u.logger.Info("file uploaded",
		"file_id", meta.ID,
		"name", meta.Name,
		"size", meta.Size,
		"mime_type", meta.MimeType,
	)
	return meta, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
