package memstore

import (
	"context"
	"fmt"
	"io"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

type file struct {
	meta models.FileMeta
	data []byte
}

// UploadPath is where the raw bytes of file id are sent.
func UploadPath(id string) string {
	return "/files/" + id + "/content"
}

// InitUpload registers a pending file and hands out its upload URL.
func (s *Store) InitUpload(ctx context.Context, req repositories.InitUploadRequest) (*models.UploadTicket, error) {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.RuneLength(1, 255)),
		validation.Field(&req.Size, validation.Required, validation.Max(int64(config.MaxUploadSize))),
	)
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.files[id] = &file{meta: models.FileMeta{
		ID:        id,
		Name:      req.Name,
		MimeType:  req.MimeType,
		Size:      req.Size,
		Status:    models.FileStatusPending,
		CreatedAt: s.now(),
	}}
	return &models.UploadTicket{FileID: id, UploadURL: UploadPath(id)}, nil
}

// WriteContent stores the bytes of a pending file. More bytes than were
// announced is an error.
func (s *Store) WriteContent(ctx context.Context, id string, body io.Reader) error {
	s.mu.RLock()
	f, ok := s.files[id]
	var size int64
	var status models.FileStatus
	if ok {
		size, status = f.meta.Size, f.meta.Status
	}
	s.mu.RUnlock()

	if !ok {
		return notFound("file", id)
	}
	if status != models.FileStatusPending {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("file %s is already finalized", id),
			ResourceType: "file",
			ResourceID:   id,
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, size+1))
	if err != nil {
		return fmt.Errorf("read content of file %s: %w", id, err)
	}
	if int64(len(data)) > size {
		return invalid("file %s: content exceeds the announced %d bytes", id, size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok = s.files[id]; !ok {
		return notFound("file", id)
	}
	f.data = data
	return nil
}

// FinalizeUpload confirms a file whose content matches the announced
// size.
func (s *Store) FinalizeUpload(ctx context.Context, id string, size int64) (*models.FileMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return nil, notFound("file", id)
	}
	if f.meta.Status == models.FileStatusUploaded {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("file %s is already finalized", id),
			ResourceType: "file",
			ResourceID:   id,
		}
	}
	if size != f.meta.Size || int64(len(f.data)) != size {
		return nil, invalid("file %s: received %d bytes, announced %d, finalized with %d", id, len(f.data), f.meta.Size, size)
	}
	f.meta.Status = models.FileStatusUploaded
	meta := f.meta
	return &meta, nil
}

// GetFile returns file metadata.
func (s *Store) GetFile(ctx context.Context, id string) (*models.FileMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, notFound("file", id)
	}
	meta := f.meta
	return &meta, nil
}
