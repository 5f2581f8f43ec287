package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

type finalizeBody struct {
	Size int64 `json:"size"`
}

func (c *Client) InitUpload(ctx context.Context, req repositories.InitUploadRequest) (*models.UploadTicket, error) {
	var ticket models.UploadTicket
	if err := c.do(ctx, http.MethodPost, "/files", nil, req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Upload sends the raw bytes to the URL handed out by InitUpload.
func (c *Client) Upload(ctx context.Context, uploadURL string, body io.Reader, size int64, mimeType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resolve(uploadURL), body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = size
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) FinalizeUpload(ctx context.Context, fileID string, size int64) (*models.FileMeta, error) {
	var meta models.FileMeta
	if err := c.do(ctx, http.MethodPost, "/files/"+pathID(fileID)+"/finalize", nil, finalizeBody{Size: size}, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*models.FileMeta, error) {
	var meta models.FileMeta
	if err := c.do(ctx, http.MethodGet, "/files/"+pathID(fileID), nil, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
