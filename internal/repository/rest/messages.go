package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

func (c *Client) ListMessages(ctx context.Context, chatID string, offset, limit int) ([]models.Message, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/chats/"+pathID(chatID)+"/messages", query, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetDraft returns nil, nil when the chat has no saved draft.
func (c *Client) GetDraft(ctx context.Context, chatID string) (*models.Draft, error) {
	var draft models.Draft
	err := c.do(ctx, http.MethodGet, "/chats/"+pathID(chatID)+"/draft", nil, nil, &draft)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (c *Client) PutDraft(ctx context.Context, draft models.Draft) error {
	return c.do(ctx, http.MethodPut, "/chats/"+pathID(draft.ChatID)+"/draft", nil, draft, nil)
}
