package repositories

import (
	"context"

	"branchchat/internal/domain/models"
)

// MessageRepository pages through chat history. Pages are newest-first.
type MessageRepository interface {
	ListMessages(ctx context.Context, chatID string, offset, limit int) ([]models.Message, error)
}

// DraftRepository persists unsent input. A missing draft is returned as
// (nil, nil).
type DraftRepository interface {
	GetDraft(ctx context.Context, chatID string) (*models.Draft, error)
	PutDraft(ctx context.Context, draft models.Draft) error
}

// ConversationRepository opens streamed exchanges with the model.
// The returned channel is closed when the stream ends; a transport failure
// is delivered as a final chunk with Err set. Cancelling ctx aborts the
// request.
type ConversationRepository interface {
	StreamConversation(ctx context.Context, req models.ConversationRequest) (<-chan models.StreamChunk, error)
}
