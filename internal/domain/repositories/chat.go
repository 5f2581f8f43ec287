package repositories

import (
	"context"

	"branchchat/internal/domain/models"
)

// CreateChatRequest persists a chat. Branch is set for branch chats.
type CreateChatRequest struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	ParentDirectoryID *string              `json:"parent_directory_id"`
	Position          float64              `json:"position"`
	Branch            *models.BranchOrigin `json:"branch_context,omitempty"`
}

// ChatFilter selects chats by parent directory or parent chat.
type ChatFilter struct {
	ParentDirectoryID *string
	ParentChatID      *string
}

// ChatRepository is the remote chat store, including branch metadata.
type ChatRepository interface {
	Create(ctx context.Context, req CreateChatRequest) (*models.Chat, error)
	Delete(ctx context.Context, chatID string) error
	List(ctx context.Context, filter ChatFilter) ([]models.Chat, error)

	// UpdateConnectionType rewrites the connection type of the branch link
	// that points at childChatID
	UpdateConnectionType(ctx context.Context, childChatID string, connection models.ConnectionType) error

	// GetMessageBranches fetches the current branch links of a message
	GetMessageBranches(ctx context.Context, messageID string) ([]models.BranchLink, error)
}
