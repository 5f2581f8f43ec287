package repositories

import (
	"context"

	"branchchat/internal/domain/models"
)

// MoveItemRequest relocates an item under ParentID (nil = root) at Position.
type MoveItemRequest struct {
	ParentID *string
	Position float64
}

// ItemRepository is the remote generic tree store (/items).
type ItemRepository interface {
	// ListRoot lists the items at the workspace root
	ListRoot(ctx context.Context) ([]models.Item, error)

	// ListChildren lists the immediate children of a folder
	ListChildren(ctx context.Context, parentID string) ([]models.Item, error)

	// Create persists a new item; the client chooses the id
	Create(ctx context.Context, item models.Item) (*models.Item, error)

	// Move reparents and/or repositions an item
	Move(ctx context.Context, id string, req MoveItemRequest) (*models.Item, error)

	// Rename changes an item's display name
	Rename(ctx context.Context, id, name string) (*models.Item, error)

	// Delete removes an item and its subtree
	Delete(ctx context.Context, id string) error

	// Renormalize reassigns evenly spaced positions to every child of
	// parentID ("" = root) and returns them
	Renormalize(ctx context.Context, parentID string) ([]models.ItemPosition, error)
}
