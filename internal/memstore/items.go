package memstore

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

var isUUID = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if err := uuid.Validate(s); err != nil {
		return fmt.Errorf("must be a valid UUID")
	}
	return nil
})

var nameRules = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, config.MaxFolderNameLength),
}

func validateItem(item models.Item) error {
	err := validation.ValidateStruct(&item,
		validation.Field(&item.ID, validation.Required, isUUID),
		validation.Field(&item.Type, validation.Required, validation.In(
			models.KindFolder, models.KindChat, models.KindNote, models.KindMindlet,
		)),
		validation.Field(&item.ParentChatID, validation.Nil.Error("branch chats are created through /chats")),
	)
	if err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}
	if err := validation.Validate(item.Payload.Name, nameRules...); err != nil {
		return invalid("name: %v", err)
	}
	return nil
}

// ListItems returns the children of folder parentID ("" for the root)
// ordered by position.
func (s *Store) ListItems(ctx context.Context, parentID string) ([]models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if parentID != "" {
		if _, err := s.folderLocked(parentID); err != nil {
			return nil, err
		}
	}
	nodes := s.sortedLocked(func(n *node) bool { return models.Deref(n.item.ParentID) == parentID })
	items := make([]models.Item, 0, len(nodes))
	for _, n := range nodes {
		items = append(items, s.itemLocked(n))
	}
	return items, nil
}

// GetItem returns one item.
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, notFound("item", id)
	}
	item := s.itemLocked(n)
	return &item, nil
}

// CreateItem stores a client-identified item. A chat item starts with an
// empty history.
func (s *Store) CreateItem(ctx context.Context, item models.Item) (*models.Item, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[item.ID]; exists {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("item %s already exists", item.ID),
			ResourceType: "item",
			ResourceID:   item.ID,
		}
	}
	if item.ParentID != nil {
		if _, err := s.folderLocked(*item.ParentID); err != nil {
			return nil, err
		}
	}

	n := &node{item: item}
	n.item.ParentID = clonePtr(item.ParentID)
	n.item.HasChildren = false
	if item.Type == models.KindChat {
		n.chat = &chatState{createdAt: s.now()}
	}
	s.nodes[item.ID] = n

	s.logger.Debug("item created", "id", item.ID, "type", item.Type, "parent_id", models.Deref(item.ParentID))
	created := s.itemLocked(n)
	return &created, nil
}

// MoveItem reparents and repositions an item. A folder cannot be moved
// into itself or any of its descendants.
func (s *Store) MoveItem(ctx context.Context, id string, req repositories.MoveItemRequest) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, notFound("item", id)
	}
	if req.ParentID != nil {
		if _, err := s.folderLocked(*req.ParentID); err != nil {
			return nil, err
		}
		for cur := *req.ParentID; cur != ""; cur = models.Deref(s.nodes[cur].item.ParentID) {
			if cur == id {
				return nil, fmt.Errorf("%w: %s would become its own ancestor", domain.ErrInvalidMove, id)
			}
		}
	}

	n.item.ParentID = clonePtr(req.ParentID)
	n.item.Position = req.Position

	s.logger.Debug("item moved", "id", id, "parent_id", models.Deref(req.ParentID), "position", req.Position)
	moved := s.itemLocked(n)
	return &moved, nil
}

// RenameItem changes the display name of a folder, note or chat.
func (s *Store) RenameItem(ctx context.Context, id, name string) (*models.Item, error) {
	if err := validation.Validate(name, nameRules...); err != nil {
		return nil, invalid("name: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, notFound("item", id)
	}
	n.item.Payload.Name = name
	renamed := s.itemLocked(n)
	return &renamed, nil
}

// DeleteItem removes an item and its subtree.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return notFound("item", id)
	}
	removed := s.removeLocked(id)
	s.logger.Debug("item deleted", "id", id, "removed", removed)
	return nil
}

// Renormalize reassigns evenly spaced positions to the children of
// parentID ("" for the root), keeping their order.
func (s *Store) Renormalize(ctx context.Context, parentID string) ([]models.ItemPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID != "" {
		if _, err := s.folderLocked(parentID); err != nil {
			return nil, err
		}
	}
	nodes := s.sortedLocked(func(n *node) bool { return models.Deref(n.item.ParentID) == parentID })
	positions := make([]models.ItemPosition, 0, len(nodes))
	for i, n := range nodes {
		n.item.Position = float64(i+1) * config.PositionGap
		positions = append(positions, models.ItemPosition{ID: n.item.ID, Position: n.item.Position})
	}
	return positions, nil
}
