package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"branchchat/internal/cache"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

func renameChanges(keys []cache.ScopeKey, id, name string) []cache.Change[[]models.Entity] {
	changes := make([]cache.Change[[]models.Entity], 0, len(keys))
	for _, k := range keys {
		changes = append(changes, cache.Transform(k, func(list []models.Entity) []models.Entity {
			return updateEntity(list, id, func(e *models.Entity) { e.Name = name })
		}))
	}
	return changes
}

// RenameEntity renames an entity in every scope holding it and persists the
// new name. The previous name is restored if the backend rejects it.
func (s *Store) RenameEntity(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := s.mustEntity(id); err != nil {
		return err
	}

	return s.mutate(ctx, cache.Mutation[[]models.Entity]{
		Op:      "rename",
		Changes: renameChanges(s.holders(id), id, name),
		Commit: func(ctx context.Context) error {
			_, err := s.items.Rename(ctx, id, name)
			return err
		},
	})
}

// ApplyTitle sets a chat's name locally, without a backend call. It is used
// for titles generated by the server, which are already persisted.
func (s *Store) ApplyTitle(chatID, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	for _, k := range s.holders(chatID) {
		s.cache.Modify(k, func(list []models.Entity) []models.Entity {
			return updateEntity(list, chatID, func(e *models.Entity) { e.Name = title })
		})
	}
}

// DeleteEntity removes an entity from every scope holding it and deletes it
// remotely. Removing the last child of a folder or the last branch of a chat
// clears that parent's HasChildren in the same mutation, so a failed delete
// restores both the entity at its old position and the flag.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	e, err := s.mustEntity(id)
	if err != nil {
		return err
	}

	// Sibling branches are loaded first so the copy in the parent chat's
	// branches scope is removed too.
	if e.ParentChatID != nil {
		if err := s.LoadBranches(ctx, *e.ParentChatID); err != nil {
			s.logger.Warn("could not load sibling branches before delete",
				"chat_id", *e.ParentChatID,
				"error", err,
			)
		}
	}

	holders := s.holders(id)
	changes := make([]cache.Change[[]models.Entity], 0, len(holders)+4)
	for _, k := range holders {
		changes = append(changes, cache.Transform(k, func(list []models.Entity) []models.Entity {
			return removeEntity(list, id)
		}))
	}

	if folder := e.ParentKey(); folder != "" {
		if n, ok := s.remainingChildren(cache.Items(folder), id); ok {
			changes = append(changes, s.flagChanges(folder, n > 0)...)
		}
	}
	if e.ParentChatID != nil {
		parentChat := *e.ParentChatID
		if n, ok := s.remainingChildren(cache.Branches(parentChat), id); ok {
			changes = append(changes, s.flagChanges(parentChat, n > 0)...)
		} else {
			changes = append(changes, s.flagChanges(parentChat, s.countBranches(parentChat, id) > 0)...)
		}
	}

	err = s.mutate(ctx, cache.Mutation[[]models.Entity]{
		Op:      "delete " + string(e.Kind),
		Changes: changes,
		Commit: func(ctx context.Context) error {
			if e.Kind == models.KindChat {
				return s.chats.Delete(ctx, id)
			}
			return s.items.Delete(ctx, id)
		},
		Reconcile: func(c *cache.Store[[]models.Entity]) {
			c.Delete(cache.Items(id))
			c.Delete(cache.Branches(id))
			ix := c.Index()
			for _, k := range holders {
				ix.Unlink(id, k)
			}
			ix.Forget(id)
		},
	})
	if err != nil {
		return err
	}

	s.setEditState(id, EditNone)
	s.logger.Info("entity deleted", "id", id, "kind", e.Kind)
	return nil
}

// countBranches counts the branch chats of parentChatID other than skipID
// in the loaded scopes the index relates to parentChatID.
func (s *Store) countBranches(parentChatID, skipID string) int {
	seen := make(map[string]struct{})
	for _, k := range s.cache.Index().Keys(parentChatID) {
		entities, _ := s.cache.Get(k)
		for _, e := range entities {
			if e.ID != skipID && e.IsBranchOf(parentChatID) {
				seen[e.ID] = struct{}{}
			}
		}
	}
	return len(seen)
}

// MoveEntity moves id under targetParentID ("" = root). index is the slot
// among the target's children (0 = top); nil places it at the top. Moving an
// entity into itself or directly under one of its own children is rejected
// here; deeper cycles are rejected by the backend. When the neighbors at
// index are too close together the target is renormalized and the
// position computed again.
func (s *Store) MoveEntity(ctx context.Context, id, targetParentID string, index *int) error {
	e, err := s.mustEntity(id)
	if err != nil {
		return err
	}
	if err := s.checkMoveTarget(e, targetParentID); err != nil {
		return err
	}
	if err := s.LoadChildren(ctx, targetParentID); err != nil {
		return err
	}

	position, err := s.targetPosition(id, targetParentID, index)
	if errors.Is(err, domain.ErrPositionPrecision) {
		s.logger.Info("position precision exhausted, renormalizing", "parent_id", targetParentID)
		if err := s.RenormalizePositions(ctx, targetParentID); err != nil {
			return fmt.Errorf("renormalize before move: %w", err)
		}
		position, err = s.targetPosition(id, targetParentID, index)
	}
	if err != nil {
		return err
	}

	src := cache.Items(e.ParentKey())
	dst := cache.Items(targetParentID)
	moved := e
	moved.ParentID = models.Ptr(targetParentID)
	moved.Position = position

	var changes []cache.Change[[]models.Entity]
	for _, k := range s.holders(id) {
		if k == src {
			continue
		}
		// Other copies (branch listings) only see the new position.
		changes = append(changes, cache.Transform(k, func(list []models.Entity) []models.Entity {
			list = updateEntity(list, id, func(cur *models.Entity) {
				cur.ParentID = moved.ParentID
				cur.Position = position
			})
			sortByPosition(list)
			return list
		}))
	}
	changes = append(changes,
		cache.Transform(src, func(list []models.Entity) []models.Entity { return removeEntity(list, id) }),
		cache.Transform(dst, func(list []models.Entity) []models.Entity { return insertSorted(list, moved) }),
	)
	if src != dst {
		if n, ok := s.remainingChildren(src, id); ok {
			changes = append(changes, s.flagChanges(e.ParentKey(), n > 0)...)
		}
		changes = append(changes, s.flagChanges(targetParentID, true)...)
	}

	s.cache.Index().Link(id, dst)
	if e.ParentChatID != nil {
		s.cache.Index().Link(*e.ParentChatID, dst)
	}

	var result *models.Item
	err = s.mutate(ctx, cache.Mutation[[]models.Entity]{
		Op:      "move",
		Changes: changes,
		Commit: func(ctx context.Context) error {
			var err error
			result, err = s.items.Move(ctx, id, repositories.MoveItemRequest{
				ParentID: moved.ParentID,
				Position: position,
			})
			return err
		},
		Reconcile: func(c *cache.Store[[]models.Entity]) {
			if src != dst {
				c.Index().Unlink(id, src)
			}
			if result == nil || result.Position == position {
				return
			}
			c.Modify(dst, func(list []models.Entity) []models.Entity {
				list = updateEntity(list, id, func(cur *models.Entity) { cur.Position = result.Position })
				sortByPosition(list)
				return list
			})
		},
	})
	if err != nil {
		if src != dst {
			s.cache.Index().Unlink(id, dst)
		}
		return err
	}

	s.logger.Info("entity moved",
		"id", id,
		"from", e.ParentKey(),
		"to", targetParentID,
		"position", position,
	)
	return nil
}

func (s *Store) checkMoveTarget(e models.Entity, targetParentID string) error {
	if targetParentID == "" {
		return nil
	}
	if targetParentID == e.ID {
		return fmt.Errorf("%w: %s cannot be moved into itself", domain.ErrInvalidMove, e.ID)
	}
	target, ok := s.Entity(targetParentID)
	if !ok {
		return nil
	}
	if target.Kind != models.KindFolder {
		return fmt.Errorf("%w: target %s is a %s", domain.ErrInvalidMove, targetParentID, target.Kind)
	}
	if target.ParentKey() == e.ID {
		return fmt.Errorf("%w: %s cannot be moved under its own child", domain.ErrInvalidMove, e.ID)
	}
	return nil
}

func (s *Store) targetPosition(id, parentID string, index *int) (float64, error) {
	siblings, _ := s.cache.Get(cache.Items(parentID))
	siblings = removeEntity(siblings, id)
	if index == nil {
		return topPosition(siblings), nil
	}
	return positionAt(siblings, *index)
}

// RenormalizePositions asks the backend to space the children of parentID
// evenly and adopts the returned positions.
func (s *Store) RenormalizePositions(ctx context.Context, parentID string) error {
	positions, err := s.items.Renormalize(ctx, parentID)
	if err != nil {
		return fmt.Errorf("renormalize %s: %w", cache.Items(parentID), err)
	}

	byID := make(map[string]float64, len(positions))
	for _, p := range positions {
		byID[p.ID] = p.Position
	}
	apply := func(list []models.Entity) []models.Entity {
		for i := range list {
			if pos, ok := byID[list[i].ID]; ok {
				list[i].Position = pos
			}
		}
		sortByPosition(list)
		return list
	}

	s.cache.Modify(cache.Items(parentID), apply)
	for id := range byID {
		for _, k := range s.holders(id) {
			if k.Kind == cache.ScopeBranches {
				s.cache.Modify(k, apply)
			}
		}
	}

	s.logger.Info("positions renormalized", "parent_id", parentID, "count", len(positions))
	return nil
}

// BranchChat describes a branch chat to create.
type BranchChat struct {
	ID          string
	Name        string
	DirectoryID string
	Origin      models.BranchOrigin
}

// CreateBranchChat inserts a branch chat next to its parent (same folder,
// at the top), adds it to the parent's loaded branches and marks the
// parent as having children, then persists it. All of it is rolled back if
// the create call fails.
func (s *Store) CreateBranchChat(ctx context.Context, bc BranchChat) (*models.Chat, error) {
	if bc.ID == "" || bc.Origin.ParentChatID == "" {
		return nil, &domain.ValidationError{Message: "branch chat requires an id and a parent chat"}
	}

	dir := cache.Items(bc.DirectoryID)
	siblings, _ := s.cache.Get(dir)
	entity := models.Entity{
		ID:           bc.ID,
		Kind:         models.KindChat,
		Name:         bc.Name,
		ParentID:     models.Ptr(bc.DirectoryID),
		ParentChatID: models.Ptr(bc.Origin.ParentChatID),
		Position:     topPosition(siblings),
	}
	branches := cache.Branches(bc.Origin.ParentChatID)

	changes := []cache.Change[[]models.Entity]{
		cache.Transform(dir, func(list []models.Entity) []models.Entity { return insertSorted(list, entity) }),
		cache.Transform(branches, func(list []models.Entity) []models.Entity { return insertSorted(list, entity) }),
	}
	changes = append(changes, s.flagChanges(bc.Origin.ParentChatID, true)...)
	if bc.DirectoryID != "" {
		changes = append(changes, s.flagChanges(bc.DirectoryID, true)...)
	}

	ix := s.cache.Index()
	ix.Link(bc.ID, dir)
	ix.Link(bc.ID, branches)
	ix.Link(bc.Origin.ParentChatID, dir)

	var chat *models.Chat
	origin := bc.Origin
	err := s.mutate(ctx, cache.Mutation[[]models.Entity]{
		Op:      "create branch chat",
		Changes: changes,
		Commit: func(ctx context.Context) error {
			var err error
			chat, err = s.chats.Create(ctx, repositories.CreateChatRequest{
				ID:                bc.ID,
				Name:              bc.Name,
				ParentDirectoryID: entity.ParentID,
				Position:          entity.Position,
				Branch:            &origin,
			})
			return err
		},
	})
	if err != nil {
		ix.Unlink(bc.ID, dir)
		ix.Unlink(bc.ID, branches)
		return nil, err
	}

	s.logger.Info("branch chat created",
		"chat_id", bc.ID,
		"parent_chat_id", bc.Origin.ParentChatID,
		"parent_message_id", bc.Origin.ParentMessageID,
	)
	return chat, nil
}
