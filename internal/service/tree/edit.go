package tree

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"branchchat/internal/cache"
	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

// EditState is the inline-edit state of an entity.
type EditState int

const (
	// EditNone means the entity is not being edited.
	EditNone EditState = iota
	// EditPlaceholder is a new, unsaved entity waiting for its name.
	EditPlaceholder
	// EditFinalizing is a placeholder whose create call is in flight.
	EditFinalizing
	// EditRenaming is an existing entity in inline rename mode.
	EditRenaming
)

func (s EditState) String() string {
	switch s {
	case EditPlaceholder:
		return "placeholder"
	case EditFinalizing:
		return "finalizing"
	case EditRenaming:
		return "renaming"
	default:
		return "none"
	}
}

func validateName(name string) error {
	err := validation.Validate(name,
		validation.Required.Error("name is required"),
		validation.RuneLength(1, config.MaxFolderNameLength),
	)
	if err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid name: %v", err)}
	}
	return nil
}

// EditState reports the inline-edit state of id.
func (s *Store) EditState(id string) EditState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing[id]
}

func (s *Store) setEditState(id string, state EditState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == EditNone {
		delete(s.editing, id)
		return
	}
	s.editing[id] = state
}

// swapEditState moves id from one of the from states to next and returns
// the previous state. It fails with ErrNotEditable when id is in none of them.
func (s *Store) swapEditState(id string, next EditState, from ...EditState) (EditState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.editing[id]
	for _, f := range from {
		if cur == f {
			if next == EditNone {
				delete(s.editing, id)
			} else {
				s.editing[id] = next
			}
			return cur, nil
		}
	}
	return cur, fmt.Errorf("%w: %s is %s", domain.ErrNotEditable, id, cur)
}

// CreateTemporaryEntity inserts an unnamed placeholder of the given kind at
// the top of parentID ("" = root) and puts it in inline edit mode. Nothing
// is persisted until FinalizeCreation. The parent's children are loaded
// first if they are not in memory yet.
func (s *Store) CreateTemporaryEntity(ctx context.Context, kind models.EntityKind, parentID string) (string, error) {
	if _, err := models.ParseEntityKind(string(kind)); err != nil {
		return "", &domain.ValidationError{Message: err.Error()}
	}
	if parentID != "" {
		parent, err := s.mustEntity(parentID)
		if err != nil {
			return "", err
		}
		if parent.Kind != models.KindFolder {
			return "", &domain.ValidationError{Message: fmt.Sprintf("cannot create inside a %s", parent.Kind)}
		}
	}
	if err := s.LoadChildren(ctx, parentID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	key := cache.Items(parentID)
	s.cache.Modify(key, func(list []models.Entity) []models.Entity {
		return insertSorted(list, models.Entity{
			ID:       id,
			Kind:     kind,
			ParentID: models.Ptr(parentID),
			Position: topPosition(list),
		})
	})
	s.cache.Index().Link(id, key)
	s.setEditState(id, EditPlaceholder)

	s.logger.Debug("placeholder created", "id", id, "kind", kind, "parent_id", parentID)
	return id, nil
}

// FinalizeCreation names a placeholder and persists it. If the create call
// fails the placeholder is removed, since there is no confirmed state to
// go back to.
func (s *Store) FinalizeCreation(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := s.swapEditState(id, EditFinalizing, EditPlaceholder); err != nil {
		return err
	}
	defer s.setEditState(id, EditNone)

	e, err := s.mustEntity(id)
	if err != nil {
		return err
	}
	e.Name = name
	key := cache.Items(e.ParentKey())

	changes := []cache.Change[[]models.Entity]{
		cache.Transform(key, func(list []models.Entity) []models.Entity {
			return updateEntity(list, id, func(cur *models.Entity) { cur.Name = name })
		}),
	}
	changes = append(changes, s.flagChanges(e.ParentKey(), true)...)

	var created *models.Item
	err = s.mutate(ctx, cache.Mutation[[]models.Entity]{
		Op:      "create " + string(e.Kind),
		Changes: changes,
		Commit: func(ctx context.Context) error {
			var err error
			created, err = s.items.Create(ctx, models.ItemFromEntity(e))
			return err
		},
		Reconcile: func(c *cache.Store[[]models.Entity]) {
			c.Modify(key, func(list []models.Entity) []models.Entity {
				list = updateEntity(list, id, func(cur *models.Entity) {
					cur.Position = created.Position
					cur.HasChildren = created.HasChildren
				})
				sortByPosition(list)
				return list
			})
		},
	})
	if err != nil {
		s.cache.Modify(key, func(list []models.Entity) []models.Entity { return removeEntity(list, id) })
		s.cache.Index().Unlink(id, key)
		return err
	}

	s.logger.Info("entity created", "id", id, "kind", e.Kind, "parent_id", e.ParentKey())
	return nil
}

// BeginRename puts an existing entity in inline rename mode.
func (s *Store) BeginRename(id string) error {
	if _, err := s.mustEntity(id); err != nil {
		return err
	}
	_, err := s.swapEditState(id, EditRenaming, EditNone, EditRenaming)
	return err
}

// CancelEdit leaves edit mode. A placeholder is discarded; an entity being
// renamed keeps its name.
func (s *Store) CancelEdit(id string) error {
	prev, err := s.swapEditState(id, EditNone, EditPlaceholder, EditRenaming)
	if err != nil {
		return err
	}
	if prev != EditPlaceholder {
		return nil
	}

	e, ok := s.Entity(id)
	if !ok {
		return nil
	}
	key := cache.Items(e.ParentKey())
	s.cache.Modify(key, func(list []models.Entity) []models.Entity { return removeEntity(list, id) })
	s.cache.Index().Unlink(id, key)
	return nil
}

// CommitEdit applies the value typed into an inline editor when it loses
// focus: an empty value cancels, a new name finalizes a placeholder or
// renames an existing entity, and an unchanged name just leaves edit mode.
func (s *Store) CommitEdit(ctx context.Context, id, value string) error {
	value = strings.TrimSpace(value)

	switch state := s.EditState(id); state {
	case EditPlaceholder:
		if value == "" {
			return s.CancelEdit(id)
		}
		return s.FinalizeCreation(ctx, id, value)

	case EditRenaming:
		e, err := s.mustEntity(id)
		s.setEditState(id, EditNone)
		if err != nil {
			return err
		}
		if value == "" || value == e.Name {
			return nil
		}
		return s.RenameEntity(ctx, id, value)

	default:
		return fmt.Errorf("%w: %s is %s", domain.ErrNotEditable, id, state)
	}
}
