// Package tree holds the in-memory workspace tree: folders, chats, notes
// and mindlets grouped by parent folder, plus the branch chats of every
// chat. Every write is applied locally first and rolled back if the
// backend rejects it.
package tree

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"branchchat/internal/cache"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

// Store is the tree store. It is safe for concurrent use.
//
// Entities live in two scope families: items(folder) holds the children of
// a folder ("" for the root) and branches(chat) holds the branch chats of a
// chat. A branch chat therefore appears in two scopes. The cache index maps
// an entity id to every scope holding a copy of it, and a chat id to its
// branches scope, so flag and rename updates never scan the cache.
type Store struct {
	items  repositories.ItemRepository
	chats  repositories.ChatRepository
	cache  *cache.Store[[]models.Entity]
	logger *slog.Logger

	loads singleflight.Group

	mu      sync.Mutex
	editing map[string]EditState
}

// NewStore creates a tree store backed by the given repositories.
func NewStore(items repositories.ItemRepository, chats repositories.ChatRepository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:   items,
		chats:   chats,
		cache:   cache.NewStore(cloneEntities, logger),
		logger:  logger,
		editing: make(map[string]EditState),
	}
}

func cloneEntities(list []models.Entity) []models.Entity {
	return slices.Clone(list)
}

// LoadChildren fetches the children of parentID once. parentID "" is the
// workspace root; a chat id loads that chat's branches. Concurrent calls
// for the same parent share one request.
func (s *Store) LoadChildren(ctx context.Context, parentID string) error {
	return s.load(ctx, s.childScope(parentID))
}

// LoadBranches fetches the branch chats of chatID once.
func (s *Store) LoadBranches(ctx context.Context, chatID string) error {
	return s.load(ctx, cache.Branches(chatID))
}

func (s *Store) load(ctx context.Context, key cache.ScopeKey) error {
	if s.cache.Has(key) {
		return nil
	}

	_, err, shared := s.loads.Do(key.String(), func() (any, error) {
		if s.cache.Has(key) {
			return nil, nil
		}
		entities, err := s.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		sortByPosition(entities)
		s.cache.Set(key, entities)
		s.register(key, entities)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}

	s.logger.Debug("scope loaded", "scope", key.String(), "shared", shared)
	return nil
}

func (s *Store) fetch(ctx context.Context, key cache.ScopeKey) ([]models.Entity, error) {
	switch key.Kind {
	case cache.ScopeItems:
		var (
			items []models.Item
			err   error
		)
		if key.ParentID == "" {
			items, err = s.items.ListRoot(ctx)
		} else {
			items, err = s.items.ListChildren(ctx, key.ParentID)
		}
		if err != nil {
			return nil, err
		}
		entities := make([]models.Entity, 0, len(items))
		for _, it := range items {
			entities = append(entities, it.Entity())
		}
		return entities, nil

	case cache.ScopeBranches:
		parent := key.ParentID
		chats, err := s.chats.List(ctx, repositories.ChatFilter{ParentChatID: &parent})
		if err != nil {
			return nil, err
		}
		entities := make([]models.Entity, 0, len(chats))
		for _, c := range chats {
			entities = append(entities, c.Entity())
		}
		return entities, nil

	default:
		return nil, fmt.Errorf("scope %s is not part of the tree", key)
	}
}

// register links every entity of a freshly written scope in the index,
// and links the parent chat of every branch to the scope holding it.
func (s *Store) register(key cache.ScopeKey, entities []models.Entity) {
	ix := s.cache.Index()
	if key.Kind == cache.ScopeBranches {
		ix.Link(key.ParentID, key)
	}
	for _, e := range entities {
		ix.Link(e.ID, key)
		if e.ParentChatID != nil {
			ix.Link(*e.ParentChatID, key)
		}
	}
}

// reindex re-registers the contents of keys after a rollback.
func (s *Store) reindex(keys []cache.ScopeKey) {
	for _, k := range keys {
		if entities, ok := s.cache.Get(k); ok {
			s.register(k, entities)
		}
	}
}

// childScope picks the scope holding the children of parentID: a chat's
// children are its branches, anything else holds items.
func (s *Store) childScope(parentID string) cache.ScopeKey {
	if parentID != "" {
		if e, ok := s.Entity(parentID); ok && e.Kind == models.KindChat {
			return cache.Branches(parentID)
		}
	}
	return cache.Items(parentID)
}

// Loaded reports whether the children of parentID are in memory.
func (s *Store) Loaded(parentID string) bool {
	return s.cache.Has(s.childScope(parentID))
}

// Children returns the loaded children of parentID newest-first, or nil if
// they have not been loaded.
func (s *Store) Children(parentID string) []models.Entity {
	entities, _ := s.cache.Get(s.childScope(parentID))
	return entities
}

// Branches returns the loaded branch chats of chatID.
func (s *Store) Branches(chatID string) []models.Entity {
	entities, _ := s.cache.Get(cache.Branches(chatID))
	return entities
}

// Entity looks up a loaded entity by id.
func (s *Store) Entity(id string) (models.Entity, bool) {
	for _, k := range s.holders(id) {
		entities, _ := s.cache.Get(k)
		if i := indexOf(entities, id); i >= 0 {
			return entities[i], true
		}
	}
	return models.Entity{}, false
}

// holders lists the scopes currently holding a copy of id. Index entries
// left behind by a rollback are skipped.
func (s *Store) holders(id string) []cache.ScopeKey {
	var keys []cache.ScopeKey
	for _, k := range s.cache.Index().Keys(id) {
		if k.Kind == cache.ScopeBranches && k.ParentID == id {
			continue
		}
		entities, ok := s.cache.Get(k)
		if ok && indexOf(entities, id) >= 0 {
			keys = append(keys, k)
		}
	}
	// Items scopes first so callers see the primary copy.
	slices.SortStableFunc(keys, func(a, b cache.ScopeKey) int {
		switch {
		case a.Kind == b.Kind:
			return 0
		case a.Kind == cache.ScopeItems:
			return -1
		case b.Kind == cache.ScopeItems:
			return 1
		}
		return 0
	})
	return keys
}

func (s *Store) mustEntity(id string) (models.Entity, error) {
	e, ok := s.Entity(id)
	if !ok {
		return models.Entity{}, &domain.NotFoundError{Message: fmt.Sprintf("entity %s is not loaded", id)}
	}
	return e, nil
}

// Snapshot returns a copy of every loaded scope. The result is detached
// from the store.
func (s *Store) Snapshot() map[cache.ScopeKey][]models.Entity {
	out := make(map[cache.ScopeKey][]models.Entity)
	for _, k := range s.cache.Keys() {
		if v, ok := s.cache.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// mutate runs an optimistic mutation on the tree cache and repairs the
// index if it was rolled back.
func (s *Store) mutate(ctx context.Context, m cache.Mutation[[]models.Entity]) error {
	err := s.cache.Mutate(ctx, m)
	if err != nil {
		keys := make([]cache.ScopeKey, 0, len(m.Changes)+len(m.Capture))
		for _, c := range m.Changes {
			keys = append(keys, c.Key)
		}
		keys = append(keys, m.Capture...)
		s.reindex(keys)
	}
	return err
}

// flagChanges sets HasChildren on every copy of the container parentID.
func (s *Store) flagChanges(parentID string, hasChildren bool) []cache.Change[[]models.Entity] {
	if parentID == "" {
		return nil
	}
	var changes []cache.Change[[]models.Entity]
	for _, k := range s.holders(parentID) {
		changes = append(changes, cache.Transform(k, func(list []models.Entity) []models.Entity {
			return updateEntity(list, parentID, func(e *models.Entity) { e.HasChildren = hasChildren })
		}))
	}
	return changes
}

// remainingChildren counts the loaded children of key other than skipID.
// ok is false when the scope is not loaded.
func (s *Store) remainingChildren(key cache.ScopeKey, skipID string) (int, bool) {
	entities, ok := s.cache.Get(key)
	if !ok {
		return 0, false
	}
	n := 0
	for _, e := range entities {
		if e.ID != skipID {
			n++
		}
	}
	return n, true
}
