package cache

import (
	"cmp"
	"slices"
	"sync"
)

// ScopeKind names a family of cached collections.
type ScopeKind string

const (
	// ScopeItems holds the children of a folder ("" = workspace root).
	ScopeItems ScopeKind = "items"
	// ScopeBranches holds the branch chats of a chat.
	ScopeBranches ScopeKind = "branches"
	// ScopeMessages holds the loaded history of a chat.
	ScopeMessages ScopeKind = "messages"
)

// ScopeKey identifies one cached collection.
type ScopeKey struct {
	Kind     ScopeKind
	ParentID string
}

// Items returns the key for the children of folder parentID.
func Items(parentID string) ScopeKey { return ScopeKey{Kind: ScopeItems, ParentID: parentID} }

// Branches returns the key for the branch chats of chatID.
func Branches(chatID string) ScopeKey { return ScopeKey{Kind: ScopeBranches, ParentID: chatID} }

// Messages returns the key for the history of chatID.
func Messages(chatID string) ScopeKey { return ScopeKey{Kind: ScopeMessages, ParentID: chatID} }

func (k ScopeKey) String() string {
	if k.ParentID == "" {
		return string(k.Kind) + ":root"
	}
	return string(k.Kind) + ":" + k.ParentID
}

func compareKeys(a, b ScopeKey) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.ParentID, b.ParentID)
}

// Index maps a parent id to every scope key whose contents depend on it.
// It is maintained incrementally by the owning store so related scopes can
// be found without scanning the cache.
type Index struct {
	mu       sync.RWMutex
	byParent map[string]map[ScopeKey]struct{}
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{byParent: make(map[string]map[ScopeKey]struct{})}
}

// Link records that key holds data related to parentID.
func (ix *Index) Link(parentID string, key ScopeKey) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set, ok := ix.byParent[parentID]
	if !ok {
		set = make(map[ScopeKey]struct{})
		ix.byParent[parentID] = set
	}
	set[key] = struct{}{}
}

// Unlink removes a single association.
func (ix *Index) Unlink(parentID string, key ScopeKey) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set, ok := ix.byParent[parentID]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(ix.byParent, parentID)
	}
}

// Keys returns the scope keys linked to parentID in a stable order.
func (ix *Index) Keys(parentID string) []ScopeKey {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set := ix.byParent[parentID]
	keys := make([]ScopeKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Forget drops every association of parentID.
func (ix *Index) Forget(parentID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.byParent, parentID)
}
