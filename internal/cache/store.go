// Package cache implements the optimistic client-side cache: collections
// keyed by parent scope, mutated locally first and rolled back to a
// captured snapshot when the remote write fails.
package cache

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"branchchat/internal/domain"
)

// Store holds one collection of type V per scope key. Values handed in and
// out are cloned, so callers never alias the cached data.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[ScopeKey]V
	clone   func(V) V
	index   *Index
	logger  *slog.Logger
}

// NewStore creates a store. clone must deep-copy a value.
func NewStore[V any](clone func(V) V, logger *slog.Logger) *Store[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[V]{
		entries: make(map[ScopeKey]V),
		clone:   clone,
		index:   NewIndex(),
		logger:  logger,
	}
}

// Index returns the store's parent→scope index.
func (s *Store[V]) Index() *Index { return s.index }

// Get returns a copy of the collection at key.
func (s *Store[V]) Get(key ScopeKey) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return s.clone(v), true
}

// Has reports whether key has been loaded.
func (s *Store[V]) Has(key ScopeKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Set replaces the collection at key.
func (s *Store[V]) Set(key ScopeKey, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.clone(v)
}

// Delete drops the collection at key.
func (s *Store[V]) Delete(key ScopeKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Update applies fn to the current value under the write lock. It is the
// local-only counterpart of Mutate.
func (s *Store[V]) Update(key ScopeKey, fn func(current V, ok bool) V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[key]
	s.entries[key] = fn(cur, ok)
}

// Modify applies fn to the value at key if the scope is loaded and reports
// whether it was.
func (s *Store[V]) Modify(key ScopeKey, fn func(current V) V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[key]
	if !ok {
		return false
	}
	s.entries[key] = fn(cur)
	return true
}

// Keys returns every loaded key in a stable order.
func (s *Store[V]) Keys() []ScopeKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]ScopeKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

type snapshotEntry[V any] struct {
	value   V
	present bool
}

// Snapshot is the captured state of a set of scopes.
type Snapshot[V any] struct {
	entries map[ScopeKey]snapshotEntry[V]
}

// Keys lists the scopes held by the snapshot.
func (sn Snapshot[V]) Keys() []ScopeKey {
	keys := make([]ScopeKey, 0, len(sn.entries))
	for k := range sn.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Capture snapshots the given scopes, including whether they were loaded.
func (s *Store[V]) Capture(keys ...ScopeKey) Snapshot[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.captureLocked(keys)
}

func (s *Store[V]) captureLocked(keys []ScopeKey) Snapshot[V] {
	snap := Snapshot[V]{entries: make(map[ScopeKey]snapshotEntry[V], len(keys))}
	for _, k := range keys {
		v, ok := s.entries[k]
		if ok {
			v = s.clone(v)
		}
		snap.entries[k] = snapshotEntry[V]{value: v, present: ok}
	}
	return snap
}

// Restore puts every captured scope back verbatim. Scopes that were not
// loaded at capture time are removed again.
func (s *Store[V]) Restore(snap Snapshot[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range snap.entries {
		if !e.present {
			delete(s.entries, k)
			continue
		}
		s.entries[k] = s.clone(e.value)
	}
}

// Change is one scope update of a mutation.
type Change[V any] struct {
	Key ScopeKey
	// Apply receives the current value (ok=false if the scope is not
	// loaded) and returns the new one.
	Apply func(current V, ok bool) V
	// SkipMissing leaves unloaded scopes untouched instead of calling
	// Apply with the zero value.
	SkipMissing bool
}

// Replace sets key to v regardless of its current value.
func Replace[V any](key ScopeKey, v V) Change[V] {
	return Change[V]{Key: key, Apply: func(V, bool) V { return v }}
}

// Transform runs fn over key's current value if the scope is loaded.
func Transform[V any](key ScopeKey, fn func(V) V) Change[V] {
	return Change[V]{
		Key:         key,
		Apply:       func(cur V, _ bool) V { return fn(cur) },
		SkipMissing: true,
	}
}

// Mutation is an optimistic update: Changes are applied at once, then
// Commit persists them. If Commit fails every scope in Changes and Capture
// is restored and the error is returned wrapped in a MutationError.
type Mutation[V any] struct {
	Op      string
	Changes []Change[V]
	// Capture lists additional scopes whose state must be restored on
	// failure, e.g. scopes the Changes do not touch but Reconcile or a
	// concurrent writer might.
	Capture []ScopeKey
	Commit  func(ctx context.Context) error
	// Reconcile runs after a successful Commit to fold the server's
	// answer back into the cache.
	Reconcile func(s *Store[V])
}

func (m Mutation[V]) keys() []ScopeKey {
	seen := make(map[ScopeKey]struct{}, len(m.Changes)+len(m.Capture))
	var keys []ScopeKey
	add := func(k ScopeKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, c := range m.Changes {
		add(c.Key)
	}
	for _, k := range m.Capture {
		add(k)
	}
	return keys
}

// Mutate runs an optimistic mutation. Mutations on the same scope are not
// serialized; the last local write wins and a failed mutation restores the
// state it captured.
func (s *Store[V]) Mutate(ctx context.Context, m Mutation[V]) error {
	keys := m.keys()

	s.mu.Lock()
	snap := s.captureLocked(keys)
	for _, c := range m.Changes {
		cur, ok := s.entries[c.Key]
		if !ok && c.SkipMissing {
			continue
		}
		s.entries[c.Key] = c.Apply(cur, ok)
	}
	s.mu.Unlock()

	if m.Commit != nil {
		if err := m.Commit(ctx); err != nil {
			s.Restore(snap)
			scope := ""
			if len(keys) > 0 {
				scope = keys[0].String()
			}
			s.logger.Warn("optimistic mutation rolled back",
				"op", m.Op,
				"scopes", len(keys),
				"error", err,
			)
			return &domain.MutationError{Op: m.Op, Scope: scope, Err: err}
		}
	}

	if m.Reconcile != nil {
		m.Reconcile(s)
	}
	return nil
}
