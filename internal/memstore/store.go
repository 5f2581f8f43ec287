// Package memstore is the in-memory state behind the development backend.
// It holds the workspace tree, chats with their messages and branch links,
// drafts and uploaded files, and enforces the rules the real backend
// enforces (authoritative move cycle check, branch link bookkeeping,
// cascading deletes).
package memstore

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

// node is one tree entry. Chats carry a chatState; folders and notes
// don't.
type node struct {
	item models.Item
	chat *chatState
}

type chatState struct {
	parentMessageID *string
	createdAt       time.Time
	messages        []models.Message // chronological
	draft           *models.Draft
}

// Store is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	nodes       map[string]*node
	messageChat map[string]string
	files       map[string]*file
	now         func() time.Time
	logger      *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now. Tests use it for stable timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		nodes:       make(map[string]*node),
		messageChat: make(map[string]string),
		files:       make(map[string]*file),
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notFound(kind, id string) error {
	return &domain.NotFoundError{Message: fmt.Sprintf("%s %s not found", kind, id)}
}

func invalid(format string, args ...any) error {
	return &domain.ValidationError{Message: fmt.Sprintf(format, args...)}
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (s *Store) hasChildrenLocked(id string, kind models.EntityKind) bool {
	for _, n := range s.nodes {
		switch kind {
		case models.KindFolder:
			if models.Deref(n.item.ParentID) == id {
				return true
			}
		case models.KindChat:
			if models.Deref(n.item.ParentChatID) == id {
				return true
			}
		}
	}
	return false
}

func (s *Store) itemLocked(n *node) models.Item {
	it := n.item
	it.ParentID = clonePtr(it.ParentID)
	it.ParentChatID = clonePtr(it.ParentChatID)
	it.HasChildren = s.hasChildrenLocked(it.ID, it.Type)
	return it
}

func (s *Store) chatLocked(n *node) models.Chat {
	return models.Chat{
		ID:                n.item.ID,
		Name:              n.item.Payload.Name,
		ParentDirectoryID: clonePtr(n.item.ParentID),
		ParentChatID:      clonePtr(n.item.ParentChatID),
		ParentMessageID:   clonePtr(n.chat.parentMessageID),
		HasChildren:       s.hasChildrenLocked(n.item.ID, models.KindChat),
		Position:          n.item.Position,
		CreatedAt:         n.chat.createdAt,
	}
}

// sorted returns the nodes matching keep ordered by position, ties broken
// by id so listings are stable.
func (s *Store) sortedLocked(keep func(*node) bool) []*node {
	var out []*node
	for _, n := range s.nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *node) int {
		if c := cmp.Compare(a.item.Position, b.item.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.item.ID, b.item.ID)
	})
	return out
}

func (s *Store) folderLocked(id string) (*node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, notFound("folder", id)
	}
	if n.item.Type != models.KindFolder {
		return nil, invalid("%s is a %s, not a folder", id, n.item.Type)
	}
	return n, nil
}

func (s *Store) chatNodeLocked(id string) (*node, error) {
	n, ok := s.nodes[id]
	if !ok || n.chat == nil {
		return nil, notFound("chat", id)
	}
	return n, nil
}

// removeLocked deletes id and everything below it: folder contents, branch
// chats, messages and the branch link that points at a removed chat. It
// returns the number of tree entries removed.
func (s *Store) removeLocked(id string) int {
	n, ok := s.nodes[id]
	if !ok {
		return 0
	}
	delete(s.nodes, id)
	removed := 1

	if n.chat != nil {
		for _, m := range n.chat.messages {
			delete(s.messageChat, m.ID)
		}
		s.unlinkLocked(n)
	}

	var below []string
	for childID, child := range s.nodes {
		if models.Deref(child.item.ParentID) == id || models.Deref(child.item.ParentChatID) == id {
			below = append(below, childID)
		}
	}
	for _, childID := range below {
		removed += s.removeLocked(childID)
	}
	return removed
}

// unlinkLocked drops the branch link of the parent message that points at
// the chat n.
func (s *Store) unlinkLocked(n *node) {
	msg := s.messageLocked(models.Deref(n.chat.parentMessageID))
	if msg == nil {
		return
	}
	msg.Branches = slices.DeleteFunc(msg.Branches, func(l models.BranchLink) bool {
		return l.ChildChatID == n.item.ID
	})
}

// messageLocked returns a pointer into the owning chat's history, or nil.
func (s *Store) messageLocked(id string) *models.Message {
	chatID, ok := s.messageChat[id]
	if !ok {
		return nil
	}
	n, ok := s.nodes[chatID]
	if !ok || n.chat == nil {
		return nil
	}
	for i := range n.chat.messages {
		if n.chat.messages[i].ID == id {
			return &n.chat.messages[i]
		}
	}
	return nil
}
