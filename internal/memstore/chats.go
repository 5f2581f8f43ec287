package memstore

import (
	"context"
	"fmt"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

const defaultChatName = "New Chat"

func validateChat(req repositories.CreateChatRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.ID, isUUID),
		validation.Field(&req.Name, validation.RuneLength(0, config.MaxChatTitleLength)),
	)
	if err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}
	if req.Branch == nil {
		return nil
	}
	b := req.Branch
	err = validation.ValidateStruct(b,
		validation.Field(&b.ParentChatID, validation.Required),
		validation.Field(&b.ParentMessageID, validation.Required),
		validation.Field(&b.ConnectionType, validation.Required, validation.By(func(any) error {
			if !b.ConnectionType.Valid() {
				return fmt.Errorf("unknown connection type %q", b.ConnectionType)
			}
			return nil
		})),
		validation.Field(&b.Context, validation.NotNil),
	)
	if err != nil {
		return invalid("branch_context: %v", err)
	}
	return nil
}

// CreateChat creates a chat. With a branch origin the chat hangs off the
// parent message, which gets a new branch link pointing at it.
func (s *Store) CreateChat(ctx context.Context, req repositories.CreateChatRequest) (*models.Chat, error) {
	if err := validateChat(req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Name == "" {
		req.Name = defaultChatName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[req.ID]; exists {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("chat %s already exists", req.ID),
			ResourceType: "chat",
			ResourceID:   req.ID,
		}
	}
	if req.ParentDirectoryID != nil {
		if _, err := s.folderLocked(*req.ParentDirectoryID); err != nil {
			return nil, err
		}
	}

	var parent *models.Message
	if b := req.Branch; b != nil {
		if _, err := s.chatNodeLocked(b.ParentChatID); err != nil {
			return nil, err
		}
		parent = s.messageLocked(b.ParentMessageID)
		if parent == nil || parent.ChatID != b.ParentChatID {
			return nil, notFound("message", b.ParentMessageID)
		}
	}

	n := &node{
		item: models.Item{
			ID:       req.ID,
			Type:     models.KindChat,
			ParentID: clonePtr(req.ParentDirectoryID),
			Position: req.Position,
			Payload:  models.ItemPayload{Name: req.Name},
		},
		chat: &chatState{createdAt: s.now()},
	}
	if b := req.Branch; b != nil {
		n.item.ParentChatID = clonePtr(&b.ParentChatID)
		n.chat.parentMessageID = clonePtr(&b.ParentMessageID)
		parent.Branches = append(parent.Branches, b.Link(uuid.NewString(), req.ID))
	}
	s.nodes[req.ID] = n

	s.logger.Debug("chat created",
		"chat_id", req.ID,
		"parent_directory_id", models.Deref(req.ParentDirectoryID),
		"branch", req.Branch != nil,
	)
	chat := s.chatLocked(n)
	return &chat, nil
}

// GetChat returns one chat.
func (s *Store) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.chatNodeLocked(chatID)
	if err != nil {
		return nil, err
	}
	chat := s.chatLocked(n)
	return &chat, nil
}

// DeleteChat removes a chat, its branch chats and the link pointing at it.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.chatNodeLocked(chatID); err != nil {
		return err
	}
	removed := s.removeLocked(chatID)
	s.logger.Debug("chat deleted", "chat_id", chatID, "removed", removed)
	return nil
}

// ListChats returns the branch chats of a chat, or the chats of a
// directory. With no filter it lists the chats at the root.
func (s *Store) ListChats(ctx context.Context, filter repositories.ChatFilter) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keep func(*node) bool
	switch {
	case filter.ParentChatID != nil:
		parentChatID := *filter.ParentChatID
		if _, err := s.chatNodeLocked(parentChatID); err != nil {
			return nil, err
		}
		keep = func(n *node) bool { return models.Deref(n.item.ParentChatID) == parentChatID }
	default:
		dir := models.Deref(filter.ParentDirectoryID)
		if dir != "" {
			if _, err := s.folderLocked(dir); err != nil {
				return nil, err
			}
		}
		keep = func(n *node) bool { return n.chat != nil && models.Deref(n.item.ParentID) == dir }
	}

	nodes := s.sortedLocked(keep)
	chats := make([]models.Chat, 0, len(nodes))
	for _, n := range nodes {
		chats = append(chats, s.chatLocked(n))
	}
	return chats, nil
}

// UpdateConnectionType rewrites the connection of the link pointing at
// childChatID. Only attached and detached are settable and temporary links
// keep their type.
func (s *Store) UpdateConnectionType(ctx context.Context, childChatID string, connection models.ConnectionType) error {
	if _, ok := connection.Toggled(); !ok {
		return invalid("connection type must be attached or detached, got %q", connection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.chatNodeLocked(childChatID)
	if err != nil {
		return err
	}
	if n.chat.parentMessageID == nil {
		return invalid("chat %s is not a branch", childChatID)
	}
	parent := s.messageLocked(*n.chat.parentMessageID)
	if parent == nil {
		return notFound("message", *n.chat.parentMessageID)
	}
	i := slices.IndexFunc(parent.Branches, func(l models.BranchLink) bool { return l.ChildChatID == childChatID })
	if i < 0 {
		return notFound("branch link for chat", childChatID)
	}
	if parent.Branches[i].ConnectionType == models.ConnectionTemporary {
		return invalid("temporary branches cannot change their connection")
	}
	parent.Branches[i].ConnectionType = connection
	return nil
}

// MessageBranches returns the branch links of a message.
func (s *Store) MessageBranches(ctx context.Context, messageID string) ([]models.BranchLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg := s.messageLocked(messageID)
	if msg == nil {
		return nil, notFound("message", messageID)
	}
	links := slices.Clone(msg.Branches)
	if links == nil {
		links = []models.BranchLink{}
	}
	return links, nil
}
