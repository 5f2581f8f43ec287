// Package branch creates branch chats off a message and manages their
// connection to the parent afterwards.
package branch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
	"branchchat/internal/service/session"
	"branchchat/internal/service/tree"
)

const maxBranchNameLength = 60

// TreeStore is the part of the tree store the manager drives.
type TreeStore interface {
	Entity(id string) (models.Entity, bool)
	CreateBranchChat(ctx context.Context, bc tree.BranchChat) (*models.Chat, error)
	DeleteEntity(ctx context.Context, id string) error
}

// SessionStore is the part of the chat session store the manager drives.
type SessionStore interface {
	Message(chatID, messageID string) (models.Message, bool)
	AppendBranchLink(chatID, messageID string, link models.BranchLink) (restore func(), err error)
	UpdateMessages(ctx context.Context, chatID, op string, fn func([]models.Message) []models.Message, commit func(context.Context) error) error
	SetBranchOrigin(chatID, parentChatID, parentMessageID string)
	SendMessage(ctx context.Context, req session.SendRequest) (*session.Exchange, error)
	ClearSession(chatID string)
}

// Palette hands out display colors for new links.
type Palette interface {
	RandomColor() string
}

// Opener shows a chat, typically next to its parent. It is called right
// after the link is added, before the chat is persisted.
type Opener func(chatID string)

// Manager coordinates the tree store, the session store and the chat
// backend for branch operations. It only goes through their public
// operations.
type Manager struct {
	tree     TreeStore
	sessions SessionStore
	chats    repositories.ChatRepository
	palette  Palette
	open     Opener
	logger   *slog.Logger
}

// NewManager creates a branch manager. open may be nil.
func NewManager(treeStore TreeStore, sessions SessionStore, chats repositories.ChatRepository, palette Palette, open Opener, logger *slog.Logger) *Manager {
	return &Manager{
		tree:     treeStore,
		sessions: sessions,
		chats:    chats,
		palette:  palette,
		open:     open,
		logger:   logger,
	}
}

// CreateRequest describes a branch to create.
type CreateRequest struct {
	ParentChatID    string
	ParentMessageID string
	ConnectionType  models.ConnectionType
	// Context is FullMessage or TextSelection; nil means FullMessage.
	Context models.BranchContext
	// Name defaults to a shortened selection or prompt.
	Name string
	// Prompt, when set, is sent as the first message of the branch.
	Prompt string
	Model  string
}

// Validate checks the request before anything is changed.
func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ParentChatID, validation.Required),
		validation.Field(&r.ParentMessageID, validation.Required),
		validation.Field(&r.ConnectionType, validation.Required, validation.By(func(any) error {
			if !r.ConnectionType.Valid() {
				return fmt.Errorf("unknown connection type %q", r.ConnectionType)
			}
			return nil
		})),
		validation.Field(&r.Context, validation.By(func(any) error {
			if sel, ok := r.Context.(models.TextSelection); ok {
				return sel.Validate()
			}
			return nil
		})),
		validation.Field(&r.Model, validation.When(r.Prompt != "", validation.Required)),
	)
}

// Result is a created branch. Exchange is nil when no prompt was sent.
type Result struct {
	Chat     *models.Chat
	Link     models.BranchLink
	Exchange *session.Exchange
}

// CreateBranch adds a link to the parent message, opens the new chat,
// persists it and sends the prompt. If persisting fails the parent history
// goes back to its state before the link was added and the tree store
// restores its own state. A failed send leaves the branch in place and
// returns the created Result with the error.
func (m *Manager) CreateBranch(ctx context.Context, req CreateRequest) (*Result, error) {
	if req.Context == nil {
		req.Context = models.FullMessage{}
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	parent, ok := m.sessions.Message(req.ParentChatID, req.ParentMessageID)
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("message %s is not loaded in chat %s", req.ParentMessageID, req.ParentChatID)}
	}

	directoryID := ""
	if chat, ok := m.tree.Entity(req.ParentChatID); ok {
		directoryID = chat.ParentKey()
	}

	childID := uuid.NewString()
	origin := models.BranchOrigin{
		ParentChatID:    req.ParentChatID,
		ParentMessageID: req.ParentMessageID,
		ConnectionType:  req.ConnectionType,
		ConnectionColor: m.palette.RandomColor(),
		Context:         req.Context,
	}
	link := origin.Link(uuid.NewString(), childID)

	restoreLinks, err := m.sessions.AppendBranchLink(req.ParentChatID, req.ParentMessageID, link)
	if err != nil {
		return nil, err
	}
	if m.open != nil {
		m.open(childID)
	}

	name := req.Name
	if name == "" {
		name = branchName(req, parent)
	}
	chat, err := m.tree.CreateBranchChat(ctx, tree.BranchChat{
		ID:          childID,
		Name:        name,
		DirectoryID: directoryID,
		Origin:      origin,
	})
	if err != nil {
		restoreLinks()
		m.logger.Warn("branch creation rolled back",
			"parent_chat_id", req.ParentChatID,
			"parent_message_id", req.ParentMessageID,
			"chat_id", childID,
			"error", err,
		)
		return nil, fmt.Errorf("create branch of message %s: %w", req.ParentMessageID, err)
	}

	m.sessions.SetBranchOrigin(childID, req.ParentChatID, req.ParentMessageID)
	res := &Result{Chat: chat, Link: link}
	m.logger.Info("branch created",
		"chat_id", childID,
		"link_id", link.ID,
		"parent_chat_id", req.ParentChatID,
		"parent_message_id", req.ParentMessageID,
		"connection_type", req.ConnectionType,
		"context_type", req.Context.ContextType(),
	)

	if req.Prompt == "" {
		return res, nil
	}
	ex, err := m.sessions.SendMessage(ctx, session.SendRequest{
		ChatID:  childID,
		Content: req.Prompt,
		Model:   req.Model,
		Branch: &models.ConversationBranch{
			ParentChatID:    req.ParentChatID,
			ParentMessageID: req.ParentMessageID,
		},
	})
	if err != nil {
		return res, fmt.Errorf("send first message of branch %s: %w", childID, err)
	}
	res.Exchange = ex
	return res, nil
}

// branchName derives a chat name from the selection, the prompt or the
// parent message, in that order.
func branchName(req CreateRequest, parent models.Message) string {
	source := parent.Content
	if sel, ok := req.Context.(models.TextSelection); ok {
		source = sel.SelectedText
	} else if req.Prompt != "" {
		source = req.Prompt
	}
	source = strings.Join(strings.Fields(source), " ")
	if source == "" {
		return "Branch"
	}
	runes := []rune(source)
	if len(runes) > maxBranchNameLength {
		return strings.TrimSpace(string(runes[:maxBranchNameLength-1])) + "…"
	}
	return source
}

// findLink returns the link of parentMessageID that points at childChatID.
func (m *Manager) findLink(parentChatID, parentMessageID, childChatID string) (models.BranchLink, error) {
	msg, ok := m.sessions.Message(parentChatID, parentMessageID)
	if !ok {
		return models.BranchLink{}, &domain.NotFoundError{Message: fmt.Sprintf("message %s is not loaded in chat %s", parentMessageID, parentChatID)}
	}
	for _, l := range msg.Branches {
		if l.ChildChatID == childChatID {
			return l, nil
		}
	}
	return models.BranchLink{}, &domain.NotFoundError{Message: fmt.Sprintf("message %s has no branch to chat %s", parentMessageID, childChatID)}
}

// rewriteLinks applies fn to the links of one message.
func rewriteLinks(messageID string, fn func([]models.BranchLink) []models.BranchLink) func([]models.Message) []models.Message {
	return func(msgs []models.Message) []models.Message {
		for i := range msgs {
			if msgs[i].ID == messageID {
				msgs[i].Branches = fn(msgs[i].Branches)
			}
		}
		return msgs
	}
}

// ChangeConnectionType switches the link pointing at childChatID between
// attached and detached. If the backend rejects the change the whole
// history of the parent chat is restored.
func (m *Manager) ChangeConnectionType(ctx context.Context, parentChatID, parentMessageID, childChatID string, connection models.ConnectionType) error {
	if connection != models.ConnectionAttached && connection != models.ConnectionDetached {
		return &domain.ValidationError{Message: fmt.Sprintf("connection type must be attached or detached, got %q", connection)}
	}
	link, err := m.findLink(parentChatID, parentMessageID, childChatID)
	if err != nil {
		return err
	}
	if link.ConnectionType == models.ConnectionTemporary {
		return &domain.ValidationError{Message: "temporary branches cannot change their connection"}
	}
	if link.ConnectionType == connection {
		return nil
	}

	err = m.sessions.UpdateMessages(ctx, parentChatID, "change connection type",
		rewriteLinks(parentMessageID, func(links []models.BranchLink) []models.BranchLink {
			for i := range links {
				if links[i].ChildChatID == childChatID {
					links[i].ConnectionType = connection
				}
			}
			return links
		}),
		func(ctx context.Context) error {
			return m.chats.UpdateConnectionType(ctx, childChatID, connection)
		},
	)
	if err != nil {
		return err
	}

	m.logger.Info("branch connection changed",
		"chat_id", childChatID,
		"parent_chat_id", parentChatID,
		"from", link.ConnectionType,
		"to", connection,
	)
	return nil
}

// ToggleConnection flips attached and detached. Temporary branches have
// no toggle.
func (m *Manager) ToggleConnection(ctx context.Context, parentChatID, parentMessageID, childChatID string) (models.ConnectionType, error) {
	link, err := m.findLink(parentChatID, parentMessageID, childChatID)
	if err != nil {
		return "", err
	}
	next, ok := link.ConnectionType.Toggled()
	if !ok {
		return link.ConnectionType, &domain.ValidationError{Message: fmt.Sprintf("%s branches cannot be toggled", link.ConnectionType)}
	}
	if err := m.ChangeConnectionType(ctx, parentChatID, parentMessageID, childChatID, next); err != nil {
		return link.ConnectionType, err
	}
	return next, nil
}

// DeleteBranch deletes the branch chat and removes its link from the
// parent message. Both are restored if the delete fails.
func (m *Manager) DeleteBranch(ctx context.Context, parentChatID, parentMessageID, childChatID string) error {
	link, err := m.findLink(parentChatID, parentMessageID, childChatID)
	if err != nil {
		return err
	}

	err = m.sessions.UpdateMessages(ctx, parentChatID, "delete branch",
		rewriteLinks(parentMessageID, func(links []models.BranchLink) []models.BranchLink {
			kept := links[:0]
			for _, l := range links {
				if l.ID != link.ID {
					kept = append(kept, l)
				}
			}
			return kept
		}),
		func(ctx context.Context) error {
			if _, ok := m.tree.Entity(childChatID); ok {
				return m.tree.DeleteEntity(ctx, childChatID)
			}
			return m.chats.Delete(ctx, childChatID)
		},
	)
	if err != nil {
		return fmt.Errorf("delete branch %s: %w", childChatID, err)
	}

	m.sessions.ClearSession(childChatID)
	m.logger.Info("branch deleted", "chat_id", childChatID, "parent_chat_id", parentChatID, "link_id", link.ID)
	return nil
}
