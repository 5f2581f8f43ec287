package memstore

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

// ListMessages returns one page of a chat's history, newest first. offset
// counts from the newest message.
func (s *Store) ListMessages(ctx context.Context, chatID string, offset, limit int) ([]models.Message, error) {
	if offset < 0 || limit <= 0 {
		return nil, invalid("offset must be >= 0 and limit > 0")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.chatNodeLocked(chatID)
	if err != nil {
		return nil, err
	}
	msgs := n.chat.messages
	page := make([]models.Message, 0, min(limit, len(msgs)))
	for i := len(msgs) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		page = append(page, msgs[i].Clone())
	}
	return page, nil
}

// GetDraft returns the saved draft of a chat, or a not-found error when
// there is none.
func (s *Store) GetDraft(ctx context.Context, chatID string) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.chatNodeLocked(chatID)
	if err != nil {
		return nil, err
	}
	if n.chat.draft == nil {
		return nil, notFound("draft for chat", chatID)
	}
	draft := *n.chat.draft
	draft.ReplyToID = clonePtr(draft.ReplyToID)
	draft.ReplyContent = clonePtr(draft.ReplyContent)
	return &draft, nil
}

// PutDraft saves a draft. An empty draft clears the saved one.
func (s *Store) PutDraft(ctx context.Context, draft models.Draft) error {
	if err := validation.Validate(draft.Content, validation.RuneLength(0, config.MaxMessageLength)); err != nil {
		return invalid("content: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.chatNodeLocked(draft.ChatID)
	if err != nil {
		return err
	}
	if draft.Empty() {
		n.chat.draft = nil
		return nil
	}
	draft.ReplyToID = clonePtr(draft.ReplyToID)
	draft.ReplyContent = clonePtr(draft.ReplyContent)
	draft.UpdatedAt = s.now()
	n.chat.draft = &draft
	return nil
}

// Exchange is the state a conversation request starts from.
type Exchange struct {
	// History is the chat before the user message, chronological.
	History []models.Message
	// First is set when the user message is the first of the chat.
	First bool
}

func validateConversation(req models.ConversationRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.MessageID, validation.Required, isUUID),
		validation.Field(&req.ResponseID, validation.Required, isUUID,
			validation.NotIn(req.MessageID).Error("must differ from message_id")),
		validation.Field(&req.Model, validation.Required),
		validation.Field(&req.Content,
			validation.RuneLength(0, config.MaxMessageLength),
			validation.When(len(req.Attachments) == 0, validation.Required)),
	)
	if err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}
	return nil
}

// BeginExchange records the user message of a conversation request. The
// message keeps the id the client chose.
func (s *Store) BeginExchange(ctx context.Context, req models.ConversationRequest) (*Exchange, error) {
	if err := validateConversation(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.chatNodeLocked(req.ChatID)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{req.MessageID, req.ResponseID} {
		if _, exists := s.messageChat[id]; exists {
			return nil, &domain.ConflictError{
				Message:      fmt.Sprintf("message %s already exists", id),
				ResourceType: "message",
				ResourceID:   id,
			}
		}
	}

	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, fileID := range req.Attachments {
		f, ok := s.files[fileID]
		if !ok {
			return nil, notFound("file", fileID)
		}
		if f.meta.Status != models.FileStatusUploaded {
			return nil, invalid("file %s is not finalized", fileID)
		}
		attachments = append(attachments, models.Attachment{FileID: fileID})
	}

	ex := &Exchange{
		History: models.CloneMessages(n.chat.messages),
		First:   len(n.chat.messages) == 0,
	}
	n.chat.messages = append(n.chat.messages, models.Message{
		ID:           req.MessageID,
		ChatID:       req.ChatID,
		Role:         models.RoleUser,
		Content:      req.Content,
		CreatedAt:    s.now(),
		ReplyContent: clonePtr(req.ReplyContent),
		Attachments:  attachments,
	})
	s.messageChat[req.MessageID] = req.ChatID
	return ex, nil
}

// CompleteExchange stores the model's reply under the id the client
// streamed it into.
func (s *Store) CompleteExchange(ctx context.Context, chatID, responseID, model, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.chatNodeLocked(chatID)
	if err != nil {
		return nil, err
	}
	if _, exists := s.messageChat[responseID]; exists {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("message %s already exists", responseID),
			ResourceType: "message",
			ResourceID:   responseID,
		}
	}
	msg := models.Message{
		ID:        responseID,
		ChatID:    chatID,
		Role:      models.RoleModel,
		Content:   content,
		LLMModel:  &model,
		CreatedAt: s.now(),
	}
	n.chat.messages = append(n.chat.messages, msg)
	s.messageChat[responseID] = chatID
	return &msg, nil
}

// SetTitle renames a chat with a generated title.
func (s *Store) SetTitle(ctx context.Context, chatID, title string) error {
	if err := validation.Validate(title, validation.Required, validation.RuneLength(1, config.MaxChatTitleLength)); err != nil {
		return invalid("title: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.chatNodeLocked(chatID)
	if err != nil {
		return err
	}
	n.item.Payload.Name = title
	return nil
}

// Messages returns a chat's full history, chronological.
func (s *Store) Messages(chatID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[chatID]
	if !ok || n.chat == nil {
		return nil
	}
	return models.CloneMessages(n.chat.messages)
}
