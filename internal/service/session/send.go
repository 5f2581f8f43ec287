package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"branchchat/internal/cache"
	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/service/streaming"
)

const branchRefreshTimeout = 10 * time.Second

// SendRequest is a user message to send.
type SendRequest struct {
	ChatID      string
	Content     string
	Model       string
	Attachments []string
	// Branch names the parent message of a branch chat's first exchange.
	// When nil the origin recorded with SetBranchOrigin is used.
	Branch *models.ConversationBranch
}

// Validate checks the request before anything is changed.
func (r SendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ChatID, validation.Required),
		validation.Field(&r.Content,
			validation.Required.Error("message content is required"),
			validation.RuneLength(1, config.MaxMessageLength),
		),
		validation.Field(&r.Model, validation.Required),
		validation.Field(&r.Attachments, validation.Each(validation.Required)),
	)
}

// Exchange identifies the messages of a sent exchange. Done is closed once
// the reply has completed, failed or been stopped.
type Exchange struct {
	UserMessageID      string
	AssistantMessageID string
	Done               <-chan struct{}
}

// SendMessage appends the user message and an empty reply placeholder,
// opens the conversation stream and ingests it in the background. Only one
// reply may stream per chat; a second send fails with ErrStreamActive.
// A pending reply context is consumed by the send.
func (s *Store) SendMessage(ctx context.Context, req SendRequest) (*Exchange, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	userID, replyID := uuid.NewString(), uuid.NewString()
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	sess := s.ensureLocked(req.ChatID)
	if sess.active != nil {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("send to %s: %w", req.ChatID, domain.ErrStreamActive)
	}
	branch := req.Branch
	if branch == nil {
		branch = sess.origin
	}
	stream := &activeStream{
		messageID: replyID,
		cancel:    cancel,
		branch:    branch,
		done:      make(chan struct{}),
	}
	sess.active = stream
	sess.err = ""
	reply := sess.reply
	sess.reply = nil
	if sess.draftContent != "" || reply != nil {
		sess.draftContent = ""
		s.scheduleDraftSaveLocked(sess)
	}
	attachments := make([]models.Attachment, 0, len(req.Attachments))
	for _, id := range req.Attachments {
		a := models.Attachment{FileID: id}
		if meta, ok := sess.files[id]; ok {
			a.File = &meta
		}
		attachments = append(attachments, a)
	}
	s.mu.Unlock()

	now := s.now()
	model := req.Model
	user := models.Message{
		ID:          userID,
		ChatID:      req.ChatID,
		Role:        models.RoleUser,
		Content:     req.Content,
		CreatedAt:   now,
		Attachments: attachments,
	}
	if reply != nil {
		user.ReplyContent = &reply.Content
	}
	placeholder := models.Message{
		ID:        replyID,
		ChatID:    req.ChatID,
		Role:      models.RoleModel,
		LLMModel:  &model,
		CreatedAt: now.Add(time.Millisecond),
		Status:    models.StatusStreaming,
	}
	s.cache.Modify(cache.Messages(req.ChatID), func(msgs []models.Message) []models.Message {
		return append(msgs, user, placeholder)
	})
	s.emit(Event{Kind: EventStreamStarted, ChatID: req.ChatID, MessageID: replyID})

	convReq := models.ConversationRequest{
		ChatID:        req.ChatID,
		MessageID:     userID,
		ResponseID:    replyID,
		Content:       req.Content,
		Model:         req.Model,
		Attachments:   req.Attachments,
		BranchContext: branch,
	}
	if reply != nil {
		convReq.ReplyTo = &reply.ID
		convReq.ReplyContent = &reply.Content
	}

	chunks, err := s.deps.Conversations.StreamConversation(streamCtx, convReq)
	if err != nil {
		sink := &streamSink{store: s, chatID: req.ChatID, stream: stream}
		outcome := streaming.OutcomeFailed
		if sink.Stopped() {
			outcome = streaming.OutcomeStopped
		} else {
			sink.Fail(err)
		}
		s.endStream(req.ChatID, stream, outcome)
		return nil, fmt.Errorf("open conversation for %s: %w", req.ChatID, err)
	}

	s.logger.Info("message sent",
		"chat_id", req.ChatID,
		"message_id", userID,
		"response_id", replyID,
		"model", req.Model,
		"attachments", len(req.Attachments),
	)

	go func() {
		sink := &streamSink{store: s, chatID: req.ChatID, stream: stream}
		outcome := s.pipeline.Run(streamCtx, chunks, sink)
		s.endStream(req.ChatID, stream, outcome)
		for range chunks {
		}
	}()

	return &Exchange{
		UserMessageID:      userID,
		AssistantMessageID: replyID,
		Done:               stream.done,
	}, nil
}

// StopStreaming cancels the reply streaming in chatID. The partial content
// is kept and no error is recorded. It does nothing if no reply is streaming.
func (s *Store) StopStreaming(chatID string) {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	if !ok || sess.active == nil {
		s.mu.Unlock()
		return
	}
	stream := sess.active
	stream.stopped = true
	sess.active = nil
	s.mu.Unlock()

	stream.cancel()
	s.modifyMessage(chatID, stream.messageID, func(m *models.Message) {
		if m.Status == models.StatusStreaming {
			m.Status = models.StatusComplete
		}
	})
	s.emit(Event{Kind: EventStreamEnded, ChatID: chatID, MessageID: stream.messageID})
	s.logger.Info("streaming stopped", "chat_id", chatID, "response_id", stream.messageID)
}

// endStream releases a finished stream. The session's flags are only
// cleared if the stream is still the active one.
func (s *Store) endStream(chatID string, stream *activeStream, outcome streaming.Outcome) {
	stream.cancel()

	s.mu.Lock()
	wasActive := false
	if sess, ok := s.sessions[chatID]; ok && sess.active == stream {
		sess.active = nil
		wasActive = true
	}
	s.mu.Unlock()

	s.modifyMessage(chatID, stream.messageID, func(m *models.Message) {
		if m.Status == models.StatusStreaming {
			m.Status = models.StatusComplete
		}
	})
	close(stream.done)

	if wasActive {
		s.emit(Event{Kind: EventStreamEnded, ChatID: chatID, MessageID: stream.messageID})
	}
	s.logger.Debug("stream ended", "chat_id", chatID, "response_id", stream.messageID, "outcome", outcome.String())
}

// streamSink applies one stream's effects to its session.
type streamSink struct {
	store  *Store
	chatID string
	stream *activeStream
}

var _ streaming.Sink = (*streamSink)(nil)

func (k *streamSink) Stopped() bool {
	k.store.mu.Lock()
	defer k.store.mu.Unlock()
	return k.stream.stopped
}

// target maps a chunk id onto a message of the session; ids the session
// does not hold refer to the placeholder.
func (k *streamSink) target(id string) string {
	if id == "" || id == k.stream.messageID {
		return k.stream.messageID
	}
	if _, ok := k.store.Message(k.chatID, id); ok {
		return id
	}
	return k.stream.messageID
}

func (k *streamSink) SetContent(id, content string) {
	if k.Stopped() {
		return
	}
	target := k.target(id)
	k.store.modifyMessage(k.chatID, target, func(m *models.Message) { m.Content = content })
	k.store.emit(Event{Kind: EventContent, ChatID: k.chatID, MessageID: target})
}

func (k *streamSink) Finalize(id, content string) {
	if k.Stopped() {
		return
	}
	target := k.target(id)
	k.store.modifyMessage(k.chatID, target, func(m *models.Message) {
		m.Content = content
		m.Status = models.StatusComplete
		m.Error = ""
	})

	if target == k.stream.messageID {
		k.store.mu.Lock()
		if sess, ok := k.store.sessions[k.chatID]; ok && sess.active == k.stream {
			sess.active = nil
		}
		k.store.mu.Unlock()
	}
	k.store.emit(Event{Kind: EventMessages, ChatID: k.chatID, MessageID: target})

	if k.stream.branch != nil {
		k.store.refreshParentBranches(k.stream.branch)
	}
}

func (k *streamSink) SetTitle(chatID, title string) {
	if chatID == "" {
		chatID = k.chatID
	}
	if k.store.deps.Titles != nil {
		k.store.deps.Titles.ApplyTitle(chatID, title)
	}
	k.store.emit(Event{Kind: EventTitle, ChatID: k.chatID, Title: title})
}

func (k *streamSink) Fail(err error) {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "the response timed out"
	}
	k.store.modifyMessage(k.chatID, k.stream.messageID, func(m *models.Message) {
		m.Status = models.StatusError
		m.Error = msg
	})

	k.store.mu.Lock()
	if sess, ok := k.store.sessions[k.chatID]; ok {
		sess.err = msg
		if sess.active == k.stream {
			sess.active = nil
		}
	}
	k.store.mu.Unlock()

	k.store.emit(Event{Kind: EventError, ChatID: k.chatID, MessageID: k.stream.messageID})
	k.store.logger.Warn("streaming failed", "chat_id", k.chatID, "response_id", k.stream.messageID, "error", err)
}

// refreshParentBranches reloads the branch links of the parent message so
// the parent chat shows the branch without a manual refresh. Best effort.
func (s *Store) refreshParentBranches(origin *models.ConversationBranch) {
	if s.deps.Chats == nil || origin.ParentMessageID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), branchRefreshTimeout)
	defer cancel()

	links, err := s.deps.Chats.GetMessageBranches(ctx, origin.ParentMessageID)
	if err != nil {
		s.logger.Warn("parent branch refresh failed",
			"parent_chat_id", origin.ParentChatID,
			"parent_message_id", origin.ParentMessageID,
			"error", err,
		)
		return
	}
	if s.modifyMessage(origin.ParentChatID, origin.ParentMessageID, func(m *models.Message) { m.Branches = links }) {
		s.emit(Event{Kind: EventMessages, ChatID: origin.ParentChatID, MessageID: origin.ParentMessageID})
	}
}
