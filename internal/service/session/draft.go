package session

import (
	"context"
	"time"

	"branchchat/internal/domain/models"
)

const draftSaveTimeout = 10 * time.Second

// draftLocked builds the persisted form of the session's input.
func (sess *session) draftLocked(now time.Time) models.Draft {
	d := models.Draft{
		ChatID:    sess.chatID,
		Content:   sess.draftContent,
		UpdatedAt: now,
	}
	if sess.reply != nil {
		id, content := sess.reply.ID, sess.reply.Content
		d.ReplyToID = &id
		d.ReplyContent = &content
	}
	return d
}

// LoadDraft seeds the input and reply context from the saved draft.
// Drafts are best effort: failures are logged and otherwise ignored.
func (s *Store) LoadDraft(ctx context.Context, chatID string) {
	s.EnsureInitialized(chatID)

	draft, err := s.deps.Drafts.GetDraft(ctx, chatID)
	if err != nil {
		s.logger.Warn("draft load failed", "chat_id", chatID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return
	}
	sess.draftLoaded = true
	if draft == nil {
		return
	}
	sess.draftContent = draft.Content
	if draft.ReplyToID != nil {
		sess.reply = &models.ReplyContext{ID: *draft.ReplyToID, Content: models.Deref(draft.ReplyContent)}
	}
}

// SetDraft updates the unsent input and schedules a save.
func (s *Store) SetDraft(chatID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.ensureLocked(chatID)
	if sess.draftContent == content {
		return
	}
	sess.draftContent = content
	s.scheduleDraftSaveLocked(sess)
}

// SetReplyContext sets or, with nil, clears the quoted message shown above
// the input. It is part of the draft and schedules a save.
func (s *Store) SetReplyContext(chatID string, reply *models.ReplyContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.ensureLocked(chatID)
	if reply != nil {
		r := *reply
		reply = &r
	}
	sess.reply = reply
	s.scheduleDraftSaveLocked(sess)
}

// scheduleDraftSaveLocked restarts the debounce timer. s.mu must be held.
func (s *Store) scheduleDraftSaveLocked(sess *session) {
	sess.draftDirty = true
	if sess.draftTimer != nil {
		sess.draftTimer.Stop()
	}
	sess.draftTimer = time.AfterFunc(s.opts.DraftDebounce, func() {
		s.saveDraft(sess)
	})
}

// FlushDraft saves a pending draft now, skipping the debounce, unless a
// reply is streaming. It reports whether a save was attempted.
func (s *Store) FlushDraft(chatID string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	if !ok || !sess.draftDirty || sess.active != nil {
		s.mu.Unlock()
		return false
	}
	if sess.draftTimer != nil {
		sess.draftTimer.Stop()
	}
	s.mu.Unlock()

	return s.saveDraft(sess)
}

func (s *Store) saveDraft(sess *session) bool {
	s.mu.Lock()
	if !sess.draftDirty {
		s.mu.Unlock()
		return false
	}
	sess.draftDirty = false
	draft := sess.draftLocked(s.now())
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), draftSaveTimeout)
	defer cancel()
	if err := s.deps.Drafts.PutDraft(ctx, draft); err != nil {
		s.logger.Warn("draft save failed", "chat_id", draft.ChatID, "error", err)
		return true
	}
	s.logger.Debug("draft saved", "chat_id", draft.ChatID, "length", len(draft.Content))
	return true
}
