// Package session holds the live state of open chats: loaded history,
// the streaming reply, the draft and the reply context.
package session

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"branchchat/internal/cache"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
	"branchchat/internal/service/streaming"
)

// TitleSink receives server-generated chat titles.
type TitleSink interface {
	ApplyTitle(chatID, title string)
}

// TitleFunc adapts a function to TitleSink.
type TitleFunc func(chatID, title string)

func (f TitleFunc) ApplyTitle(chatID, title string) { f(chatID, title) }

// Titles fans a title out to several sinks.
func Titles(sinks ...TitleSink) TitleSink {
	return TitleFunc(func(chatID, title string) {
		for _, s := range sinks {
			if s != nil {
				s.ApplyTitle(chatID, title)
			}
		}
	})
}

// Deps are the backends the store talks to.
type Deps struct {
	Messages      repositories.MessageRepository
	Drafts        repositories.DraftRepository
	Conversations repositories.ConversationRepository
	Chats         repositories.ChatRepository
	Files         repositories.FileRepository
	Titles        TitleSink
}

// Options tune the store.
type Options struct {
	// DraftDebounce is the quiet period before a draft change is saved.
	DraftDebounce time.Duration
	// AttachmentConcurrency bounds parallel file metadata lookups.
	AttachmentConcurrency int
}

// State is a copy of one chat session.
type State struct {
	ChatID             string
	Messages           []models.Message
	IsStreaming        bool
	StreamingMessageID string
	HasMoreMessages    bool
	CurrentPage        int
	LoadingOlder       bool
	ReplyContext       *models.ReplyContext
	Draft              *models.Draft
	Error              string
	Files              map[string]models.FileMeta
}

// activeStream is the single in-flight reply of a session.
type activeStream struct {
	messageID string
	cancel    context.CancelFunc
	stopped   bool
	branch    *models.ConversationBranch
	done      chan struct{}
}

type session struct {
	chatID       string
	hasMore      bool
	page         int
	loadingOlder bool
	reply        *models.ReplyContext
	draftContent string
	draftLoaded  bool
	draftDirty   bool
	draftTimer   *time.Timer
	err          string
	files        map[string]models.FileMeta
	origin       *models.ConversationBranch
	active       *activeStream
}

// Store is the chat session store. Each chat's state is only changed
// through its methods. It is safe for concurrent use.
type Store struct {
	deps     Deps
	opts     Options
	cache    *cache.Store[[]models.Message]
	pipeline *streaming.Pipeline
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	subMu sync.Mutex
	subs  map[string]map[chan Event]struct{}
}

// NewStore creates a session store.
func NewStore(deps Deps, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AttachmentConcurrency <= 0 {
		opts.AttachmentConcurrency = 4
	}
	return &Store{
		deps:     deps,
		opts:     opts,
		cache:    cache.NewStore(models.CloneMessages, logger),
		pipeline: streaming.NewPipeline(logger),
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
		subs:     make(map[string]map[chan Event]struct{}),
	}
}

// EnsureInitialized creates the session for chatID if it does not exist.
func (s *Store) EnsureInitialized(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(chatID)
}

func (s *Store) ensureLocked(chatID string) *session {
	sess, ok := s.sessions[chatID]
	if ok {
		return sess
	}
	sess = &session{
		chatID: chatID,
		files:  make(map[string]models.FileMeta),
	}
	s.sessions[chatID] = sess
	s.cache.Update(cache.Messages(chatID), func(cur []models.Message, ok bool) []models.Message {
		if ok {
			return cur
		}
		return []models.Message{}
	})
	s.cache.Index().Link(chatID, cache.Messages(chatID))
	return sess
}

// current returns the live session for chatID, or nil.
func (s *Store) current(chatID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[chatID]
}

// State returns a copy of the session of chatID.
func (s *Store) State(chatID string) (State, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	if !ok {
		s.mu.Unlock()
		return State{}, false
	}
	st := State{
		ChatID:          chatID,
		HasMoreMessages: sess.hasMore,
		CurrentPage:     sess.page,
		LoadingOlder:    sess.loadingOlder,
		Error:           sess.err,
		Files:           maps.Clone(sess.files),
	}
	if sess.active != nil {
		st.IsStreaming = true
		st.StreamingMessageID = sess.active.messageID
	}
	if sess.reply != nil {
		r := *sess.reply
		st.ReplyContext = &r
	}
	if sess.draftLoaded || sess.draftContent != "" || sess.reply != nil {
		d := sess.draftLocked(s.now())
		st.Draft = &d
	}
	s.mu.Unlock()

	st.Messages, _ = s.cache.Get(cache.Messages(chatID))
	return st, true
}

// Messages returns a copy of the loaded history of chatID.
func (s *Store) Messages(chatID string) []models.Message {
	msgs, _ := s.cache.Get(cache.Messages(chatID))
	return msgs
}

// Message looks up one loaded message.
func (s *Store) Message(chatID, messageID string) (models.Message, bool) {
	for _, m := range s.Messages(chatID) {
		if m.ID == messageID {
			return m, true
		}
	}
	return models.Message{}, false
}

// SetBranchOrigin records that chatID is a branch of parentMessageID in
// parentChatID, so the parent's branch badges are refreshed after each
// completed reply.
func (s *Store) SetBranchOrigin(chatID, parentChatID, parentMessageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.ensureLocked(chatID)
	sess.origin = &models.ConversationBranch{
		ParentChatID:    parentChatID,
		ParentMessageID: parentMessageID,
	}
}

// RememberFile makes file metadata known to the session so attachments
// that reference it render without a lookup.
func (s *Store) RememberFile(chatID string, meta models.FileMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(chatID).files[meta.ID] = meta
}

// ClearSession tears a chat down: a pending draft save is flushed unless a
// reply is streaming, the stream is aborted, and all state is dropped.
func (s *Store) ClearSession(chatID string) {
	s.FlushDraft(chatID)
	s.StopStreaming(chatID)

	s.mu.Lock()
	if sess, ok := s.sessions[chatID]; ok {
		if sess.draftTimer != nil {
			sess.draftTimer.Stop()
		}
		delete(s.sessions, chatID)
	}
	s.mu.Unlock()

	s.cache.Delete(cache.Messages(chatID))
	s.cache.Index().Forget(chatID)
	s.closeSubscribers(chatID)
	s.logger.Debug("session cleared", "chat_id", chatID)
}

func (s *Store) modifyMessage(chatID, messageID string, fn func(*models.Message)) bool {
	found := false
	s.cache.Modify(cache.Messages(chatID), func(msgs []models.Message) []models.Message {
		for i := range msgs {
			if msgs[i].ID == messageID {
				fn(&msgs[i])
				found = true
				break
			}
		}
		return msgs
	})
	return found
}
