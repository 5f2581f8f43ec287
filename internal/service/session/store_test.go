package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

// mockMessages serves a chat history newest-first like the backend.
type mockMessages struct {
	mu      sync.Mutex
	history []models.Message // chronological
	calls   []int
	failErr error
}

func (m *mockMessages) ListMessages(ctx context.Context, chatID string, offset, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, offset)
	if m.failErr != nil {
		return nil, m.failErr
	}
	var page []models.Message
	for i := len(m.history) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		page = append(page, m.history[i].Clone())
	}
	return page, nil
}

func (m *mockMessages) add(msgs ...models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, msgs...)
}

func history(chatID string, n int) []models.Message {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{
			ID:        fmt.Sprintf("m%02d", i),
			ChatID:    chatID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

type mockDrafts struct {
	mu      sync.Mutex
	stored  *models.Draft
	getErr  error
	putErr  error
	puts    []models.Draft
	putDone chan struct{}
}

func (m *mockDrafts) GetDraft(ctx context.Context, chatID string) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stored, nil
}

func (m *mockDrafts) PutDraft(ctx context.Context, draft models.Draft) error {
	m.mu.Lock()
	m.puts = append(m.puts, draft)
	done := m.putDone
	err := m.putErr
	m.mu.Unlock()
	if done != nil {
		select {
		case done <- struct{}{}:
		default:
		}
	}
	return err
}

func (m *mockDrafts) getPuts() []models.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Draft(nil), m.puts...)
}

// mockConversation hands each opened stream to the test through feeds.
type mockConversation struct {
	mu       sync.Mutex
	requests []models.ConversationRequest
	feeds    []chan models.StreamChunk
	openErr  error
}

func (m *mockConversation) StreamConversation(ctx context.Context, req models.ConversationRequest) (<-chan models.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.requests = append(m.requests, req)

	feed := make(chan models.StreamChunk)
	out := make(chan models.StreamChunk)
	m.feeds = append(m.feeds, feed)

	go func() {
		defer close(out)
		for {
			select {
			case c, ok := <-feed:
				if !ok {
					return
				}
				select {
				case out <- c:
				case <-ctx.Done():
					out <- models.StreamChunk{Err: ctx.Err()}
					return
				}
			case <-ctx.Done():
				out <- models.StreamChunk{Err: ctx.Err()}
				return
			}
		}
	}()
	return out, nil
}

func (m *mockConversation) feed(i int) chan models.StreamChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeds[i]
}

func (m *mockConversation) lastRequest() models.ConversationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

type mockChats struct {
	mu       sync.Mutex
	branches map[string][]models.BranchLink
}

func (m *mockChats) Create(ctx context.Context, req repositories.CreateChatRequest) (*models.Chat, error) {
	return nil, errors.New("not implemented")
}
func (m *mockChats) Delete(ctx context.Context, chatID string) error { return nil }
func (m *mockChats) List(ctx context.Context, filter repositories.ChatFilter) ([]models.Chat, error) {
	return nil, nil
}
func (m *mockChats) UpdateConnectionType(ctx context.Context, childChatID string, connection models.ConnectionType) error {
	return nil
}
func (m *mockChats) GetMessageBranches(ctx context.Context, messageID string) ([]models.BranchLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[messageID], nil
}

type mockFiles struct {
	mu    sync.Mutex
	metas map[string]models.FileMeta
	calls int
}

func (m *mockFiles) InitUpload(ctx context.Context, req repositories.InitUploadRequest) (*models.UploadTicket, error) {
	return nil, errors.New("not implemented")
}
func (m *mockFiles) Upload(ctx context.Context, uploadURL string, body io.Reader, size int64, mimeType string) error {
	return errors.New("not implemented")
}
func (m *mockFiles) FinalizeUpload(ctx context.Context, fileID string, size int64) (*models.FileMeta, error) {
	return nil, errors.New("not implemented")
}
func (m *mockFiles) GetFile(ctx context.Context, fileID string) (*models.FileMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	meta, ok := m.metas[fileID]
	if !ok {
		return nil, &domain.NotFoundError{Message: "file not found"}
	}
	return &meta, nil
}

type recordedTitles struct {
	mu     sync.Mutex
	titles map[string]string
}

func (r *recordedTitles) ApplyTitle(chatID, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.titles == nil {
		r.titles = map[string]string{}
	}
	r.titles[chatID] = title
}

func (r *recordedTitles) get(chatID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.titles[chatID]
}

type fixture struct {
	store    *Store
	messages *mockMessages
	drafts   *mockDrafts
	convo    *mockConversation
	chats    *mockChats
	files    *mockFiles
	titles   *recordedTitles
}

func newFixture(debounce time.Duration) *fixture {
	f := &fixture{
		messages: &mockMessages{},
		drafts:   &mockDrafts{},
		convo:    &mockConversation{},
		chats:    &mockChats{branches: map[string][]models.BranchLink{}},
		files:    &mockFiles{metas: map[string]models.FileMeta{}},
		titles:   &recordedTitles{},
	}
	f.store = NewStore(Deps{
		Messages:      f.messages,
		Drafts:        f.drafts,
		Conversations: f.convo,
		Chats:         f.chats,
		Files:         f.files,
		Titles:        f.titles,
	}, Options{DraftDebounce: debounce}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, ex *Exchange) {
	t.Helper()
	select {
	case <-ex.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not finish")
	}
}

func messageIDs(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestPaginationContinuity(t *testing.T) {
	f := newFixture(time.Hour)
	f.messages.history = history("c1", 45)
	ctx := context.Background()

	if err := f.store.LoadFirstPage(ctx, "c1"); err != nil {
		t.Fatalf("LoadFirstPage: %v", err)
	}
	st, _ := f.store.State("c1")
	if len(st.Messages) != 20 || st.Messages[0].ID != "m25" || st.Messages[19].ID != "m44" {
		t.Fatalf("first page = %v", messageIDs(st.Messages))
	}
	if !st.HasMoreMessages || st.CurrentPage != 1 {
		t.Fatalf("hasMore=%v page=%d", st.HasMoreMessages, st.CurrentPage)
	}

	for i := 0; i < 2; i++ {
		if err := f.store.LoadOlderPage(ctx, "c1"); err != nil {
			t.Fatalf("LoadOlderPage: %v", err)
		}
	}

	st, _ = f.store.State("c1")
	want := messageIDs(history("c1", 45))
	if got := messageIDs(st.Messages); !reflect.DeepEqual(got, want) {
		t.Fatalf("history = %v\nwant %v", got, want)
	}
	if st.HasMoreMessages {
		t.Error("hasMore should be false after a short page")
	}

	calls := len(f.messages.calls)
	if err := f.store.LoadOlderPage(ctx, "c1"); err != nil {
		t.Fatalf("LoadOlderPage: %v", err)
	}
	if len(f.messages.calls) != calls {
		t.Error("LoadOlderPage fetched although no pages are left")
	}
}

func TestLoadOlderPageDedupesOverlap(t *testing.T) {
	f := newFixture(time.Hour)
	f.messages.history = history("c1", 30)
	ctx := context.Background()

	if err := f.store.LoadFirstPage(ctx, "c1"); err != nil {
		t.Fatalf("LoadFirstPage: %v", err)
	}
	// Two new messages shift every offset by two.
	more := history("c1", 32)[30:]
	f.messages.add(more...)

	if err := f.store.LoadOlderPage(ctx, "c1"); err != nil {
		t.Fatalf("LoadOlderPage: %v", err)
	}
	st, _ := f.store.State("c1")
	seen := map[string]bool{}
	for _, m := range st.Messages {
		if seen[m.ID] {
			t.Fatalf("duplicate message %s in %v", m.ID, messageIDs(st.Messages))
		}
		seen[m.ID] = true
	}
	for i := 1; i < len(st.Messages); i++ {
		if st.Messages[i].CreatedAt.Before(st.Messages[i-1].CreatedAt) {
			t.Fatalf("history out of order at %d: %v", i, messageIDs(st.Messages))
		}
	}
	if len(st.Messages) != 30 {
		t.Errorf("len = %d, want 30", len(st.Messages))
	}
}

func TestLoadFirstPageResolvesAttachments(t *testing.T) {
	f := newFixture(time.Hour)
	msgs := history("c1", 2)
	msgs[0].Attachments = []models.Attachment{{FileID: "f1"}}
	msgs[1].Attachments = []models.Attachment{{FileID: "f1"}, {FileID: "missing"}}
	f.messages.history = msgs
	f.files.metas["f1"] = models.FileMeta{ID: "f1", Name: "notes.pdf", Status: models.FileStatusUploaded}

	if err := f.store.LoadFirstPage(context.Background(), "c1"); err != nil {
		t.Fatalf("LoadFirstPage: %v", err)
	}
	st, _ := f.store.State("c1")
	if st.Messages[0].Attachments[0].File == nil || st.Messages[0].Attachments[0].File.Name != "notes.pdf" {
		t.Errorf("attachment not resolved: %+v", st.Messages[0].Attachments)
	}
	if st.Messages[1].Attachments[1].File != nil {
		t.Error("unknown file should stay unresolved")
	}
	if _, ok := st.Files["f1"]; !ok {
		t.Error("file metadata not kept in session")
	}
	if f.files.calls != 2 {
		t.Errorf("GetFile calls = %d, want one per distinct file", f.files.calls)
	}
}

func TestSendMessageStreamsAndCompletes(t *testing.T) {
	f := newFixture(time.Hour)
	f.store.EnsureInitialized("c1")

	ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "hi", Model: "lorem-fast"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	st, _ := f.store.State("c1")
	if !st.IsStreaming || st.StreamingMessageID != ex.AssistantMessageID {
		t.Fatalf("streaming flags = %v %q", st.IsStreaming, st.StreamingMessageID)
	}
	if got := messageIDs(st.Messages); !reflect.DeepEqual(got, []string{ex.UserMessageID, ex.AssistantMessageID}) {
		t.Fatalf("messages = %v", got)
	}

	feed := f.convo.feed(0)
	feed <- models.StreamChunk{Type: models.ChunkContent, ID: ex.AssistantMessageID, Body: "Hel"}
	feed <- models.StreamChunk{Type: models.ChunkContent, ID: ex.AssistantMessageID, Body: "lo"}
	feed <- models.StreamChunk{Type: models.ChunkTitle, ChatID: "c1", Title: "Greetings"}
	feed <- models.StreamChunk{Type: models.ChunkComplete, ID: ex.AssistantMessageID}
	feed <- models.StreamChunk{Type: models.ChunkComplete, ID: ex.AssistantMessageID}
	close(feed)
	waitDone(t, ex)

	st, _ = f.store.State("c1")
	if st.IsStreaming || st.StreamingMessageID != "" {
		t.Error("streaming flags not cleared")
	}
	reply := st.Messages[1]
	if reply.Content != "Hello" || reply.Status != models.StatusComplete {
		t.Errorf("reply = %q (%q)", reply.Content, reply.Status)
	}
	if f.titles.get("c1") != "Greetings" {
		t.Errorf("title = %q", f.titles.get("c1"))
	}

	req := f.convo.lastRequest()
	if req.MessageID != ex.UserMessageID || req.ResponseID != ex.AssistantMessageID || req.Model != "lorem-fast" {
		t.Errorf("request = %+v", req)
	}
}

func TestStopVersusTransportError(t *testing.T) {
	t.Run("stop keeps partial content without error", func(t *testing.T) {
		f := newFixture(time.Hour)
		ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "hi", Model: "m"})
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		f.convo.feed(0) <- models.StreamChunk{Type: models.ChunkContent, ID: ex.AssistantMessageID, Body: "partial"}
		waitFor(t, "partial content", func() bool {
			m, _ := f.store.Message("c1", ex.AssistantMessageID)
			return m.Content == "partial"
		})

		f.store.StopStreaming("c1")
		f.store.StopStreaming("c1")
		waitDone(t, ex)

		st, _ := f.store.State("c1")
		reply := st.Messages[1]
		if st.IsStreaming {
			t.Error("still streaming")
		}
		if reply.Content != "partial" || reply.Error != "" || reply.Status == models.StatusError || st.Error != "" {
			t.Errorf("reply after stop = %+v, session error %q", reply, st.Error)
		}
	})

	t.Run("transport failure marks the reply", func(t *testing.T) {
		f := newFixture(time.Hour)
		ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "hi", Model: "m"})
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		feed := f.convo.feed(0)
		feed <- models.StreamChunk{Type: models.ChunkContent, ID: ex.AssistantMessageID, Body: "par"}
		feed <- models.StreamChunk{Err: errors.New("connection reset")}
		waitDone(t, ex)

		st, _ := f.store.State("c1")
		reply := st.Messages[1]
		if st.IsStreaming {
			t.Error("still streaming")
		}
		if reply.Status != models.StatusError || reply.Error == "" || st.Error == "" {
			t.Errorf("reply after failure = %+v, session error %q", reply, st.Error)
		}
		if reply.Content != "par" {
			t.Errorf("partial content lost: %q", reply.Content)
		}
	})
}

func TestSendWhileStreamingIsRejected(t *testing.T) {
	f := newFixture(time.Hour)
	ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "one", Model: "m"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	_, err = f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "two", Model: "m"})
	if !errors.Is(err, domain.ErrStreamActive) {
		t.Fatalf("expected ErrStreamActive, got %v", err)
	}
	if n := len(f.store.Messages("c1")); n != 2 {
		t.Errorf("rejected send changed history: %d messages", n)
	}

	close(f.convo.feed(0))
	waitDone(t, ex)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(time.Hour)
	f.store.EnsureInitialized("c1")

	_, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "   ", Model: "m"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.store.Messages("c1")) != 0 {
		t.Error("invalid send changed history")
	}
}

func TestSendOpenFailureMarksReply(t *testing.T) {
	f := newFixture(time.Hour)
	f.convo.openErr = errors.New("backend down")

	_, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "hi", Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	st, _ := f.store.State("c1")
	if st.IsStreaming {
		t.Error("still streaming after open failure")
	}
	if len(st.Messages) != 2 || st.Messages[1].Status != models.StatusError {
		t.Errorf("messages = %+v", st.Messages)
	}
}

func TestReplyContextIsConsumed(t *testing.T) {
	f := newFixture(time.Hour)
	f.store.SetReplyContext("c1", &models.ReplyContext{ID: "m1", Content: "quoted"})

	ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "answer", Model: "m"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	req := f.convo.lastRequest()
	if req.ReplyTo == nil || *req.ReplyTo != "m1" {
		t.Errorf("reply_to = %v", req.ReplyTo)
	}
	st, _ := f.store.State("c1")
	if st.ReplyContext != nil {
		t.Error("reply context not cleared after send")
	}
	if user := st.Messages[0]; user.ReplyContent == nil || *user.ReplyContent != "quoted" {
		t.Errorf("user message reply content = %v", user.ReplyContent)
	}

	close(f.convo.feed(0))
	waitDone(t, ex)
}

func TestBranchCompletionRefreshesParent(t *testing.T) {
	f := newFixture(time.Hour)
	parent := history("parent", 1)
	f.messages.history = parent
	if err := f.store.LoadFirstPage(context.Background(), "parent"); err != nil {
		t.Fatalf("LoadFirstPage: %v", err)
	}
	link := models.BranchLink{ID: "l1", ChildChatID: "child", ConnectionType: models.ConnectionAttached, Context: models.FullMessage{}}
	f.chats.branches[parent[0].ID] = []models.BranchLink{link}

	f.store.SetBranchOrigin("child", "parent", parent[0].ID)
	ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "child", Content: "go deeper", Model: "m"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if req := f.convo.lastRequest(); req.BranchContext == nil || req.BranchContext.ParentMessageID != parent[0].ID {
		t.Errorf("branch context = %+v", req.BranchContext)
	}

	feed := f.convo.feed(0)
	feed <- models.StreamChunk{Type: models.ChunkComplete, ID: ex.AssistantMessageID}
	close(feed)
	waitDone(t, ex)

	m, _ := f.store.Message("parent", parent[0].ID)
	if !reflect.DeepEqual(m.Branches, []models.BranchLink{link}) {
		t.Errorf("parent branches = %+v", m.Branches)
	}
}

func TestDraftDebounceAndFlush(t *testing.T) {
	f := newFixture(50 * time.Millisecond)
	f.drafts.putDone = make(chan struct{}, 4)

	f.store.SetDraft("c1", "h")
	f.store.SetDraft("c1", "he")
	f.store.SetDraft("c1", "hello")

	select {
	case <-f.drafts.putDone:
	case <-time.After(2 * time.Second):
		t.Fatal("draft was not saved")
	}
	puts := f.drafts.getPuts()
	if len(puts) != 1 || puts[0].Content != "hello" {
		t.Fatalf("puts = %+v, want one save of the last value", puts)
	}

	// A pending change is flushed when the session is cleared.
	f.store.SetDraft("c1", "bye")
	f.store.ClearSession("c1")
	puts = f.drafts.getPuts()
	if len(puts) != 2 || puts[1].Content != "bye" {
		t.Fatalf("puts after clear = %+v", puts)
	}
	if _, ok := f.store.State("c1"); ok {
		t.Error("session still present after clear")
	}
}

func TestFlushSkippedWhileStreaming(t *testing.T) {
	f := newFixture(time.Hour)
	ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "hi", Model: "m"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	f.store.SetDraft("c1", "typing")
	if f.store.FlushDraft("c1") {
		t.Error("draft flushed while a reply is streaming")
	}
	close(f.convo.feed(0))
	waitDone(t, ex)
}

func TestLoadDraft(t *testing.T) {
	t.Run("seeds input and reply context", func(t *testing.T) {
		f := newFixture(time.Hour)
		replyTo, quoted := "m9", "quoted text"
		f.drafts.stored = &models.Draft{ChatID: "c1", Content: "half written", ReplyToID: &replyTo, ReplyContent: &quoted}

		f.store.LoadDraft(context.Background(), "c1")
		st, _ := f.store.State("c1")
		if st.Draft == nil || st.Draft.Content != "half written" {
			t.Errorf("draft = %+v", st.Draft)
		}
		if st.ReplyContext == nil || st.ReplyContext.ID != "m9" || st.ReplyContext.Content != "quoted text" {
			t.Errorf("reply context = %+v", st.ReplyContext)
		}
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		f := newFixture(time.Hour)
		f.drafts.getErr = errors.New("draft service down")
		f.store.LoadDraft(context.Background(), "c1")
		st, ok := f.store.State("c1")
		if !ok || st.Error != "" || st.Draft != nil {
			t.Errorf("state after failed draft load = %+v", st)
		}
	})
}

func TestUpdateMessagesRollsBackWholeHistory(t *testing.T) {
	f := newFixture(time.Hour)
	f.messages.history = history("c1", 3)
	if err := f.store.LoadFirstPage(context.Background(), "c1"); err != nil {
		t.Fatalf("LoadFirstPage: %v", err)
	}
	before, _ := f.store.Snapshot("c1")

	commitErr := errors.New("metadata update rejected")
	err := f.store.UpdateMessages(context.Background(), "c1", "change connection", func(msgs []models.Message) []models.Message {
		msgs[0].Content = "changed"
		return msgs[1:]
	}, func(ctx context.Context) error { return commitErr })
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}

	after, _ := f.store.Snapshot("c1")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("history not restored\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestSubscribeReceivesStreamEvents(t *testing.T) {
	f := newFixture(time.Hour)
	events, cancel := f.store.Subscribe("c1")
	defer cancel()

	ex, err := f.store.SendMessage(context.Background(), SendRequest{ChatID: "c1", Content: "hi", Model: "m"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	feed := f.convo.feed(0)
	feed <- models.StreamChunk{Type: models.ChunkContent, ID: ex.AssistantMessageID, Body: "x"}
	feed <- models.StreamChunk{Type: models.ChunkComplete, ID: ex.AssistantMessageID}
	close(feed)
	waitDone(t, ex)

	var kinds []EventKind
	timeout := time.After(time.Second)
	for len(kinds) < 3 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("events so far: %v", kinds)
		}
	}
	if kinds[0] != EventStreamStarted || kinds[1] != EventContent || kinds[2] != EventMessages {
		t.Errorf("events = %v", kinds)
	}
}
