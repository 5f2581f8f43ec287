package tree

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"branchchat/internal/cache"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
)

var errBackend = errors.New("backend rejected the request")

// mockItems is an in-memory ItemRepository with failure injection.
type mockItems struct {
	mu        sync.Mutex
	root      []models.Item
	children  map[string][]models.Item
	listDelay time.Duration
	listCalls int

	failCreate error
	failMove   error
	failRename error
	failDelete error

	renormalized     map[string][]models.ItemPosition
	renormalizeCalls int
	created          []models.Item
	moves            []repositories.MoveItemRequest
}

func (m *mockItems) ListRoot(ctx context.Context) ([]models.Item, error) {
	return m.list("")
}

func (m *mockItems) ListChildren(ctx context.Context, parentID string) ([]models.Item, error) {
	return m.list(parentID)
}

func (m *mockItems) list(parentID string) ([]models.Item, error) {
	m.mu.Lock()
	m.listCalls++
	delay := m.listDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if parentID == "" {
		return append([]models.Item(nil), m.root...), nil
	}
	return append([]models.Item(nil), m.children[parentID]...), nil
}

func (m *mockItems) Create(ctx context.Context, item models.Item) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	m.created = append(m.created, item)
	return &item, nil
}

func (m *mockItems) Move(ctx context.Context, id string, req repositories.MoveItemRequest) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMove != nil {
		return nil, m.failMove
	}
	m.moves = append(m.moves, req)
	return &models.Item{ID: id, ParentID: req.ParentID, Position: req.Position}, nil
}

func (m *mockItems) Rename(ctx context.Context, id, name string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRename != nil {
		return nil, m.failRename
	}
	return &models.Item{ID: id, Payload: models.ItemPayload{Name: name}}, nil
}

func (m *mockItems) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failDelete
}

func (m *mockItems) Renormalize(ctx context.Context, parentID string) ([]models.ItemPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renormalizeCalls++
	return m.renormalized[parentID], nil
}

func (m *mockItems) getListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// mockChats is an in-memory ChatRepository with failure injection.
type mockChats struct {
	mu         sync.Mutex
	byParent   map[string][]models.Chat
	failCreate error
	failDelete error
	failList   error
	created    []repositories.CreateChatRequest
	deleted    []string
}

func (m *mockChats) Create(ctx context.Context, req repositories.CreateChatRequest) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	m.created = append(m.created, req)
	return &models.Chat{ID: req.ID, Name: req.Name, ParentDirectoryID: req.ParentDirectoryID, Position: req.Position}, nil
}

func (m *mockChats) Delete(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	m.deleted = append(m.deleted, chatID)
	return nil
}

func (m *mockChats) List(ctx context.Context, filter repositories.ChatFilter) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	if filter.ParentChatID == nil {
		return nil, nil
	}
	return append([]models.Chat(nil), m.byParent[*filter.ParentChatID]...), nil
}

func (m *mockChats) UpdateConnectionType(ctx context.Context, childChatID string, connection models.ConnectionType) error {
	return nil
}

func (m *mockChats) GetMessageBranches(ctx context.Context, messageID string) ([]models.BranchLink, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func item(id string, kind models.EntityKind, parent string, pos float64) models.Item {
	return models.Item{
		ID:       id,
		Type:     kind,
		ParentID: models.Ptr(parent),
		Position: pos,
		Payload:  models.ItemPayload{Name: id},
	}
}

func ids(entities []models.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

func newLoadedStore(t *testing.T, items *mockItems, chats *mockChats, parents ...string) *Store {
	t.Helper()
	s := NewStore(items, chats, testLogger())
	for _, p := range parents {
		if err := s.LoadChildren(context.Background(), p); err != nil {
			t.Fatalf("LoadChildren(%q): %v", p, err)
		}
	}
	return s
}

func TestLoadChildrenSuppressesDuplicates(t *testing.T) {
	items := &mockItems{
		root:      []models.Item{item("a", models.KindFolder, "", 1024)},
		listDelay: 20 * time.Millisecond,
	}
	s := NewStore(items, &mockChats{}, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.LoadChildren(context.Background(), ""); err != nil {
				t.Errorf("LoadChildren: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := s.LoadChildren(context.Background(), ""); err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}
	if got := items.getListCalls(); got != 1 {
		t.Errorf("list calls = %d, want 1", got)
	}
	if got := ids(s.Children("")); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("children = %v", got)
	}
}

func TestLoadChildrenOfChatLoadsBranches(t *testing.T) {
	items := &mockItems{root: []models.Item{item("chat1", models.KindChat, "", 1024)}}
	chats := &mockChats{byParent: map[string][]models.Chat{
		"chat1": {{ID: "b1", Name: "branch", ParentChatID: models.Ptr("chat1"), Position: 5}},
	}}
	s := newLoadedStore(t, items, chats, "", "chat1")

	got := s.Branches("chat1")
	if len(got) != 1 || got[0].ID != "b1" || !got[0].IsBranchOf("chat1") {
		t.Errorf("branches = %+v", got)
	}
	if !reflect.DeepEqual(s.Children("chat1"), got) {
		t.Error("Children of a chat should be its branches")
	}
}

func TestCreationOrder(t *testing.T) {
	s := newLoadedStore(t, &mockItems{}, &mockChats{}, "")
	ctx := context.Background()

	var created []string
	for _, name := range []string{"first", "second", "third"} {
		id, err := s.CreateTemporaryEntity(ctx, models.KindFolder, "")
		if err != nil {
			t.Fatalf("CreateTemporaryEntity: %v", err)
		}
		if err := s.FinalizeCreation(ctx, id, name); err != nil {
			t.Fatalf("FinalizeCreation: %v", err)
		}
		created = append(created, id)
	}

	want := []string{created[2], created[1], created[0]}
	if got := ids(s.Children("")); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want newest first %v", got, want)
	}

	// Move the oldest between the two newer ones.
	one := 1
	if err := s.MoveEntity(ctx, created[0], "", &one); err != nil {
		t.Fatalf("MoveEntity: %v", err)
	}
	want = []string{created[2], created[0], created[1]}
	if got := ids(s.Children("")); !reflect.DeepEqual(got, want) {
		t.Fatalf("order after move = %v, want %v", got, want)
	}

	seen := map[float64]bool{}
	for _, e := range s.Children("") {
		if seen[e.Position] {
			t.Fatalf("duplicate position %v", e.Position)
		}
		seen[e.Position] = true
	}
}

func TestFinalizeFailureRemovesPlaceholder(t *testing.T) {
	items := &mockItems{
		root:       []models.Item{item("a", models.KindFolder, "", 1024)},
		failCreate: errBackend,
	}
	s := newLoadedStore(t, items, &mockChats{}, "")
	before := s.Snapshot()

	id, err := s.CreateTemporaryEntity(context.Background(), models.KindNote, "")
	if err != nil {
		t.Fatalf("CreateTemporaryEntity: %v", err)
	}
	if s.EditState(id) != EditPlaceholder {
		t.Fatalf("state = %v, want placeholder", s.EditState(id))
	}
	if got := ids(s.Children("")); got[0] != id {
		t.Fatalf("placeholder not at top: %v", got)
	}

	err = s.FinalizeCreation(context.Background(), id, "notes")
	var mutErr *domain.MutationError
	if !errors.As(err, &mutErr) || !errors.Is(err, errBackend) {
		t.Fatalf("expected rolled back MutationError, got %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Errorf("placeholder not removed\nbefore: %+v\nafter:  %+v", before, s.Snapshot())
	}
	if s.EditState(id) != EditNone {
		t.Errorf("edit state = %v after failure", s.EditState(id))
	}
}

func TestRenameRollback(t *testing.T) {
	items := &mockItems{
		root:       []models.Item{item("a", models.KindFolder, "", 1024)},
		failRename: errBackend,
	}
	s := newLoadedStore(t, items, &mockChats{}, "")
	before := s.Snapshot()

	if err := s.RenameEntity(context.Background(), "a", "renamed"); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Error("rename was not rolled back")
	}

	items.failRename = nil
	if err := s.RenameEntity(context.Background(), "a", "renamed"); err != nil {
		t.Fatalf("RenameEntity: %v", err)
	}
	if e, _ := s.Entity("a"); e.Name != "renamed" {
		t.Errorf("name = %q", e.Name)
	}
}

func TestRenameRejectsEmptyName(t *testing.T) {
	items := &mockItems{root: []models.Item{item("a", models.KindFolder, "", 1024)}}
	s := newLoadedStore(t, items, &mockChats{}, "")

	err := s.RenameEntity(context.Background(), "a", "   ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// branchFixture is a folder "dir" holding chat "p" and its only branch "b".
func branchFixture(t *testing.T, items *mockItems, chats *mockChats) *Store {
	t.Helper()
	p := item("p", models.KindChat, "dir", 2048)
	p.HasChildren = true
	b := item("b", models.KindChat, "dir", 1024)
	b.ParentChatID = models.Ptr("p")

	items.root = []models.Item{item("dir", models.KindFolder, "", 1024)}
	items.root[0].HasChildren = true
	items.children = map[string][]models.Item{"dir": {p, b}}
	chats.byParent = map[string][]models.Chat{
		"p": {{ID: "b", Name: "b", ParentDirectoryID: models.Ptr("dir"), ParentChatID: models.Ptr("p"), Position: 1024}},
	}
	return newLoadedStore(t, items, chats, "", "dir", "p")
}

func TestDeleteLastBranchClearsHasChildren(t *testing.T) {
	items, chats := &mockItems{}, &mockChats{}
	s := branchFixture(t, items, chats)

	if err := s.DeleteEntity(context.Background(), "b"); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	p, _ := s.Entity("p")
	if p.HasChildren {
		t.Error("parent chat should have no children after its last branch is deleted")
	}
	if got := ids(s.Children("dir")); !reflect.DeepEqual(got, []string{"p"}) {
		t.Errorf("dir children = %v", got)
	}
	if len(s.Branches("p")) != 0 {
		t.Errorf("branches = %v", s.Branches("p"))
	}
	if !reflect.DeepEqual(chats.deleted, []string{"b"}) {
		t.Errorf("chats deleted = %v, want chat endpoint to be used", chats.deleted)
	}
}

func TestDeleteBranchCountsLoadedSiblingsWhenListingFails(t *testing.T) {
	p := item("p", models.KindChat, "dir", 2048)
	p.HasChildren = true
	b1 := item("b1", models.KindChat, "dir", 1024)
	b1.ParentChatID = models.Ptr("p")
	b2 := item("b2", models.KindChat, "other", 1024)
	b2.ParentChatID = models.Ptr("p")

	items := &mockItems{
		root: []models.Item{
			item("dir", models.KindFolder, "", 2048),
			item("other", models.KindFolder, "", 1024),
		},
		children: map[string][]models.Item{"dir": {p, b1}, "other": {b2}},
	}
	chats := &mockChats{failList: errBackend}
	s := newLoadedStore(t, items, chats, "", "dir", "other")

	// The sibling lives in another folder than both the parent and the
	// deleted branch.
	if err := s.DeleteEntity(context.Background(), "b1"); err != nil {
		t.Fatalf("DeleteEntity(b1): %v", err)
	}
	if p, _ := s.Entity("p"); !p.HasChildren {
		t.Error("parent chat lost its flag while b2 is still a branch")
	}

	if err := s.DeleteEntity(context.Background(), "b2"); err != nil {
		t.Fatalf("DeleteEntity(b2): %v", err)
	}
	if p, _ := s.Entity("p"); p.HasChildren {
		t.Error("parent chat should have no children after its last branch is deleted")
	}
}

func TestDeleteRollbackRestoresEntityAndFlag(t *testing.T) {
	items, chats := &mockItems{}, &mockChats{failDelete: errBackend}
	s := branchFixture(t, items, chats)
	before := s.Snapshot()

	if err := s.DeleteEntity(context.Background(), "b"); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Errorf("delete not rolled back\nbefore: %+v\nafter:  %+v", before, s.Snapshot())
	}
	if p, _ := s.Entity("p"); !p.HasChildren {
		t.Error("parent flag not restored")
	}
}

func TestMoveRollbackRestoresBothScopes(t *testing.T) {
	items := &mockItems{
		root: []models.Item{
			item("f1", models.KindFolder, "", 2048),
			item("f2", models.KindFolder, "", 1024),
		},
		children: map[string][]models.Item{
			"f1": {item("n1", models.KindNote, "f1", 1024)},
			"f2": {item("n2", models.KindNote, "f2", 1024)},
		},
		failMove: errBackend,
	}
	s := newLoadedStore(t, items, &mockChats{}, "", "f1", "f2")
	before := s.Snapshot()

	if err := s.MoveEntity(context.Background(), "n1", "f2", nil); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), before) {
		t.Errorf("move not rolled back\nbefore: %+v\nafter:  %+v", before, s.Snapshot())
	}
	if e, ok := s.Entity("n1"); !ok || e.ParentKey() != "f1" {
		t.Errorf("n1 lookup after rollback = %+v, %v", e, ok)
	}
}

func TestMoveAcrossFolders(t *testing.T) {
	items := &mockItems{
		root: []models.Item{
			item("f1", models.KindFolder, "", 2048),
			item("f2", models.KindFolder, "", 1024),
		},
		children: map[string][]models.Item{
			"f1": {item("n1", models.KindNote, "f1", 1024)},
		},
	}
	items.root[0].HasChildren = true
	s := newLoadedStore(t, items, &mockChats{}, "", "f1", "f2")

	if err := s.MoveEntity(context.Background(), "n1", "f2", nil); err != nil {
		t.Fatalf("MoveEntity: %v", err)
	}
	if got := s.Children("f1"); len(got) != 0 {
		t.Errorf("f1 children = %v", ids(got))
	}
	if got := ids(s.Children("f2")); !reflect.DeepEqual(got, []string{"n1"}) {
		t.Errorf("f2 children = %v", got)
	}
	f1, _ := s.Entity("f1")
	f2, _ := s.Entity("f2")
	if f1.HasChildren || !f2.HasChildren {
		t.Errorf("flags: f1=%v f2=%v", f1.HasChildren, f2.HasChildren)
	}
	if e, _ := s.Entity("n1"); e.ParentKey() != "f2" {
		t.Errorf("n1 parent = %q", e.ParentKey())
	}
}

func TestMoveRejectsCycles(t *testing.T) {
	items := &mockItems{
		root:     []models.Item{item("f1", models.KindFolder, "", 1024)},
		children: map[string][]models.Item{"f1": {item("f2", models.KindFolder, "f1", 1024)}},
	}
	s := newLoadedStore(t, items, &mockChats{}, "", "f1")

	tests := []struct {
		name   string
		id     string
		target string
	}{
		{"into itself", "f1", "f1"},
		{"under its own child", "f1", "f2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.MoveEntity(context.Background(), tt.id, tt.target, nil)
			if !errors.Is(err, domain.ErrInvalidMove) {
				t.Errorf("expected ErrInvalidMove, got %v", err)
			}
		})
	}
}

func TestMoveRenormalizesWhenPrecisionExhausted(t *testing.T) {
	items := &mockItems{
		root: []models.Item{
			item("a", models.KindNote, "", 1.0+1e-7),
			item("b", models.KindNote, "", 1.0),
			item("c", models.KindNote, "", -500),
		},
		renormalized: map[string][]models.ItemPosition{
			"": {{ID: "a", Position: 3072}, {ID: "b", Position: 2048}, {ID: "c", Position: 1024}},
		},
	}
	s := newLoadedStore(t, items, &mockChats{}, "")

	one := 1
	if err := s.MoveEntity(context.Background(), "c", "", &one); err != nil {
		t.Fatalf("MoveEntity: %v", err)
	}
	if items.renormalizeCalls != 1 {
		t.Errorf("renormalize calls = %d, want 1", items.renormalizeCalls)
	}
	if got := ids(s.Children("")); !reflect.DeepEqual(got, []string{"a", "c", "b"}) {
		t.Errorf("order = %v", got)
	}
	if c, _ := s.Entity("c"); c.Position != 2560 {
		t.Errorf("position = %v, want midpoint 2560", c.Position)
	}
}

func TestCommitEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("empty placeholder is cancelled", func(t *testing.T) {
		s := newLoadedStore(t, &mockItems{}, &mockChats{}, "")
		id, _ := s.CreateTemporaryEntity(ctx, models.KindFolder, "")
		if err := s.CommitEdit(ctx, id, "  "); err != nil {
			t.Fatalf("CommitEdit: %v", err)
		}
		if len(s.Children("")) != 0 {
			t.Errorf("placeholder kept: %v", ids(s.Children("")))
		}
	})

	t.Run("named placeholder is finalized", func(t *testing.T) {
		items := &mockItems{}
		s := newLoadedStore(t, items, &mockChats{}, "")
		id, _ := s.CreateTemporaryEntity(ctx, models.KindChat, "")
		if err := s.CommitEdit(ctx, id, "plans"); err != nil {
			t.Fatalf("CommitEdit: %v", err)
		}
		if e, _ := s.Entity(id); e.Name != "plans" {
			t.Errorf("name = %q", e.Name)
		}
		if len(items.created) != 1 || items.created[0].Type != models.KindChat {
			t.Errorf("created = %+v", items.created)
		}
		if s.EditState(id) != EditNone {
			t.Errorf("state = %v", s.EditState(id))
		}
	})

	t.Run("unchanged rename keeps name", func(t *testing.T) {
		items := &mockItems{
			root:       []models.Item{item("a", models.KindFolder, "", 1024)},
			failRename: errBackend,
		}
		s := newLoadedStore(t, items, &mockChats{}, "")
		if err := s.BeginRename("a"); err != nil {
			t.Fatalf("BeginRename: %v", err)
		}
		if err := s.CommitEdit(ctx, "a", "a"); err != nil {
			t.Fatalf("CommitEdit: %v", err)
		}
	})

	t.Run("not editing", func(t *testing.T) {
		items := &mockItems{root: []models.Item{item("a", models.KindFolder, "", 1024)}}
		s := newLoadedStore(t, items, &mockChats{}, "")
		if err := s.CommitEdit(ctx, "a", "x"); !errors.Is(err, domain.ErrNotEditable) {
			t.Errorf("expected ErrNotEditable, got %v", err)
		}
	})
}

func TestCreateBranchChat(t *testing.T) {
	origin := models.BranchOrigin{
		ParentChatID:    "p",
		ParentMessageID: "m1",
		ConnectionType:  models.ConnectionAttached,
		Context:         models.FullMessage{},
	}

	t.Run("failure rolls back listing and flag", func(t *testing.T) {
		items := &mockItems{
			root:     []models.Item{item("dir", models.KindFolder, "", 1024)},
			children: map[string][]models.Item{"dir": {item("p", models.KindChat, "dir", 1024)}},
		}
		chats := &mockChats{failCreate: errBackend}
		s := newLoadedStore(t, items, chats, "", "dir", "p")
		before := s.Snapshot()

		_, err := s.CreateBranchChat(context.Background(), BranchChat{ID: "new", Name: "branch", DirectoryID: "dir", Origin: origin})
		if !errors.Is(err, errBackend) {
			t.Fatalf("expected backend error, got %v", err)
		}
		if !reflect.DeepEqual(s.Snapshot(), before) {
			t.Errorf("not rolled back\nbefore: %+v\nafter:  %+v", before, s.Snapshot())
		}
		if _, ok := s.Entity("new"); ok {
			t.Error("branch chat still listed")
		}
	})

	t.Run("success sets parent flag", func(t *testing.T) {
		items := &mockItems{
			root:     []models.Item{item("dir", models.KindFolder, "", 1024)},
			children: map[string][]models.Item{"dir": {item("p", models.KindChat, "dir", 1024)}},
		}
		chats := &mockChats{}
		s := newLoadedStore(t, items, chats, "", "dir", "p")

		if _, err := s.CreateBranchChat(context.Background(), BranchChat{ID: "new", Name: "branch", DirectoryID: "dir", Origin: origin}); err != nil {
			t.Fatalf("CreateBranchChat: %v", err)
		}
		if p, _ := s.Entity("p"); !p.HasChildren {
			t.Error("parent chat should have children")
		}
		if got := ids(s.Children("dir")); !reflect.DeepEqual(got, []string{"new", "p"}) {
			t.Errorf("dir children = %v", got)
		}
		if got := ids(s.Branches("p")); !reflect.DeepEqual(got, []string{"new"}) {
			t.Errorf("branches = %v", got)
		}
		if len(chats.created) != 1 || chats.created[0].Branch == nil || chats.created[0].Branch.ParentMessageID != "m1" {
			t.Errorf("create request = %+v", chats.created)
		}
	})
}

func TestApplyTitleUpdatesEveryCopy(t *testing.T) {
	items, chats := &mockItems{}, &mockChats{}
	s := branchFixture(t, items, chats)

	s.ApplyTitle("b", "Generated title")

	for _, k := range []cache.ScopeKey{cache.Items("dir"), cache.Branches("p")} {
		list := s.Snapshot()[k]
		if i := indexOf(list, "b"); i < 0 || list[i].Name != "Generated title" {
			t.Errorf("%s: %+v", k, list)
		}
	}
}

func TestPositionAt(t *testing.T) {
	siblings := []models.Entity{{ID: "a", Position: 3000}, {ID: "b", Position: 1000}}
	tests := []struct {
		name    string
		list    []models.Entity
		index   int
		want    float64
		wantErr error
	}{
		{"empty", nil, 0, 1024, nil},
		{"top", siblings, 0, 4024, nil},
		{"bottom", siblings, 2, -24, nil},
		{"middle", siblings, 1, 2000, nil},
		{"too close", []models.Entity{{Position: 1 + 1e-9}, {Position: 1}}, 1, 0, domain.ErrPositionPrecision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := positionAt(tt.list, tt.index)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("position = %v, want %v", got, tt.want)
			}
		})
	}
}
