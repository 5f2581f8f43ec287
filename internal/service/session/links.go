package session

import (
	"context"
	"fmt"

	"branchchat/internal/cache"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

// AppendBranchLink adds link to a loaded message locally. restore puts the
// history of chatID back to the copy taken just before the append.
func (s *Store) AppendBranchLink(chatID, messageID string, link models.BranchLink) (restore func(), err error) {
	key := cache.Messages(chatID)
	snap := s.cache.Capture(key)

	found := s.modifyMessage(chatID, messageID, func(m *models.Message) {
		m.Branches = append(m.Branches, link)
	})
	if !found {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("message %s is not loaded in chat %s", messageID, chatID)}
	}
	s.emit(Event{Kind: EventMessages, ChatID: chatID, MessageID: messageID})

	return func() {
		s.cache.Restore(snap)
		s.emit(Event{Kind: EventMessages, ChatID: chatID, MessageID: messageID})
	}, nil
}

// UpdateMessages applies fn to the whole history of chatID, then runs
// commit. If commit fails the history is restored to the copy taken
// before fn ran, discarding anything else changed in the meantime.
func (s *Store) UpdateMessages(ctx context.Context, chatID, op string, fn func([]models.Message) []models.Message, commit func(context.Context) error) error {
	key := cache.Messages(chatID)
	if !s.cache.Has(key) {
		return &domain.NotFoundError{Message: fmt.Sprintf("chat %s has no open session", chatID)}
	}

	err := s.cache.Mutate(ctx, cache.Mutation[[]models.Message]{
		Op:      op,
		Changes: []cache.Change[[]models.Message]{cache.Transform(key, fn)},
		Commit:  commit,
	})
	s.emit(Event{Kind: EventMessages, ChatID: chatID})
	return err
}

// Snapshot returns a copy of the history of chatID and whether it is
// loaded.
func (s *Store) Snapshot(chatID string) ([]models.Message, bool) {
	return s.cache.Get(cache.Messages(chatID))
}
