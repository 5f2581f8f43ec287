package session

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"branchchat/internal/cache"
	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

// chronological reverses a newest-first page in place.
func chronological(page []models.Message) []models.Message {
	slices.Reverse(page)
	return page
}

// LoadFirstPage replaces the history of chatID with its newest page.
func (s *Store) LoadFirstPage(ctx context.Context, chatID string) error {
	s.mu.Lock()
	sess := s.ensureLocked(chatID)
	if sess.active != nil {
		s.mu.Unlock()
		return fmt.Errorf("load history of %s: %w", chatID, domain.ErrStreamActive)
	}
	s.mu.Unlock()

	page, err := s.deps.Messages.ListMessages(ctx, chatID, 0, config.MessagePageSize)
	if err != nil {
		return fmt.Errorf("load history of %s: %w", chatID, err)
	}
	files := s.resolveFiles(ctx, chatID, page)
	page = chronological(attachFiles(page, files))

	s.mu.Lock()
	if s.sessions[chatID] != sess {
		s.mu.Unlock()
		return nil
	}
	sess.page = 1
	sess.hasMore = len(page) == config.MessagePageSize
	sess.loadingOlder = false
	for id, meta := range files {
		sess.files[id] = meta
	}
	s.mu.Unlock()

	s.cache.Set(cache.Messages(chatID), page)
	s.emit(Event{Kind: EventMessages, ChatID: chatID})
	s.logger.Debug("history loaded", "chat_id", chatID, "count", len(page), "has_more", len(page) == config.MessagePageSize)
	return nil
}

// LoadOlderPage prepends the next older page. It does nothing when the
// oldest message is already loaded or another load is in flight. Messages
// already held are skipped, so overlapping pages never duplicate an id.
func (s *Store) LoadOlderPage(ctx context.Context, chatID string) error {
	s.mu.Lock()
	sess := s.ensureLocked(chatID)
	if !sess.hasMore || sess.loadingOlder {
		s.mu.Unlock()
		return nil
	}
	sess.loadingOlder = true
	offset := sess.page * config.MessagePageSize
	s.mu.Unlock()

	finish := func() {
		s.mu.Lock()
		sess.loadingOlder = false
		s.mu.Unlock()
	}

	page, err := s.deps.Messages.ListMessages(ctx, chatID, offset, config.MessagePageSize)
	if err != nil {
		finish()
		return fmt.Errorf("load older messages of %s: %w", chatID, err)
	}
	files := s.resolveFiles(ctx, chatID, page)
	page = chronological(attachFiles(page, files))

	s.mu.Lock()
	if s.sessions[chatID] != sess {
		s.mu.Unlock()
		return nil
	}
	sess.page++
	sess.hasMore = len(page) == config.MessagePageSize
	sess.loadingOlder = false
	for id, meta := range files {
		sess.files[id] = meta
	}
	s.mu.Unlock()

	added := 0
	s.cache.Modify(cache.Messages(chatID), func(held []models.Message) []models.Message {
		seen := make(map[string]struct{}, len(held))
		for _, m := range held {
			seen[m.ID] = struct{}{}
		}
		older := make([]models.Message, 0, len(page)+len(held))
		for _, m := range page {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			older = append(older, m)
		}
		added = len(older)
		return append(older, held...)
	})

	s.emit(Event{Kind: EventMessages, ChatID: chatID})
	s.logger.Debug("older messages loaded",
		"chat_id", chatID,
		"offset", offset,
		"fetched", len(page),
		"added", added,
	)
	return nil
}

// resolveFiles fetches metadata for attachments the session does not know
// yet. Lookups run concurrently; failures are logged and skipped.
func (s *Store) resolveFiles(ctx context.Context, chatID string, page []models.Message) map[string]models.FileMeta {
	s.mu.Lock()
	known := make(map[string]models.FileMeta)
	if sess, ok := s.sessions[chatID]; ok {
		for id, meta := range sess.files {
			known[id] = meta
		}
	}
	s.mu.Unlock()

	var missing []string
	queued := make(map[string]struct{})
	for _, m := range page {
		for _, a := range m.Attachments {
			if a.File != nil {
				known[a.FileID] = *a.File
				continue
			}
			if _, ok := known[a.FileID]; ok {
				continue
			}
			if _, ok := queued[a.FileID]; ok {
				continue
			}
			queued[a.FileID] = struct{}{}
			missing = append(missing, a.FileID)
		}
	}
	if len(missing) == 0 || s.deps.Files == nil {
		return known
	}

	results := make([]*models.FileMeta, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.AttachmentConcurrency)
	for i, id := range missing {
		g.Go(func() error {
			meta, err := s.deps.Files.GetFile(gctx, id)
			if err != nil {
				s.logger.Warn("attachment metadata unavailable", "chat_id", chatID, "file_id", id, "error", err)
				return nil
			}
			results[i] = meta
			return nil
		})
	}
	_ = g.Wait()

	for _, meta := range results {
		if meta != nil {
			known[meta.ID] = *meta
		}
	}
	return known
}

func attachFiles(page []models.Message, files map[string]models.FileMeta) []models.Message {
	for i := range page {
		for j := range page[i].Attachments {
			a := &page[i].Attachments[j]
			if meta, ok := files[a.FileID]; ok && a.File == nil {
				m := meta
				a.File = &m
			}
		}
	}
	return page
}
