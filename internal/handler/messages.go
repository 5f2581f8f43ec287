package handler

import (
	"context"
	"log/slog"
	"net/http"

	"branchchat/internal/config"
	"branchchat/internal/domain/models"
	"branchchat/internal/httputil"
)

// maxPageSize bounds the limit query parameter of a history page.
const maxPageSize = 100

// MessageStore is the history and draft storage of chats.
type MessageStore interface {
	ListMessages(ctx context.Context, chatID string, offset, limit int) ([]models.Message, error)
	GetDraft(ctx context.Context, chatID string) (*models.Draft, error)
	PutDraft(ctx context.Context, draft models.Draft) error
}

// MessageHandler serves chat history and drafts
type MessageHandler struct {
	store  MessageStore
	logger *slog.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(store MessageStore, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		store:  store,
		logger: logger,
	}
}

// ListMessages returns one newest-first page of history
// GET /chats/{id}/messages?offset=:n&limit=:n
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		handleError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", config.MessagePageSize)
	if err != nil {
		handleError(w, err)
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = config.MessagePageSize
	}

	msgs, err := h.store.ListMessages(r.Context(), r.PathValue("id"), offset, limit)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, msgs)
}

// GetDraft returns the saved draft of a chat, 404 if there is none
// GET /chats/{id}/draft
func (h *MessageHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.store.GetDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, draft)
}

// PutDraft saves the unsent input of a chat
// PUT /chats/{id}/draft
func (h *MessageHandler) PutDraft(w http.ResponseWriter, r *http.Request) {
	var draft models.Draft
	if err := httputil.ParseJSON(w, r, &draft); err != nil {
		httputil.RespondParseError(w, err)
		return
	}
	draft.ChatID = r.PathValue("id")

	if err := h.store.PutDraft(r.Context(), draft); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Debug("draft saved", "chat_id", draft.ChatID, "length", len(draft.Content))
	w.WriteHeader(http.StatusNoContent)
}
