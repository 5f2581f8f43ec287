package handler

import (
	"context"
	"log/slog"
	"net/http"

	"branchchat/internal/domain/models"
	"branchchat/internal/domain/repositories"
	"branchchat/internal/httputil"
)

// ChatStore is the chat storage behind /chats and the chat-metadata
// endpoints.
type ChatStore interface {
	CreateChat(ctx context.Context, req repositories.CreateChatRequest) (*models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	ListChats(ctx context.Context, filter repositories.ChatFilter) ([]models.Chat, error)
	UpdateConnectionType(ctx context.Context, childChatID string, connection models.ConnectionType) error
	MessageBranches(ctx context.Context, messageID string) ([]models.BranchLink, error)
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	store  ChatStore
	logger *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(store ChatStore, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		store:  store,
		logger: logger,
	}
}

// ConnectionRequest is the body of a chat-metadata update.
type ConnectionRequest struct {
	ConnectionType models.ConnectionType `json:"connection_type"`
}

// MessageBranchesResponse lists the branch links of one message.
type MessageBranchesResponse struct {
	MessageID string              `json:"message_id"`
	Branches  []models.BranchLink `json:"branches"`
}

// CreateChat creates a chat, or a branch chat when branch_context is set
// POST /chats
// Returns 201 if created, 409 with the existing chat if the id is taken
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req repositories.CreateChatRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	chat, err := h.store.CreateChat(r.Context(), req)
	if err != nil {
		HandleCreateConflict(w, err, func(id string) (*models.Chat, error) {
			return h.store.GetChat(r.Context(), id)
		})
		return
	}

	h.logger.Info("chat created",
		"chat_id", chat.ID,
		"parent_chat_id", models.Deref(chat.ParentChatID),
	)
	httputil.RespondJSON(w, http.StatusCreated, chat)
}

// ListChats lists the chats of a directory or the branches of a chat
// GET /chats?parent_directory_id=:id or GET /chats?parent_chat_id=:id
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter repositories.ChatFilter
	if query.Has("parent_chat_id") {
		id := query.Get("parent_chat_id")
		filter.ParentChatID = &id
	}
	if id := query.Get("parent_directory_id"); id != "" {
		filter.ParentDirectoryID = &id
	}

	chats, err := h.store.ListChats(r.Context(), filter)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, chats)
}

// DeleteChat removes a chat with its branches
// DELETE /chats/{id}
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteChat(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("chat deleted", "chat_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateConnection changes the connection type of the link pointing at a
// branch chat
// PUT /chats/{id}/chat-metadata
func (h *ChatHandler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	id := r.PathValue("id")
	if err := h.store.UpdateConnectionType(r.Context(), id, req.ConnectionType); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("branch connection updated", "chat_id", id, "connection_type", req.ConnectionType)
	w.WriteHeader(http.StatusNoContent)
}

// GetMessageBranches returns the branch links of a message
// GET /messages/{id}/chat-metadata
func (h *ChatHandler) GetMessageBranches(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	links, err := h.store.MessageBranches(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, MessageBranchesResponse{MessageID: id, Branches: links})
}
