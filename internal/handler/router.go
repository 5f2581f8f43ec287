package handler

import (
	"log/slog"
	"net/http"

	"branchchat/internal/handler/sse"
	"branchchat/internal/memstore"
	"branchchat/internal/middleware"
)

// Dependencies wires the dev backend's handlers.
type Dependencies struct {
	Store   *memstore.Store
	Replier Replier
	Catalog Catalog
	SSE     *sse.Config
	Logger  *slog.Logger
}

// NewRouter registers every endpoint of the backend contract and wraps
// them with request ids, request logging and panic recovery.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	items := NewItemHandler(deps.Store, logger)
	chats := NewChatHandler(deps.Store, logger)
	messages := NewMessageHandler(deps.Store, logger)
	files := NewFileHandler(deps.Store, logger)
	conversations := NewConversationHandler(deps.Store, deps.Replier, deps.SSE, logger)
	models := NewModelsHandler(deps.Catalog, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Tree
	mux.HandleFunc("GET /items", items.ListRoot)
	mux.HandleFunc("POST /items", items.CreateItem)
	mux.HandleFunc("GET /items/{id}/children", items.ListChildren)
	mux.HandleFunc("PATCH /items/{id}/move", items.MoveItem)
	mux.HandleFunc("PATCH /items/{id}/rename", items.RenameItem)
	mux.HandleFunc("DELETE /items/{id}", items.DeleteItem)
	mux.HandleFunc("POST /items/{id}/renormalize", items.Renormalize)

	// Chats and branch metadata
	mux.HandleFunc("POST /chats", chats.CreateChat)
	mux.HandleFunc("GET /chats", chats.ListChats)
	mux.HandleFunc("DELETE /chats/{id}", chats.DeleteChat)
	mux.HandleFunc("PUT /chats/{id}/chat-metadata", chats.UpdateConnection)
	mux.HandleFunc("GET /messages/{id}/chat-metadata", chats.GetMessageBranches)

	// History and drafts
	mux.HandleFunc("GET /chats/{id}/messages", messages.ListMessages)
	mux.HandleFunc("GET /chats/{id}/draft", messages.GetDraft)
	mux.HandleFunc("PUT /chats/{id}/draft", messages.PutDraft)

	// Streaming
	mux.HandleFunc("POST /conversations", conversations.StreamConversation)

	// Files
	mux.HandleFunc("POST /files", files.InitUpload)
	mux.HandleFunc("GET /files/{id}", files.GetFile)
	mux.HandleFunc("PUT /files/{id}/content", files.UploadContent)
	mux.HandleFunc("POST /files/{id}/finalize", files.FinalizeUpload)

	// Catalog
	mux.HandleFunc("GET /models", models.GetCapabilities)

	var h http.Handler = mux
	h = middleware.Recovery(logger)(h)
	h = middleware.RequestLogger(logger)(h)
	h = middleware.RequestID()(h)
	return h
}
