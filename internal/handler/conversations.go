package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"branchchat/internal/domain/models"
	"branchchat/internal/generator"
	"branchchat/internal/handler/sse"
	"branchchat/internal/httputil"
	"branchchat/internal/memstore"
)

// ExchangeStore records the messages of a conversation.
type ExchangeStore interface {
	BeginExchange(ctx context.Context, req models.ConversationRequest) (*memstore.Exchange, error)
	CompleteExchange(ctx context.Context, chatID, responseID, model, content string) (*models.Message, error)
	SetTitle(ctx context.Context, chatID, title string) error
}

// Replier generates model replies.
type Replier interface {
	Stream(ctx context.Context, req generator.Request, emit func(text string) error) (string, error)
	Title(model, prompt string) (string, bool)
}

// ConversationHandler streams model replies as server-sent events
type ConversationHandler struct {
	store   ExchangeStore
	replier Replier
	config  *sse.Config
	logger  *slog.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(store ExchangeStore, replier Replier, cfg *sse.Config, logger *slog.Logger) *ConversationHandler {
	if cfg == nil {
		cfg = sse.DefaultConfig()
	}
	return &ConversationHandler{
		store:   store,
		replier: replier,
		config:  cfg,
		logger:  logger,
	}
}

// StreamConversation records the user message and streams the reply.
// Content events are keyed by the response id the client chose. The first
// exchange of a chat also yields a title event before complete.
// POST /conversations
func (h *ConversationHandler) StreamConversation(w http.ResponseWriter, r *http.Request) {
	var req models.ConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondParseError(w, err)
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		h.logger.Error("cannot stream conversation", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	exchange, err := h.store.BeginExchange(ctx, req)
	if err != nil {
		handleError(w, err)
		return
	}

	logger := h.logger.With("chat_id", req.ChatID, "response_id", req.ResponseID, "model", req.Model)
	logger.Info("conversation started", "first", exchange.First)

	stream.Start()
	keepAlive := sse.NewTickerKeepAlive(h.config.KeepAliveInterval)
	keepAliveDone := keepAlive.Start(stream, logger)
	defer func() {
		keepAlive.Stop()
		<-keepAliveDone
	}()

	reply, err := h.replier.Stream(ctx, generator.Request{
		Model:   req.Model,
		History: exchange.History,
		Prompt:  req.Content,
	}, func(text string) error {
		if err := h.pause(ctx); err != nil {
			return err
		}
		return stream.WriteEvent(models.StreamChunk{Type: models.ChunkContent, ID: req.ResponseID, Body: text})
	})
	if err != nil {
		if ctx.Err() != nil {
			// The client stopped the stream. What it received stays in the
			// history, as it does on the client.
			logger.Info("conversation stopped by client", "length", len(reply))
			if reply != "" {
				if _, err := h.store.CompleteExchange(context.WithoutCancel(ctx), req.ChatID, req.ResponseID, req.Model, reply); err != nil {
					logger.Warn("failed to store partial reply", "error", err)
				}
			}
			return
		}
		logger.Warn("reply generation failed", "error", err)
		h.writeError(stream, req.ResponseID, err.Error(), logger)
		return
	}

	if _, err := h.store.CompleteExchange(ctx, req.ChatID, req.ResponseID, req.Model, reply); err != nil {
		logger.Error("failed to store reply", "error", err)
		h.writeError(stream, req.ResponseID, "failed to store reply", logger)
		return
	}

	if exchange.First {
		h.sendTitle(ctx, stream, req, logger)
	}

	if err := stream.WriteEvent(models.StreamChunk{Type: models.ChunkComplete, ID: req.ResponseID}); err != nil {
		logger.Warn("failed to write complete event", "error", err)
		return
	}
	logger.Info("conversation completed", "length", len(reply))
}

func (h *ConversationHandler) sendTitle(ctx context.Context, stream *sse.Writer, req models.ConversationRequest, logger *slog.Logger) {
	title, ok := h.replier.Title(req.Model, req.Content)
	if !ok {
		return
	}
	if err := h.store.SetTitle(ctx, req.ChatID, title); err != nil {
		logger.Warn("failed to store generated title", "error", err)
		return
	}
	if err := stream.WriteEvent(models.StreamChunk{Type: models.ChunkTitle, ChatID: req.ChatID, Title: title}); err != nil {
		logger.Warn("failed to write title event", "error", err)
	}
}

func (h *ConversationHandler) writeError(stream *sse.Writer, responseID, detail string, logger *slog.Logger) {
	if err := stream.WriteEvent(models.StreamChunk{Type: models.ChunkError, ID: responseID, Body: detail}); err != nil {
		logger.Warn("failed to write error event", "error", err)
	}
}

// pause spaces content events by the configured chunk delay.
func (h *ConversationHandler) pause(ctx context.Context) error {
	if h.config.ChunkDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(h.config.ChunkDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
