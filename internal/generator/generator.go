// Package generator produces the development backend's model replies. Text
// comes from the lorem provider of meridian-llm-go; the model catalog
// decides how long a reply may get and whether a chat gets a title.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	llmprovider "github.com/haowjy/meridian-llm-go"
	"github.com/haowjy/meridian-llm-go/providers/lorem"

	"branchchat/internal/capabilities"
	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

const (
	blockTypeText = "text"
	titleWords    = 6
)

// Streamer is the part of an llm provider the generator drives.
type Streamer interface {
	StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (<-chan llmprovider.StreamEvent, error)
}

// ModelLookup resolves model ids against the catalog.
type ModelLookup interface {
	Model(id string) (*capabilities.ModelCapabilities, error)
}

// Generator streams replies for conversation requests.
type Generator struct {
	provider Streamer
	models   ModelLookup
	logger   *slog.Logger
}

// New creates a generator backed by the lorem provider.
func New(models ModelLookup, logger *slog.Logger) *Generator {
	return NewWithProvider(lorem.NewProvider(), models, logger)
}

// NewWithProvider creates a generator on top of provider.
func NewWithProvider(provider Streamer, models ModelLookup, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, models: models, logger: logger}
}

// Request is one reply to generate.
type Request struct {
	Model   string
	History []models.Message
	Prompt  string
}

// Stream generates a reply, calling emit with every piece of text in
// order, and returns the whole reply. The reply stops at the model's word
// cap. An emit error aborts generation and is returned.
func (g *Generator) Stream(ctx context.Context, req Request, emit func(text string) error) (string, error) {
	caps, err := g.models.Model(req.Model)
	if err != nil {
		return "", &domain.ValidationError{Message: err.Error()}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	events, err := g.provider.StreamResponse(streamCtx, libraryRequest(caps.ID, req))
	if err != nil {
		cancel()
		return "", fmt.Errorf("start %s reply: %w", caps.ID, err)
	}
	// The provider blocks on sends, so its channel is read to the end after
	// the cancel.
	defer func() {
		cancel()
		for range events {
		}
	}()

	var (
		reply     strings.Builder
		words     int
		blockType string
	)
	for ev := range events {
		if ev.Error != nil {
			if err := ctx.Err(); err != nil {
				return reply.String(), err
			}
			return reply.String(), fmt.Errorf("generate %s reply: %w", caps.ID, ev.Error)
		}
		if ev.Delta == nil {
			continue
		}
		if ev.Delta.BlockType != nil {
			blockType = *ev.Delta.BlockType
		}
		if blockType != blockTypeText || ev.Delta.TextDelta == nil {
			continue
		}
		word := strings.TrimSpace(*ev.Delta.TextDelta)
		if word == "" {
			continue
		}
		if words > 0 {
			word = " " + word
		}
		if err := emit(word); err != nil {
			return reply.String(), err
		}
		reply.WriteString(word)
		words++
		if caps.MaxOutputWords > 0 && words >= caps.MaxOutputWords {
			g.logger.Debug("reply reached word cap", "model", caps.ID, "words", words)
			break
		}
	}
	return reply.String(), ctx.Err()
}

// Title derives a chat title from the first prompt. ok is false when the
// model doesn't generate titles or the prompt has no words.
func (g *Generator) Title(model, prompt string) (title string, ok bool) {
	caps, err := g.models.Model(model)
	if err != nil || !caps.GeneratesTitle {
		return "", false
	}
	return titleFrom(prompt)
}

func titleFrom(prompt string) (string, bool) {
	words := strings.Fields(prompt)
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	title := strings.TrimRightFunc(strings.Join(words, " "), unicode.IsPunct)
	if title == "" {
		return "", false
	}
	first, size := utf8.DecodeRuneInString(title)
	title = string(unicode.ToUpper(first)) + title[size:]
	if runes := []rune(title); len(runes) > config.MaxChatTitleLength {
		title = string(runes[:config.MaxChatTitleLength])
	}
	return title, true
}

// libraryRequest maps the chat history and prompt onto the provider's
// message format.
func libraryRequest(model string, req Request) *llmprovider.GenerateRequest {
	messages := make([]llmprovider.Message, 0, len(req.History)+1)
	add := func(role, text string) {
		if text == "" {
			return
		}
		messages = append(messages, llmprovider.Message{
			Role: role,
			Blocks: []*llmprovider.Block{{
				BlockType:   blockTypeText,
				TextContent: &text,
			}},
		})
	}
	for _, m := range req.History {
		role := "user"
		if m.Role == models.RoleModel {
			role = "assistant"
		}
		add(role, m.Content)
	}
	add("user", req.Prompt)

	return &llmprovider.GenerateRequest{
		Messages: messages,
		Model:    model,
	}
}
