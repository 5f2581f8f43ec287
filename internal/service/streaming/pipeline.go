// Package streaming turns a conversation's chunk stream into incremental
// message updates. It owns the per-message text buffers of one stream and
// knows nothing about where the messages are stored; that is the Sink's job.
package streaming

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"branchchat/internal/domain/models"
)

// Sink receives the materialized effects of a stream.
type Sink interface {
	// SetContent replaces the visible content of message id with the
	// cumulative text received so far. id may be empty or unknown to the
	// sink, in which case it applies to the message being streamed.
	SetContent(id, content string)
	// Finalize settles message id with its final content.
	Finalize(id, content string)
	// SetTitle reports a generated title for chatID.
	SetTitle(chatID, title string)
	// Fail marks the streamed message as failed.
	Fail(err error)
	// Stopped reports whether the user cancelled the stream.
	Stopped() bool
}

// Outcome is how a stream ended.
type Outcome int

const (
	// OutcomeCompleted means the server finished the reply.
	OutcomeCompleted Outcome = iota
	// OutcomeStopped means the user cancelled; partial content is kept.
	OutcomeStopped
	// OutcomeFailed means a server error chunk or a transport failure.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeStopped:
		return "stopped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrGeneration is reported for error chunks that carry no message.
var ErrGeneration = errors.New("response generation failed")

// Pipeline consumes conversation streams.
type Pipeline struct {
	logger *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger}
}

// run is the state of one stream.
type run struct {
	buffers   map[string]*strings.Builder
	completed map[string]bool
}

func (r *run) buffer(id string) *strings.Builder {
	b, ok := r.buffers[id]
	if !ok {
		b = &strings.Builder{}
		r.buffers[id] = b
	}
	return b
}

// Run feeds chunks into sink and reports how the stream ended. Chunks for
// one id are assumed to arrive in order; they are appended without
// sequence checks. A repeated complete for an id is ignored. Run returns
// when the channel is closed, on the first failure, or once it notices the
// sink was stopped; the caller then cancels ctx and drains whatever the
// producer still sends.
func (p *Pipeline) Run(ctx context.Context, chunks <-chan models.StreamChunk, sink Sink) Outcome {
	r := &run{
		buffers:   make(map[string]*strings.Builder),
		completed: make(map[string]bool),
	}
	settled := false

	for chunk := range chunks {
		if chunk.Err != nil {
			if sink.Stopped() {
				return OutcomeStopped
			}
			p.logger.Warn("conversation stream failed", "error", chunk.Err)
			sink.Fail(chunk.Err)
			return OutcomeFailed
		}
		if sink.Stopped() {
			return OutcomeStopped
		}

		switch chunk.Type {
		case models.ChunkContent:
			if r.completed[chunk.ID] {
				p.logger.Debug("content after complete ignored", "id", chunk.ID)
				continue
			}
			b := r.buffer(chunk.ID)
			b.WriteString(chunk.Body)
			sink.SetContent(chunk.ID, b.String())

		case models.ChunkTitle:
			sink.SetTitle(chunk.ChatID, chunk.Title)

		case models.ChunkComplete:
			if r.completed[chunk.ID] {
				p.logger.Debug("duplicate complete ignored", "id", chunk.ID)
				continue
			}
			content := ""
			if b, ok := r.buffers[chunk.ID]; ok {
				content = b.String()
				delete(r.buffers, chunk.ID)
			}
			r.completed[chunk.ID] = true
			settled = true
			sink.Finalize(chunk.ID, content)

		case models.ChunkError:
			err := ErrGeneration
			if chunk.Body != "" {
				err = errors.New(chunk.Body)
			}
			p.logger.Warn("server reported generation error", "id", chunk.ID, "error", err)
			sink.Fail(err)
			return OutcomeFailed

		default:
			p.logger.Warn("unknown chunk type", "type", chunk.Type)
		}
	}

	if sink.Stopped() {
		return OutcomeStopped
	}
	if err := ctx.Err(); err != nil {
		sink.Fail(err)
		return OutcomeFailed
	}

	// The stream closed without a complete for some messages: settle them
	// with what arrived.
	for id, b := range r.buffers {
		p.logger.Warn("stream closed before completion", "id", id)
		sink.Finalize(id, b.String())
		settled = true
	}
	if !settled {
		p.logger.Warn("stream closed without any content")
		sink.Finalize("", "")
	}
	return OutcomeCompleted
}
