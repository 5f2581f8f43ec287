package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"branchchat/internal/domain/models"
)

// StreamConversation posts the exchange and returns its event stream.
// Events are delivered in the order the server wrote them. A transport
// failure (including cancellation of ctx) is delivered as a last chunk
// with Err set before the channel closes.
func (c *Client) StreamConversation(ctx context.Context, req models.ConversationRequest) (<-chan models.StreamChunk, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/conversations", nil, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open conversation stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	c.logger.Debug("conversation stream opened",
		"chat_id", req.ChatID,
		"message_id", req.MessageID,
	)

	chunks := make(chan models.StreamChunk)
	go c.pump(ctx, resp.Body, chunks)
	return chunks, nil
}

// pump forwards parsed events until EOF or failure. The consumer is
// expected to drain the channel until it is closed.
func (c *Client) pump(ctx context.Context, body io.ReadCloser, out chan<- models.StreamChunk) {
	defer close(out)
	defer body.Close()

	err := ReadEvents(body, func(chunk models.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err == nil {
		return
	}

	c.logger.Debug("conversation stream ended with error", "error", err)
	out <- models.StreamChunk{Type: models.ChunkError, Err: err}
}

// ReadEvents parses a text/event-stream body and calls fn with every data
// event decoded as a StreamChunk. Comment lines (": keepalive") and fields
// other than data are ignored. fn returns false to stop reading.
func ReadEvents(r io.Reader, fn func(models.StreamChunk) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data []string
	dispatch := func() (bool, error) {
		if len(data) == 0 {
			return true, nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]

		var chunk models.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return false, fmt.Errorf("decode stream event: %w", err)
		}
		return fn(chunk), nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			more, err := dispatch()
			if err != nil || !more {
				return err
			}
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	// Last event without a trailing blank line.
	_, err := dispatch()
	return err
}
