// Package rest implements the domain repositories against the branch-chat
// backend's HTTP API. JSON endpoints use a client with a request timeout;
// the conversation stream uses one without, since a reply can take longer
// than any sensible request budget.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"branchchat/internal/domain"
	"branchchat/internal/domain/repositories"
	"branchchat/internal/httputil"
)

// Client talks to the backend over HTTP. It implements the message, draft,
// conversation and file repositories directly; items and chats have their
// own repository types because their method sets overlap.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

var (
	_ repositories.MessageRepository      = (*Client)(nil)
	_ repositories.DraftRepository        = (*Client)(nil)
	_ repositories.ConversationRepository = (*Client)(nil)
	_ repositories.FileRepository         = (*Client)(nil)
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport for both JSON calls and
// streams. Tests pass httptest clients here.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = hc
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// resolve turns a server-relative URL (as returned by upload init) into an
// absolute one.
func (c *Client) resolve(raw string) string {
	if strings.HasPrefix(raw, "/") {
		return c.baseURL + raw
	}
	return raw
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do performs a JSON round trip. out may be nil when the response body is
// not needed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError turns a non-2xx response into a *domain.RemoteError, reading
// the RFC 7807 problem body when there is one.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	remote := &domain.RemoteError{
		Status: resp.StatusCode,
		Title:  http.StatusText(resp.StatusCode),
	}

	var problem httputil.ProblemDetail
	if err := json.Unmarshal(body, &problem); err == nil && (problem.Title != "" || problem.Detail != "") {
		if problem.Title != "" {
			remote.Title = problem.Title
		}
		remote.Detail = problem.Detail
	} else if text := strings.TrimSpace(string(body)); text != "" {
		remote.Detail = text
	}
	return remote
}

func pathID(id string) string {
	return url.PathEscape(id)
}
