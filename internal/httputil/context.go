package httputil

import (
	"context"
	"net/http"
)

type contextKey struct{}

var requestIDKey contextKey

// WithRequestID returns r carrying id, the id the RequestID middleware
// echoes in X-Request-Id and writes to every log line of the request.
func WithRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDKey, id))
}

// GetRequestID returns the request id of r, or "" outside the middleware.
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
