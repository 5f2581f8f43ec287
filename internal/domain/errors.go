package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}
)

// Error implementations
func (e *NotFoundError) Error() string   { return e.Message }
func (e *ValidationError) Error() string { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// Is allows errors.Is() to match the typed errors against their sentinels
func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrPositionPrecision is returned when two neighboring siblings are too
	// close to fit another position between them. The parent scope must be
	// renormalized before retrying.
	ErrPositionPrecision = errors.New("position precision exhausted")

	// ErrStreamActive is returned when a send is attempted while the chat
	// already has a response streaming.
	ErrStreamActive = errors.New("a response is already streaming for this chat")

	// ErrInvalidMove is returned for moves the client can reject locally
	// (into itself, or under its own direct child).
	ErrInvalidMove = errors.New("invalid move target")

	// ErrNotEditable is returned when an inline edit is committed for an
	// entity that is not in editing mode.
	ErrNotEditable = errors.New("entity is not being edited")
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // Type of resource (item, chat, file)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// MutationError is returned by optimistic operations after the local state
// has been restored. Op names the operation, Scope the cache scope it touched.
type MutationError struct {
	Op    string
	Scope string
	Err   error
}

func (e *MutationError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("%s failed (rolled back): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s on %s failed (rolled back): %v", e.Op, e.Scope, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// RemoteError is a non-2xx response from the backend, decoded from its
// problem-details body.
type RemoteError struct {
	Status int
	Title  string
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend returned %d %s", e.Status, e.Title)
}

func (e *RemoteError) StatusCode() int { return e.Status }

// Is maps the HTTP status back onto the domain sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}
