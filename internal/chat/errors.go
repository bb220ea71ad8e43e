package chat

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrClosed       = errors.New("chat: connection closed")
	ErrRejected     = errors.New("chat: access to conversation revoked")
	ErrUnauthorized = errors.New("chat: unauthorized")
	// ErrStale is returned for results that arrived after the request was
	// superseded or cancelled. Callers should ignore it.
	ErrStale = errors.New("chat: stale result dropped")
)

// APIError is a non-2xx answer from the REST side of the chat server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrRejected
	}
	return nil
}
