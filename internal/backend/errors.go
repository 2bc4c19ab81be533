package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingToken is returned before any request when no bearer token
	// was supplied.
	ErrMissingToken = errors.New("backend: bearer token is required")
	// ErrMalformedResponse wraps bodies that could not be decoded.
	ErrMalformedResponse = errors.New("backend: malformed response")
)

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("backend: %s: status %d: %s", e.Op, e.Code, e.Body)
}

// Reason is the short form shown to users.
func (e *StatusError) Reason() string {
	return fmt.Sprintf("server rejected %s (HTTP %d)", e.Op, e.Code)
}

// Unauthorized reports whether the service refused the bearer token.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

type decodeError struct {
	op  string
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("backend: %s: decode response: %v", e.op, e.err)
}

func (e *decodeError) Unwrap() []error { return []error{ErrMalformedResponse, e.err} }

func (e *decodeError) Reason() string { return "malformed response" }
