// SPDX-License-Identifier: MIT

package media

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrValidation    = errors.New("media: validation failed")
	ErrAuth          = errors.New("media: authorization failed")
	ErrNotFound      = errors.New("media: file not found")
	ErrUnsatisfiable = errors.New("media: range not satisfiable")
	ErrRateLimited   = errors.New("media: rate limited")
	ErrUpstream      = errors.New("media: upstream failure")
)

// UnsatisfiableRangeError is an ErrUnsatisfiable that knows the file
// size, so the 416 response can carry "Content-Range: bytes */<size>".
type UnsatisfiableRangeError struct {
	Size int64
}

func (e *UnsatisfiableRangeError) Error() string {
	return fmt.Sprintf("%v (file size %d)", ErrUnsatisfiable, e.Size)
}

func (e *UnsatisfiableRangeError) Unwrap() error {
	return ErrUnsatisfiable
}

// ProviderError wraps a sentinel with provider context. The detail here is
// for server-side logs only; clients get the sentinel's status code and a
// generic message.
type ProviderError struct {
	Sentinel error
	Provider Provider
	Op       string
	Status   int   // upstream HTTP status, when known
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the nested cause, so errors.Is
// finds the taxonomy class and low-level conditions like
// context.Canceled through the same chain.
func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Sentinel != nil {
		errs = append(errs, e.Sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// HTTPStatus maps a taxonomy error to the response status code.
// Unknown errors are treated as upstream failures.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorClass returns the taxonomy label for an error, used for metrics
// and audit events. Unknown errors count as upstream failures.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsatisfiable):
		return "unsatisfiable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "upstream"
	}
}

// PublicMessage returns the client-safe message for a taxonomy error.
// Provider paths, upstream codes and URLs never appear here.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid request"
	case errors.Is(err, ErrAuth):
		return "invalid or expired token"
	case errors.Is(err, ErrNotFound):
		return "file not found"
	case errors.Is(err, ErrUnsatisfiable):
		return "requested range not satisfiable"
	case errors.Is(err, ErrRateLimited):
		return "rate limit exceeded"
	default:
		return "stream failure"
	}
}
