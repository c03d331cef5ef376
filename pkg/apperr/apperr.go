// Package apperr defines the application error taxonomy and its HTTP mapping.
// Only caller-input and resource-state errors surface to clients; collaborator
// failures downstream of a computed result are logged and swallowed by the
// caller (see Kind constants).
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an application error.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimit
	KindUpstream
	KindPersistence
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limited"
	case KindUpstream:
		return "upstream_error"
	case KindPersistence:
		return "persistence_error"
	default:
		return "internal_error"
	}
}

// Error is a classified application error.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration // set for KindRateLimit
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

func Upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Message: "provider unavailable", cause: err}
}

func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Message: "durable write failed", cause: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}

// HTTPStatus maps an error to its response status code. Unknown errors map
// to 500.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type body struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	RetryAfterMS int64  `json:"retryAfterMs,omitempty"`
}

// WriteJSON renders err as a structured JSON response. Internal detail is
// withheld unless expose is set (local/dev environments only).
func WriteJSON(w http.ResponseWriter, err error, expose bool) {
	status := HTTPStatus(err)
	b := body{Error: "internal error", Code: "internal_error"}
	var ae *Error
	if errors.As(err, &ae) {
		b.Code = ae.Kind.String()
		if status < http.StatusInternalServerError || expose {
			b.Error = ae.Message
		}
		if expose && ae.cause != nil {
			b.Error = ae.Error()
		}
		if ae.Kind == KindRateLimit {
			b.RetryAfterMS = ae.RetryAfter.Milliseconds()
		}
	} else if expose && err != nil {
		b.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(b)
}
