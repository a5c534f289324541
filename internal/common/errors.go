package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable, client-visible class of an error.
type ErrorKind string

const (
	KindInvalidPlan        ErrorKind = "INVALID_PLAN"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInvalidState       ErrorKind = "INVALID_STATE"
	KindConcurrencyTimeout ErrorKind = "CONCURRENCY_TIMEOUT"
	KindInvariantViolation ErrorKind = "INVARIANT_VIOLATION"
	KindInternal           ErrorKind = "INTERNAL_ERROR"
)

// AppError carries a kind, a human-readable reason and the underlying cause.
type AppError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// Sentinels for errors.Is; they match any AppError of the same kind.
var (
	ErrInvalidPlan        = &AppError{Kind: KindInvalidPlan}
	ErrNotFound           = &AppError{Kind: KindNotFound}
	ErrInvalidState       = &AppError{Kind: KindInvalidState}
	ErrConcurrencyTimeout = &AppError{Kind: KindConcurrencyTimeout}
	ErrInvariantViolation = &AppError{Kind: KindInvariantViolation}
	ErrInternal           = &AppError{Kind: KindInternal}
)

func NewError(kind ErrorKind, reason string) *AppError {
	return &AppError{Kind: kind, Reason: reason}
}

func Errorf(kind ErrorKind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, reason string, err error) *AppError {
	return &AppError{Kind: kind, Reason: reason, Err: err}
}

func (e *AppError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", reason, e.Err)
	}
	return reason
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Reason == "" && t.Err == nil
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *AppError) Retryable() bool {
	return e.Kind == KindConcurrencyTimeout
}

// StatusCode maps the kind onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindInvalidPlan:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusConflict
	case KindConcurrencyTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is an AppError the caller may retry.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Retryable()
}
