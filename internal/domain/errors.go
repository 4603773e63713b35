package domain

import (
	"errors"
	"fmt"
)

// AppError is the base domain error type. The gateway renders it into the
// response envelope without reflection, so every handler failure must reach
// the router as one of these.
type AppError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithDetails attaches structured detail fields and returns the error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable AppError.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}

// Standard domain error constructors.

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func ErrInsufficientBalance() *AppError {
	return &AppError{Code: "INSUFFICIENT_BALANCE", Message: "insufficient balance"}
}

func ErrLockTimeout(key string) *AppError {
	return &AppError{Code: "LOCK_TIMEOUT", Message: fmt.Sprintf("could not acquire lock %s", key), Retryable: true}
}

func ErrRequestInProgress() *AppError {
	return &AppError{Code: "REQUEST_IN_PROGRESS", Message: "request is already being processed", Retryable: true}
}

func ErrDuplicateRequest() *AppError {
	return &AppError{Code: "DUPLICATE_REQUEST", Message: "request was already processed and failed"}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg}
}

// ErrConflictRetryable wraps a lock timeout surfaced through a higher-level
// operation: the code stays CONFLICT but the client may retry.
func ErrConflictRetryable(msg string, cause error) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Retryable: true, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Cause: cause}
}
