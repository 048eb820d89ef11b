// Package apperror defines the error taxonomy shared by the services and the
// HTTP layer.
//
// Services return *AppError values that wrap one of the sentinels below.
// Callers branch with errors.Is(err, apperror.ErrNotFound) and friends; the
// handler package maps each sentinel to an HTTP status.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal")
)

type AppError struct {
	Err     error  // sentinel this error classifies as
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthorized means the caller could not be identified.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict means a concurrent writer won. For transactions it is only
// returned once the retry budget is spent.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Internal wraps an unexpected failure. The cause stays reachable through
// errors.As for logging but is never shown to clients.
func Internal(op string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrInternal, cause),
		Message: fmt.Sprintf("%s failed", op),
	}
}
