// Package apperror defines the domain errors shared by every layer.
//
// Lower layers return an *AppError (or wrap one with fmt.Errorf("...: %w", err)).
// The HTTP layer inspects the chain with errors.Is / errors.As and maps each
// sentinel to a status code, so the service never needs to know about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDataFormat marks stored data that does not have the shape the code
	// relies on. It is a defect in upstream data, never a user mistake, so
	// callers must not retry on it.
	ErrDataFormat = errors.New("data format defect")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
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

// Unauthorized is returned when credentials are missing or wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// DataFormat reports a stored value that could not be interpreted.
// value is included verbatim so the offending row can be found in logs.
func DataFormat(what, value string) *AppError {
	return &AppError{
		Err:     ErrDataFormat,
		Message: fmt.Sprintf("malformed %s %q", what, value),
	}
}
