package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every business error wraps exactly one of them so the HTTP
// layer can pick a status code with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrAuth            = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrMissingFields   = errors.New("missing fields")
)

// Error is a classified error with a message safe to show to API clients.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
