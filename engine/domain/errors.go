package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced through the API and the pipeline.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate content")
	ErrInvalidSourceType = errors.New("invalid source type")
	ErrInvalidURL        = errors.New("invalid url")
	ErrEmptyTitle        = errors.New("title is empty")
	ErrEmptyBody         = errors.New("body is empty")
	ErrEmptyExternalID   = errors.New("external id is empty")
	ErrIntervalTooShort  = errors.New("fetch interval too short")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidDecision   = errors.New("invalid decision")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
