package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for boundary validation and pipeline failures.
var (
	ErrEmptyQuery      = errors.New("empty query")
	ErrInvalidTenant   = errors.New("invalid tenant id")
	ErrReservedTenant  = errors.New("reserved tenant id")
	ErrInvalidFileName = errors.New("invalid file name")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrNotFound        = errors.New("document not found")
	ErrParse           = errors.New("document parse failed")
	ErrEmptyDocument   = errors.New("document has no text")
	ErrDimension       = errors.New("vector dimension mismatch")
	ErrTaskNotFound    = errors.New("task not found")
)

// ValidationError wraps a sentinel with context.
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
