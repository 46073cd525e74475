package models

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrPhoneTaken    = errors.New("phone already registered")
	ErrNoLocation    = errors.New("user has no location")
	ErrSelfReference = errors.New("user cannot reference itself")
)

// FieldError describes a problem with a single input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when input fails validation.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
