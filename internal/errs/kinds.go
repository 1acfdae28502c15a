package errs

import (
	"errors"
	"fmt"
)

// Error kinds shared by every integrity component. Callers branch on them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrEncoding   = errors.New("encoding failed")
	ErrIntegrity  = errors.New("integrity check failed")
	ErrIO         = errors.New("io failure")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// EncodingError reports a value that could not be canonicalized.
type EncodingError struct {
	Field string
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("encoding failed: %v", e.Err)
	}
	return fmt.Sprintf("encoding failed: %s: %v", e.Field, e.Err)
}

func (e *EncodingError) Unwrap() []error { return []error{ErrEncoding, e.Err} }

// IO tags err as an ErrIO failure while keeping the original chain.
func IO(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrIO, err)
}
