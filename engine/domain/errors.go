package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy shared across the serving path.
var (
	// ErrNotConfigured marks missing configuration (API key, spreadsheet
	// config). Callers degrade the affected feature rather than crash.
	ErrNotConfigured = errors.New("not configured")

	// ErrEmbedding marks a failed embedding call. Propagated to the caller
	// once; no recommendation or answer is produced and nothing retries.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration marks a failed language-model call. Same contract as
	// ErrEmbedding.
	ErrGeneration = errors.New("generation failed")

	// ErrSinkFailure marks a failed log-sink append. Recorded internally and
	// swallowed; it never reaches the user-facing flow.
	ErrSinkFailure = errors.New("sink append failed")
)

// Validation sentinels.
var (
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrUnknownUserType  = errors.New("unknown user type")
	ErrUnknownRegion    = errors.New("unknown region")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrQuestionTooShort = errors.New("question too short")
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
