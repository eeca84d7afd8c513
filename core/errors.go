package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy. Callers branch with
// errors.Is so a duplicate active hold (ErrConflict) is distinguishable from
// bad input (ValidationError) and from a missing entity (ErrNotFound).
var (
	// ErrNotFound reports an operation on a nonexistent or already-terminal
	// entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a rejected write that would violate a uniqueness
	// invariant; prior state is untouched.
	ErrConflict = errors.New("conflict")

	// ErrDependencyUnavailable reports an unreachable optional dependency
	// (explainer, snapshot provider). Always paired with a deterministic
	// fallback; never surfaced to the end user as a hard failure.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// ValidationError rejects malformed or out-of-range input before any state
// change, naming the violated constraint.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field and constraint.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
