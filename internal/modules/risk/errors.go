package risk

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the sentinel every *ValidationError unwraps to.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownScenario is returned by strict stress-test services for unregistered scenario names.
	ErrUnknownScenario = errors.New("unknown stress scenario")
)

// ValidationError reports input that a calculator cannot work with at all
// (mismatched lengths, too few observations, non-positive iteration counts).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
