package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// ErrUnknownActivityType rejects a whole RecordActivity call before any write.
	ErrUnknownActivityType = errors.New("unknown activity type")

	// ErrValidation marks malformed input. Match with errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrencyConflict means lock or serialization contention on the
	// same key. The operation is safe to retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateAward is a uniqueness violation on an award or transaction
	// insert. Evaluators treat it as "already granted".
	ErrDuplicateAward = errors.New("award already granted")

	// ErrTransient covers every other persistence failure.
	ErrTransient = errors.New("transient persistence failure")

	// ErrNotFound is returned by single-row lookups.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err rejects caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
