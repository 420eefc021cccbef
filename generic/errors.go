/*
errors.go - Centralized error types

PURPOSE:
  All error types in one place for consistency and discoverability.
  The domain package returns these, the stores wrap persistence failures
  around them and the HTTP layer maps them to status codes.

ERROR CATEGORIES:
  1. Validation errors - Caller input is malformed (400)
  2. Not-found errors - A referenced entity doesn't exist (404)
  3. Invariant violations - Stored data breaks an engine assumption (500)
  4. Conflicts / ownership - Duplicates (409) and foreign resources (403)

USAGE:
  if errors.Is(err, generic.ErrNotFound) {
      ...
  }
  var verr *generic.ValidationError
  if errors.As(err, &verr) {
      log.Println(verr.Field)
  }

SEE ALSO:
  - period.go: Returns ValidationError for malformed ranges
  - api/handlers.go: statusFor maps these to HTTP codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation is matched by every InvariantViolationError.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConflict is returned when a unique record (holiday range, rank,
	// period, sheet) already exists.
	ErrConflict = errors.New("already exists")

	// ErrForbidden is returned when a resource belongs to another admin.
	ErrForbidden = errors.New("resource belongs to another admin")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a caller input error.
type ValidationError struct {
	Field   string
	Message string
	err     error
}

// NewValidationError returns a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.err != nil {
		return []error{ErrValidation, e.err}
	}
	return []error{ErrValidation}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // e.g. "teacher", "sheet"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvariantViolationError reports data that the engine cannot process:
// negative session durations, unknown session types or weekday names.
// These are data/programmer errors and are never recovered.
type InvariantViolationError struct {
	Rule   string
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Rule, e.Detail)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
