/*
errors.go - Centralized error types for the finance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them) so callers can classify
  failures with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - Malformed input or unknown ids; nothing was mutated
  2. State errors - Operation against an entity in an incompatible state
  3. Limit errors - Only when limit enforcement is switched on
  4. Ledger/persistence errors - Storage failures outside the engine

USAGE:
  if errors.Is(err, generic.ErrInvalidState) {
      // caller contract violation: paying an empty or paid invoice
  }

SEE ALSO:
  - billing/engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
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
	// ErrValidation is returned for malformed input to a create or edit call.
	// No partial mutation has happened when this is returned.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a card, invoice or charge id is unknown.
	// Unknown ids are validation failures too, see NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation targets an entity in an
	// incompatible state. It signals a caller contract violation.
	ErrInvalidState = errors.New("invalid state")

	// ErrLimitExceeded is returned only when limit enforcement is enabled and a
	// purchase would push the used limit above the card limit.
	ErrLimitExceeded = errors.New("credit limit exceeded")

	// ErrDuplicateIdempotencyKey is returned when a ledger record with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrPersistence wraps failures of the external save step. The in-memory
	// mutation already happened when this is returned.
	ErrPersistence = errors.New("persistence failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports an unknown id. It matches both ErrNotFound and
// ErrValidation.
type NotFoundError struct {
	Kind string // "card", "invoice", "charge"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() []error { return []error{ErrNotFound, ErrValidation} }

// InvalidStateError reports an operation attempted against an entity whose
// state forbids it.
type InvalidStateError struct {
	Kind  string
	ID    string
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %q: %s", e.Op, e.Kind, e.ID, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// LimitExceededError details a purchase rejected by limit enforcement.
type LimitExceededError struct {
	CardID    CardID
	Limit     Money
	Used      Money
	Requested Money
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded on card %s: limit %s, used %s, requested %s",
		e.CardID, e.Limit, e.Used, e.Requested)
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState returns true for caller contract violations.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
