package retainer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mizan/internal/models"
)

// Sentinel errors, matched with errors.Is. Mutation failures are classified
// against a fresh read of the account before one of these is surfaced; a raw
// "not applied" from the store never leaks to the caller unless the re-read
// cannot explain it (ErrConflict).
var (
	// ErrValidation is returned for malformed or missing input.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound is returned when a referenced account does not exist.
	ErrNotFound = errors.New("retainer account not found")

	// ErrNotOwner is returned when the caller does not own the account.
	ErrNotOwner = errors.New("retainer account not owned by caller")

	// ErrInvalidState is returned when the operation is not permitted in
	// the account's current status.
	ErrInvalidState = errors.New("operation not permitted in current state")

	// ErrInsufficientBalance is returned when a consumption would drive the
	// balance negative. Never conflated with generic validation failure.
	ErrInsufficientBalance = errors.New("insufficient retainer balance")

	// ErrPaymentNotCompleted is returned when a replenishment references a
	// payment that does not exist or is not in a completed state.
	ErrPaymentNotCompleted = errors.New("referenced payment is not completed")

	// ErrCaseNotOwned is returned when a referenced case does not belong to
	// the caller.
	ErrCaseNotOwned = errors.New("referenced case not owned by caller")

	// ErrConflict is returned when a conditional update was not applied and
	// the re-read could not attribute the failure to a specific cause.
	ErrConflict = errors.New("concurrent modification, retry")
)

// ValidationError reports a specific rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InsufficientBalanceError carries the shortfall details so callers can
// render a "replenish now" affordance.
type InsufficientBalanceError struct {
	AccountID uuid.UUID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient retainer balance: available %s, requested %s",
		e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// InvalidStateError reports a state-machine rejection.
type InvalidStateError struct {
	AccountID uuid.UUID
	Status    models.RetainerStatus
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s retainer account in status %q", e.Operation, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
