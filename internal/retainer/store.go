package retainer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mizan/internal/models"
)

// Precondition is evaluated by the store atomically with the write. Every
// balance mutation pushes its check here instead of comparing in application
// code first; a read-check-write split is exactly the race this engine
// exists to prevent.
type Precondition struct {
	// Owner requires lawyer_id to match.
	Owner *uuid.UUID

	// Status requires the account to be in this status.
	Status *models.RetainerStatus

	// NotStatus requires the account NOT to be in this status.
	NotStatus *models.RetainerStatus

	// MinBalance requires current_balance >= MinBalance.
	MinBalance *decimal.Decimal
}

// Delta describes the mutation applied when the precondition holds.
type Delta struct {
	// Amount is added to current_balance (negative for consumption).
	// Ignored when ZeroBalance is set.
	Amount decimal.Decimal

	// ZeroBalance forces current_balance to zero (refund).
	ZeroBalance bool

	// SetStatus, if non-nil, assigns the account status.
	SetStatus *models.RetainerStatus
}

// Entry is the history record appended in the same atomic unit as the delta.
// The store assigns its sequence number, timestamp and post-mutation balance.
type Entry struct {
	Kind        models.EntryKind
	Amount      decimal.Decimal
	PaymentID   *uuid.UUID
	InvoiceID   *uuid.UUID
	Description string
}

// ApplyResult is the post-mutation snapshot plus the balance the account
// held immediately before the write (refund reports it as refundAmount,
// audit records it as balance_before).
type ApplyResult struct {
	Account         *models.RetainerAccount
	PreviousBalance decimal.Decimal
}

// Store is the durable ledger store. Implementations must make TryApplyDelta
// indivisible from the perspective of concurrent callers: no other operation
// may observe the account between predicate evaluation and write, and a
// successful apply is visible to subsequent reads.
type Store interface {
	// Create persists a new account with its seed deposit entry.
	Create(ctx context.Context, params models.CreateRetainerParams) (*models.RetainerAccount, error)

	// Get returns the account with entries loaded, or nil if absent.
	Get(ctx context.Context, id uuid.UUID) (*models.RetainerAccount, error)

	// TryApplyDelta applies delta and appends entry (when non-nil) iff pre
	// holds against current stored state. applied=false with a nil error
	// means the predicate failed; the caller re-reads and classifies.
	TryApplyDelta(ctx context.Context, id uuid.UUID, pre Precondition, delta Delta, entry *Entry) (*ApplyResult, bool, error)

	// List returns a lawyer's accounts (entries not loaded) plus per-status
	// portfolio totals.
	List(ctx context.Context, lawyerID uuid.UUID, filter models.RetainerFilter) ([]*models.RetainerAccount, []models.StatusTotals, error)

	// ListLowBalance returns active accounts at or below their minimum.
	ListLowBalance(ctx context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error)

	// ListNeedingReplenishment returns active auto-replenish accounts at or
	// below their replenish threshold.
	ListNeedingReplenishment(ctx context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error)
}

// PaymentVerifier confirms a referenced payment exists, belongs to the
// caller and is completed. External collaborator; checked before the atomic
// update, not inside it.
type PaymentVerifier interface {
	PaymentCompleted(ctx context.Context, lawyerID, paymentID uuid.UUID) (bool, error)
}

// CaseVerifier confirms a referenced case belongs to the caller.
type CaseVerifier interface {
	CaseOwned(ctx context.Context, lawyerID, caseID uuid.UUID) (bool, error)
}

// ReplayCache stores committed mutation results under caller-supplied
// idempotency keys so a retry after an unknown outcome is not applied twice.
type ReplayCache interface {
	GetMutationResult(ctx context.Context, lawyerID uuid.UUID, key string) ([]byte, error)
	StoreMutationResult(ctx context.Context, lawyerID uuid.UUID, key string, result []byte, ttl time.Duration) error
}
