// Package audit appends immutable activity-log entries for committed
// balance mutations. Recording is best-effort: the balance mutation is
// already durable by the time a recorder is invoked, and a recorder failure
// is logged by the caller, never propagated.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Action identifies the mutation being recorded.
type Action string

const (
	ActionCreate    Action = "retainer_created"
	ActionConsume   Action = "retainer_consumed"
	ActionReplenish Action = "retainer_replenished"
	ActionRefund    Action = "retainer_refunded"
)

// Entry is one immutable activity-log record.
type Entry struct {
	AccountID     uuid.UUID
	LawyerID      uuid.UUID
	Action        Action
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceID   *uuid.UUID // payment or invoice, depending on the action
	Description   string
	At            time.Time
}

// Recorder is the append-only activity-log sink.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// PGRecorder persists activity entries to PostgreSQL.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder creates a PostgreSQL-backed recorder.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// Record inserts an activity entry.
func (r *PGRecorder) Record(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO billing_activity (
			account_id, lawyer_id, action, amount, balance_before, balance_after,
			reference_id, description, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		entry.AccountID,
		entry.LawyerID,
		string(entry.Action),
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.ReferenceID,
		entry.Description,
		entry.At,
	)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}
