package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentLookup verifies payment state against the billing service's
// payments table. Replenishments referencing a payment require it to be
// completed before any funds are credited.
type PaymentLookup struct {
	pool *pgxpool.Pool
}

// NewPaymentLookup creates a payment lookup.
func NewPaymentLookup(pool *pgxpool.Pool) *PaymentLookup {
	return &PaymentLookup{pool: pool}
}

// PaymentCompleted reports whether the payment exists, belongs to the lawyer
// and is completed.
func (l *PaymentLookup) PaymentCompleted(ctx context.Context, lawyerID, paymentID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payments
			WHERE id = $1 AND lawyer_id = $2 AND status = 'completed'
		)`

	var completed bool
	if err := l.pool.QueryRow(ctx, query, paymentID, lawyerID).Scan(&completed); err != nil {
		return false, fmt.Errorf("lookup payment: %w", err)
	}
	return completed, nil
}

// CaseLookup verifies case ownership against the case-management tables.
type CaseLookup struct {
	pool *pgxpool.Pool
}

// NewCaseLookup creates a case lookup.
func NewCaseLookup(pool *pgxpool.Pool) *CaseLookup {
	return &CaseLookup{pool: pool}
}

// CaseOwned reports whether the case exists and belongs to the lawyer.
func (l *CaseLookup) CaseOwned(ctx context.Context, lawyerID, caseID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM cases
			WHERE id = $1 AND lawyer_id = $2
		)`

	var owned bool
	if err := l.pool.QueryRow(ctx, query, caseID, lawyerID).Scan(&owned); err != nil {
		return false, fmt.Errorf("lookup case: %w", err)
	}
	return owned, nil
}
