package retainer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mizan/internal/audit"
	"mizan/internal/models"
)

const (
	defaultConsumptionDescription = "retainer consumption"

	// replayTTL bounds how long a committed mutation result is replayable
	// under its idempotency key.
	replayTTL = 24 * time.Hour
)

// Engine exposes the money-moving operations on retainer accounts. All
// preconditions are evaluated by the store atomically with the write; the
// engine never holds an in-process lock and never trusts a balance it read
// earlier.
type Engine struct {
	store    Store
	payments PaymentVerifier
	cases    CaseVerifier
	recorder audit.Recorder
	replay   ReplayCache
	logger   *zap.Logger
}

// Config holds engine dependencies. Payments, Cases, Recorder and Replay
// are optional; a nil field disables the corresponding check or side effect.
type Config struct {
	Store    Store
	Payments PaymentVerifier
	Cases    CaseVerifier
	Recorder audit.Recorder
	Replay   ReplayCache
	Logger   *zap.Logger
}

// NewEngine creates a new balance engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    cfg.Store,
		payments: cfg.Payments,
		cases:    cfg.Cases,
		recorder: cfg.Recorder,
		replay:   cfg.Replay,
		logger:   logger,
	}
}

// CreateParams contains the inputs for opening a retainer account.
type CreateParams struct {
	ClientID       uuid.UUID
	CaseID         *uuid.UUID
	RetainerType   models.RetainerType
	InitialAmount  decimal.Decimal
	MinimumBalance decimal.Decimal

	AutoReplenish      bool
	ReplenishThreshold *decimal.Decimal
	ReplenishAmount    *decimal.Decimal

	Notes         string
	SeedPaymentID *uuid.UUID
}

// Create opens an account with status=active, currentBalance=InitialAmount
// and a seed deposit entry mirroring the initial amount.
func (e *Engine) Create(ctx context.Context, lawyerID uuid.UUID, p CreateParams) (*models.RetainerAccount, error) {
	if lawyerID == uuid.Nil {
		return nil, &ValidationError{Field: "lawyerId", Reason: "required"}
	}
	if p.ClientID == uuid.Nil {
		return nil, &ValidationError{Field: "clientId", Reason: "required"}
	}
	if !p.RetainerType.Valid() {
		return nil, &ValidationError{Field: "retainerType", Reason: "unknown type"}
	}
	if !p.InitialAmount.IsPositive() {
		return nil, &ValidationError{Field: "initialAmount", Reason: "must be greater than zero"}
	}
	if p.MinimumBalance.IsNegative() {
		return nil, &ValidationError{Field: "minimumBalance", Reason: "must not be negative"}
	}
	if p.AutoReplenish {
		if p.ReplenishThreshold == nil || p.ReplenishAmount == nil {
			return nil, &ValidationError{Field: "autoReplenish", Reason: "replenishThreshold and replenishAmount are required"}
		}
		if !p.ReplenishThreshold.IsPositive() || !p.ReplenishAmount.IsPositive() {
			return nil, &ValidationError{Field: "autoReplenish", Reason: "threshold and amount must be greater than zero"}
		}
	}

	if p.CaseID != nil {
		if e.cases == nil {
			return nil, &ValidationError{Field: "caseId", Reason: "case references are not supported"}
		}
		owned, err := e.cases.CaseOwned(ctx, lawyerID, *p.CaseID)
		if err != nil {
			return nil, fmt.Errorf("verify case ownership: %w", err)
		}
		if !owned {
			return nil, ErrCaseNotOwned
		}
	}

	acct, err := e.store.Create(ctx, models.CreateRetainerParams{
		ClientID:           p.ClientID,
		LawyerID:           lawyerID,
		CaseID:             p.CaseID,
		RetainerType:       p.RetainerType,
		InitialAmount:      p.InitialAmount,
		MinimumBalance:     p.MinimumBalance,
		AutoReplenish:      p.AutoReplenish,
		ReplenishThreshold: p.ReplenishThreshold,
		ReplenishAmount:    p.ReplenishAmount,
		Notes:              p.Notes,
		CreatedBy:          lawyerID,
		SeedPaymentID:      p.SeedPaymentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create retainer account: %w", err)
	}

	e.logger.Info("retainer account created",
		zap.String("account_id", acct.ID.String()),
		zap.String("number", acct.Number),
		zap.String("initial_amount", acct.InitialAmount.String()),
	)

	e.record(ctx, audit.Entry{
		AccountID:     acct.ID,
		LawyerID:      lawyerID,
		Action:        audit.ActionCreate,
		Amount:        acct.InitialAmount,
		BalanceBefore: decimal.Zero,
		BalanceAfter:  acct.CurrentBalance,
		ReferenceID:   p.SeedPaymentID,
		Description:   fmt.Sprintf("retainer account %s opened", acct.Number),
		At:            time.Now().UTC(),
	})

	return acct, nil
}

// ConsumeParams contains the inputs for a consumption.
type ConsumeParams struct {
	Amount         decimal.Decimal
	InvoiceID      *uuid.UUID
	Description    string
	IdempotencyKey string
}

// MutationResult is the outcome of a successful consume or replenish.
type MutationResult struct {
	Account         *models.RetainerAccount `json:"account"`
	LowBalanceAlert bool                    `json:"lowBalanceAlert"`
}

// Consume debits amount from the account. The status and
// balance-sufficiency preconditions are checked by the store at write time;
// when the conditional update is not applied, the current state is re-read
// and the failure surfaced as a distinct error kind.
func (e *Engine) Consume(ctx context.Context, lawyerID, accountID uuid.UUID, p ConsumeParams) (*MutationResult, error) {
	if !p.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	if res, ok := e.replayed(ctx, lawyerID, p.IdempotencyKey); ok {
		return res, nil
	}

	description := p.Description
	if description == "" {
		description = defaultConsumptionDescription
	}

	active := models.RetainerStatusActive
	pre := Precondition{
		Owner:      &lawyerID,
		Status:     &active,
		MinBalance: &p.Amount,
	}
	delta := Delta{Amount: p.Amount.Neg()}
	entry := &Entry{
		Kind:        models.EntryKindConsumption,
		Amount:      p.Amount,
		InvoiceID:   p.InvoiceID,
		Description: description,
	}

	applied, ok, err := e.store.TryApplyDelta(ctx, accountID, pre, delta, entry)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	if !ok {
		return nil, e.classify(ctx, lawyerID, accountID, "consume", &p.Amount)
	}

	acct := applied.Account
	result := &MutationResult{
		Account:         acct,
		LowBalanceAlert: acct.CurrentBalance.LessThanOrEqual(acct.MinimumBalance),
	}

	e.logger.Info("retainer consumed",
		zap.String("account_id", accountID.String()),
		zap.String("amount", p.Amount.String()),
		zap.String("balance", acct.CurrentBalance.String()),
		zap.Bool("low_balance", result.LowBalanceAlert),
	)

	e.record(ctx, audit.Entry{
		AccountID:     accountID,
		LawyerID:      lawyerID,
		Action:        audit.ActionConsume,
		Amount:        p.Amount,
		BalanceBefore: applied.PreviousBalance,
		BalanceAfter:  acct.CurrentBalance,
		ReferenceID:   p.InvoiceID,
		Description:   description,
		At:            time.Now().UTC(),
	})

	e.remember(ctx, lawyerID, p.IdempotencyKey, result)
	return result, nil
}

// ReplenishParams contains the inputs for a replenishment.
type ReplenishParams struct {
	Amount         decimal.Decimal
	PaymentID      *uuid.UUID
	IdempotencyKey string
}

// Replenish credits amount to the account. A refunded account is revived to
// active; this is a deliberate business rule. When a payment is referenced
// it must already be completed.
func (e *Engine) Replenish(ctx context.Context, lawyerID, accountID uuid.UUID, p ReplenishParams) (*MutationResult, error) {
	if !p.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	if p.PaymentID != nil && e.payments != nil {
		completed, err := e.payments.PaymentCompleted(ctx, lawyerID, *p.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("verify payment: %w", err)
		}
		if !completed {
			return nil, ErrPaymentNotCompleted
		}
	}

	if res, ok := e.replayed(ctx, lawyerID, p.IdempotencyKey); ok {
		return res, nil
	}

	active := models.RetainerStatusActive
	pre := Precondition{Owner: &lawyerID}
	delta := Delta{Amount: p.Amount, SetStatus: &active}
	entry := &Entry{
		Kind:      models.EntryKindDeposit,
		Amount:    p.Amount,
		PaymentID: p.PaymentID,
	}

	applied, ok, err := e.store.TryApplyDelta(ctx, accountID, pre, delta, entry)
	if err != nil {
		return nil, fmt.Errorf("replenish: %w", err)
	}
	if !ok {
		return nil, e.classify(ctx, lawyerID, accountID, "replenish", nil)
	}

	acct := applied.Account
	result := &MutationResult{
		Account:         acct,
		LowBalanceAlert: acct.IsActive() && acct.CurrentBalance.LessThanOrEqual(acct.MinimumBalance),
	}

	e.logger.Info("retainer replenished",
		zap.String("account_id", accountID.String()),
		zap.String("amount", p.Amount.String()),
		zap.String("balance", acct.CurrentBalance.String()),
	)

	e.record(ctx, audit.Entry{
		AccountID:     accountID,
		LawyerID:      lawyerID,
		Action:        audit.ActionReplenish,
		Amount:        p.Amount,
		BalanceBefore: applied.PreviousBalance,
		BalanceAfter:  acct.CurrentBalance,
		ReferenceID:   p.PaymentID,
		Description:   "retainer replenishment",
		At:            time.Now().UTC(),
	})

	e.remember(ctx, lawyerID, p.IdempotencyKey, result)
	return result, nil
}

// RefundResult is the outcome of a successful refund.
type RefundResult struct {
	Account      *models.RetainerAccount `json:"account"`
	RefundAmount decimal.Decimal         `json:"refundAmount"`
}

// Refund zeroes the balance and marks the account refunded. Refunding an
// already-refunded account is rejected, not a no-op. No ledger entry is
// appended; the transition is recorded through the account's own fields and
// the activity log.
func (e *Engine) Refund(ctx context.Context, lawyerID, accountID uuid.UUID, reason string) (*RefundResult, error) {
	refunded := models.RetainerStatusRefunded
	pre := Precondition{Owner: &lawyerID, NotStatus: &refunded}
	delta := Delta{ZeroBalance: true, SetStatus: &refunded}

	applied, ok, err := e.store.TryApplyDelta(ctx, accountID, pre, delta, nil)
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}
	if !ok {
		return nil, e.classify(ctx, lawyerID, accountID, "refund", nil)
	}

	description := reason
	if description == "" {
		description = "retainer balance refunded to client"
	}

	e.logger.Info("retainer refunded",
		zap.String("account_id", accountID.String()),
		zap.String("refund_amount", applied.PreviousBalance.String()),
	)

	e.record(ctx, audit.Entry{
		AccountID:     accountID,
		LawyerID:      lawyerID,
		Action:        audit.ActionRefund,
		Amount:        applied.PreviousBalance,
		BalanceBefore: applied.PreviousBalance,
		BalanceAfter:  decimal.Zero,
		Description:   description,
		At:            time.Now().UTC(),
	})

	return &RefundResult{
		Account:      applied.Account,
		RefundAmount: applied.PreviousBalance,
	}, nil
}

// Get returns a single account after an ownership check.
func (e *Engine) Get(ctx context.Context, lawyerID, accountID uuid.UUID) (*models.RetainerAccount, error) {
	acct, err := e.store.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get retainer account: %w", err)
	}
	if acct == nil {
		return nil, ErrNotFound
	}
	if !acct.OwnedBy(lawyerID) {
		return nil, ErrNotOwner
	}
	return acct, nil
}

// History returns the merged chronological ledger view for an account.
func (e *Engine) History(ctx context.Context, lawyerID, accountID uuid.UUID) (*HistoryView, error) {
	acct, err := e.Get(ctx, lawyerID, accountID)
	if err != nil {
		return nil, err
	}
	return NewHistoryView(acct), nil
}

// Page is one page of a portfolio listing with per-status totals.
type Page struct {
	Accounts []*models.RetainerAccount `json:"accounts"`
	Totals   []models.StatusTotals     `json:"totals"`
}

// List returns a lawyer's accounts matching the filter.
func (e *Engine) List(ctx context.Context, lawyerID uuid.UUID, filter models.RetainerFilter) (*Page, error) {
	accounts, totals, err := e.store.List(ctx, lawyerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list retainer accounts: %w", err)
	}
	return &Page{Accounts: accounts, Totals: totals}, nil
}

// LowBalance returns the lawyer's active accounts at or below minimum.
func (e *Engine) LowBalance(ctx context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error) {
	accounts, err := e.store.ListLowBalance(ctx, lawyerID)
	if err != nil {
		return nil, fmt.Errorf("list low-balance accounts: %w", err)
	}
	return accounts, nil
}

// NeedsReplenishment returns the accounts whose advisory auto-replenish
// signal currently fires. The engine reports the signal only; it never moves
// funds on its own.
func (e *Engine) NeedsReplenishment(ctx context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error) {
	accounts, err := e.store.ListNeedingReplenishment(ctx, lawyerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts needing replenishment: %w", err)
	}
	return accounts, nil
}

// classify re-reads the account after a failed conditional update and maps
// the failure to a specific error kind. needed is the consumption amount
// when balance sufficiency was part of the predicate.
func (e *Engine) classify(ctx context.Context, lawyerID, accountID uuid.UUID, op string, needed *decimal.Decimal) error {
	acct, err := e.store.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("classify failed %s: %w", op, err)
	}
	if acct == nil {
		return ErrNotFound
	}
	if !acct.OwnedBy(lawyerID) {
		return ErrNotOwner
	}
	if op == "consume" && !acct.IsActive() {
		return &InvalidStateError{AccountID: accountID, Status: acct.Status, Operation: op}
	}
	if needed != nil && acct.CurrentBalance.LessThan(*needed) {
		return &InsufficientBalanceError{
			AccountID: accountID,
			Available: acct.CurrentBalance,
			Requested: *needed,
		}
	}
	if op == "refund" && acct.Status == models.RetainerStatusRefunded {
		return &InvalidStateError{AccountID: accountID, Status: acct.Status, Operation: op}
	}
	// The state that blocked the write no longer holds; the interleaved
	// mutation won the race and this request genuinely lost it.
	return ErrConflict
}

// record notifies the activity sink after a committed mutation. Failures
// are logged, never propagated: the balance write is already durable.
func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, entry); err != nil {
		e.logger.Warn("activity record failed",
			zap.String("account_id", entry.AccountID.String()),
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
	}
}

// replayed returns a previously committed result for the idempotency key.
func (e *Engine) replayed(ctx context.Context, lawyerID uuid.UUID, key string) (*MutationResult, bool) {
	if key == "" || e.replay == nil {
		return nil, false
	}
	raw, err := e.replay.GetMutationResult(ctx, lawyerID, key)
	if err != nil {
		e.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var res MutationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		e.logger.Warn("idempotency payload corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	e.logger.Info("mutation replayed from idempotency cache", zap.String("key", key))
	return &res, true
}

// remember stores a committed result under the idempotency key, best-effort.
func (e *Engine) remember(ctx context.Context, lawyerID uuid.UUID, key string, res *MutationResult) {
	if key == "" || e.replay == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		e.logger.Warn("idempotency marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := e.replay.StoreMutationResult(ctx, lawyerID, key, raw, replayTTL); err != nil {
		e.logger.Warn("idempotency store failed", zap.String("key", key), zap.Error(err))
	}
}
