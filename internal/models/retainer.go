package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RetainerAccount is a client trust-account balance held by a lawyer.
// CurrentBalance is a cached running total over the deposit and consumption
// entries; the entries are the durable audit trail and are append-only.
type RetainerAccount struct {
	ID             uuid.UUID      `json:"id"`
	Number         string         `json:"retainerNumber"`
	ClientID       uuid.UUID      `json:"clientId"`
	LawyerID       uuid.UUID      `json:"lawyerId"`
	CaseID         *uuid.UUID     `json:"caseId,omitempty"`
	RetainerType   RetainerType   `json:"retainerType"`
	InitialAmount  decimal.Decimal `json:"initialAmount"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	MinimumBalance decimal.Decimal `json:"minimumBalance"`
	Status         RetainerStatus `json:"status"`

	AutoReplenish      bool             `json:"autoReplenish"`
	ReplenishThreshold *decimal.Decimal `json:"replenishThreshold,omitempty"`
	ReplenishAmount    *decimal.Decimal `json:"replenishAmount,omitempty"`

	Notes string `json:"notes,omitempty"`

	Deposits     []DepositEntry     `json:"deposits"`
	Consumptions []ConsumptionEntry `json:"consumptions"`

	// EntrySeq is the per-account monotonic counter; each appended entry
	// takes the next value, giving the history projection a deterministic
	// tiebreaker for same-timestamp entries.
	EntrySeq int64 `json:"-"`

	CreatedBy uuid.UUID `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DepositEntry is an immutable credit against the account.
type DepositEntry struct {
	Seq          int64           `json:"seq"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentID    *uuid.UUID      `json:"paymentId,omitempty"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
}

// ConsumptionEntry is an immutable debit against the account.
type ConsumptionEntry struct {
	Seq          int64           `json:"seq"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	InvoiceID    *uuid.UUID      `json:"invoiceId,omitempty"`
	Description  string          `json:"description"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
}

// MarshalJSON includes the derived deposit and consumption totals alongside
// the stored fields.
func (a *RetainerAccount) MarshalJSON() ([]byte, error) {
	type alias RetainerAccount
	return json.Marshal(struct {
		*alias
		TotalDeposits     decimal.Decimal `json:"totalDeposits"`
		TotalConsumptions decimal.Decimal `json:"totalConsumptions"`
	}{
		alias:             (*alias)(a),
		TotalDeposits:     a.TotalDeposits(),
		TotalConsumptions: a.TotalConsumptions(),
	})
}

// IsActive returns true if the account accepts consumptions.
func (a *RetainerAccount) IsActive() bool {
	return a.Status == RetainerStatusActive
}

// OwnedBy reports whether the account belongs to the given lawyer.
func (a *RetainerAccount) OwnedBy(lawyerID uuid.UUID) bool {
	return a.LawyerID == lawyerID
}

// TotalDeposits sums all deposit entries, including the seed deposit that
// mirrors InitialAmount.
func (a *RetainerAccount) TotalDeposits() decimal.Decimal {
	total := decimal.Zero
	for _, d := range a.Deposits {
		total = total.Add(d.Amount)
	}
	return total
}

// TotalConsumptions sums all consumption entries.
func (a *RetainerAccount) TotalConsumptions() decimal.Decimal {
	total := decimal.Zero
	for _, c := range a.Consumptions {
		total = total.Add(c.Amount)
	}
	return total
}

// LedgerBalance recomputes the balance from the entry lists. Outside of
// refund cycles (refund zeroes the balance without appending an entry) this
// must equal CurrentBalance.
func (a *RetainerAccount) LedgerBalance() decimal.Decimal {
	return a.TotalDeposits().Sub(a.TotalConsumptions())
}

// CreateRetainerParams contains parameters for creating a new account.
type CreateRetainerParams struct {
	ClientID       uuid.UUID
	LawyerID       uuid.UUID
	CaseID         *uuid.UUID
	RetainerType   RetainerType
	InitialAmount  decimal.Decimal
	MinimumBalance decimal.Decimal

	AutoReplenish      bool
	ReplenishThreshold *decimal.Decimal
	ReplenishAmount    *decimal.Decimal

	Notes     string
	CreatedBy uuid.UUID

	// SeedPaymentID optionally links the opening deposit to a payment.
	SeedPaymentID *uuid.UUID
}

// RetainerFilter narrows list queries.
type RetainerFilter struct {
	Status   *RetainerStatus
	Type     *RetainerType
	ClientID *uuid.UUID
	CaseID   *uuid.UUID
	Limit    int
	Offset   int
}

// StatusTotals aggregates a lawyer's portfolio per status.
type StatusTotals struct {
	Status  RetainerStatus  `json:"status"`
	Count   int64           `json:"count"`
	Balance decimal.Decimal `json:"balance"`
}
