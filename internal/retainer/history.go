package retainer

import (
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mizan/internal/models"
)

// LedgerEntry is one row of the merged history view. Deposits carry a
// positive signed amount, consumptions a negative one.
type LedgerEntry struct {
	Kind         models.EntryKind `json:"type"`
	Seq          int64            `json:"seq"`
	Date         time.Time        `json:"date"`
	Amount       decimal.Decimal  `json:"amount"`
	PaymentID    *uuid.UUID       `json:"paymentId,omitempty"`
	InvoiceID    *uuid.UUID       `json:"invoiceId,omitempty"`
	Description  string           `json:"description,omitempty"`
	BalanceAfter decimal.Decimal  `json:"balanceAfter"`
}

// HistoryView is a read-only projection of an account's deposits and
// consumptions, ordered by date descending. Same-timestamp entries are
// ordered by their append sequence number; date alone is too coarse to be a
// deterministic sort key.
type HistoryView struct {
	entries []LedgerEntry
}

// NewHistoryView projects the account's entry lists into a merged view.
func NewHistoryView(acct *models.RetainerAccount) *HistoryView {
	merged := make([]LedgerEntry, 0, len(acct.Deposits)+len(acct.Consumptions))

	for _, d := range acct.Deposits {
		merged = append(merged, LedgerEntry{
			Kind:         models.EntryKindDeposit,
			Seq:          d.Seq,
			Date:         d.Date,
			Amount:       d.Amount,
			PaymentID:    d.PaymentID,
			BalanceAfter: d.BalanceAfter,
		})
	}
	for _, c := range acct.Consumptions {
		merged = append(merged, LedgerEntry{
			Kind:         models.EntryKindConsumption,
			Seq:          c.Seq,
			Date:         c.Date,
			Amount:       c.Amount.Neg(),
			InvoiceID:    c.InvoiceID,
			Description:  c.Description,
			BalanceAfter: c.BalanceAfter,
		})
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Date.Equal(merged[j].Date) {
			return merged[i].Date.After(merged[j].Date)
		}
		return merged[i].Seq > merged[j].Seq
	})

	return &HistoryView{entries: merged}
}

// Len returns the number of entries.
func (v *HistoryView) Len() int {
	return len(v.entries)
}

// All returns the entries newest-first as a restartable iterator.
func (v *HistoryView) All() iter.Seq[LedgerEntry] {
	return func(yield func(LedgerEntry) bool) {
		for _, e := range v.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Entries returns a copy of the merged entries, newest-first.
func (v *HistoryView) Entries() []LedgerEntry {
	out := make([]LedgerEntry, len(v.entries))
	copy(out, v.entries)
	return out
}

// SignedSum totals the signed amounts of all entries. Outside of refund
// cycles it equals the account's current balance.
func (v *HistoryView) SignedSum() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range v.entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}
