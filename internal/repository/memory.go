package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mizan/internal/models"
	"mizan/internal/retainer"
)

// Memory is an in-memory retainer.Store for tests and development. A single
// mutex makes TryApplyDelta indivisible, mirroring what the SQL store gets
// from running predicate and write in one statement.
type Memory struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.RetainerAccount
	number   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{accounts: make(map[uuid.UUID]*models.RetainerAccount)}
}

var _ retainer.Store = (*Memory)(nil)

// Create persists a new account with its seed deposit entry.
func (m *Memory) Create(_ context.Context, params models.CreateRetainerParams) (*models.RetainerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.number++
	now := time.Now().UTC()
	acct := &models.RetainerAccount{
		ID:                 uuid.New(),
		Number:             fmt.Sprintf("RET-%d-%05d", now.Year(), m.number),
		ClientID:           params.ClientID,
		LawyerID:           params.LawyerID,
		CaseID:             params.CaseID,
		RetainerType:       params.RetainerType,
		InitialAmount:      params.InitialAmount,
		CurrentBalance:     params.InitialAmount,
		MinimumBalance:     params.MinimumBalance,
		Status:             models.RetainerStatusActive,
		AutoReplenish:      params.AutoReplenish,
		ReplenishThreshold: params.ReplenishThreshold,
		ReplenishAmount:    params.ReplenishAmount,
		Notes:              params.Notes,
		EntrySeq:           1,
		CreatedBy:          params.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	acct.Deposits = []models.DepositEntry{{
		Seq:          1,
		Date:         now,
		Amount:       params.InitialAmount,
		PaymentID:    params.SeedPaymentID,
		BalanceAfter: params.InitialAmount,
	}}

	m.accounts[acct.ID] = acct
	return cloneAccount(acct), nil
}

// Get returns a copy of the account, or nil if absent.
func (m *Memory) Get(_ context.Context, id uuid.UUID) (*models.RetainerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return cloneAccount(acct), nil
}

// TryApplyDelta evaluates the precondition and applies the delta under one
// lock acquisition.
func (m *Memory) TryApplyDelta(_ context.Context, id uuid.UUID, pre retainer.Precondition, delta retainer.Delta, entry *retainer.Entry) (*retainer.ApplyResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, false, nil
	}

	if pre.Owner != nil && acct.LawyerID != *pre.Owner {
		return nil, false, nil
	}
	if pre.Status != nil && acct.Status != *pre.Status {
		return nil, false, nil
	}
	if pre.NotStatus != nil && acct.Status == *pre.NotStatus {
		return nil, false, nil
	}
	if pre.MinBalance != nil && acct.CurrentBalance.LessThan(*pre.MinBalance) {
		return nil, false, nil
	}

	prev := acct.CurrentBalance
	if delta.ZeroBalance {
		acct.CurrentBalance = decimal.Zero
	} else {
		acct.CurrentBalance = acct.CurrentBalance.Add(delta.Amount)
	}
	if delta.SetStatus != nil {
		acct.Status = *delta.SetStatus
	}
	now := time.Now().UTC()
	acct.UpdatedAt = now

	if entry != nil {
		acct.EntrySeq++
		switch entry.Kind {
		case models.EntryKindDeposit:
			acct.Deposits = append(acct.Deposits, models.DepositEntry{
				Seq:          acct.EntrySeq,
				Date:         now,
				Amount:       entry.Amount,
				PaymentID:    entry.PaymentID,
				BalanceAfter: acct.CurrentBalance,
			})
		case models.EntryKindConsumption:
			acct.Consumptions = append(acct.Consumptions, models.ConsumptionEntry{
				Seq:          acct.EntrySeq,
				Date:         now,
				Amount:       entry.Amount,
				InvoiceID:    entry.InvoiceID,
				Description:  entry.Description,
				BalanceAfter: acct.CurrentBalance,
			})
		}
	}

	return &retainer.ApplyResult{Account: cloneAccount(acct), PreviousBalance: prev}, true, nil
}

// List returns a lawyer's accounts plus per-status totals.
func (m *Memory) List(_ context.Context, lawyerID uuid.UUID, filter models.RetainerFilter) ([]*models.RetainerAccount, []models.StatusTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totalsByStatus := make(map[models.RetainerStatus]*models.StatusTotals)
	var matched []*models.RetainerAccount
	for _, acct := range m.accounts {
		if acct.LawyerID != lawyerID {
			continue
		}

		t, ok := totalsByStatus[acct.Status]
		if !ok {
			t = &models.StatusTotals{Status: acct.Status, Balance: decimal.Zero}
			totalsByStatus[acct.Status] = t
		}
		t.Count++
		t.Balance = t.Balance.Add(acct.CurrentBalance)

		if filter.Status != nil && acct.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && acct.RetainerType != *filter.Type {
			continue
		}
		if filter.ClientID != nil && acct.ClientID != *filter.ClientID {
			continue
		}
		if filter.CaseID != nil && (acct.CaseID == nil || *acct.CaseID != *filter.CaseID) {
			continue
		}
		matched = append(matched, acct)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]*models.RetainerAccount, 0, end-offset)
	for _, acct := range matched[offset:end] {
		page = append(page, cloneAccount(acct))
	}

	var totals []models.StatusTotals
	for _, t := range totalsByStatus {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Status < totals[j].Status })

	return page, totals, nil
}

// ListLowBalance returns active accounts at or below their minimum.
func (m *Memory) ListLowBalance(_ context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error) {
	return m.selectAccounts(lawyerID, retainer.NeedsLowBalanceAlert)
}

// ListNeedingReplenishment returns accounts whose auto-replenish signal fires.
func (m *Memory) ListNeedingReplenishment(_ context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error) {
	return m.selectAccounts(lawyerID, retainer.NeedsReplenishment)
}

func (m *Memory) selectAccounts(lawyerID uuid.UUID, keep func(*models.RetainerAccount) bool) ([]*models.RetainerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.RetainerAccount
	for _, acct := range m.accounts {
		if acct.LawyerID == lawyerID && keep(acct) {
			out = append(out, cloneAccount(acct))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentBalance.LessThan(out[j].CurrentBalance)
	})
	return out, nil
}

func cloneAccount(acct *models.RetainerAccount) *models.RetainerAccount {
	c := *acct
	c.Deposits = append([]models.DepositEntry(nil), acct.Deposits...)
	c.Consumptions = append([]models.ConsumptionEntry(nil), acct.Consumptions...)
	return &c
}

// StaticPayments is a fixed-state PaymentVerifier for tests and development.
type StaticPayments map[uuid.UUID]bool

// PaymentCompleted reports the configured state; unknown payments are not
// completed.
func (p StaticPayments) PaymentCompleted(_ context.Context, _, paymentID uuid.UUID) (bool, error) {
	return p[paymentID], nil
}

// StaticCases is a fixed-state CaseVerifier keyed by case ID to owner.
type StaticCases map[uuid.UUID]uuid.UUID

// CaseOwned reports whether the case is registered to the lawyer.
func (c StaticCases) CaseOwned(_ context.Context, lawyerID, caseID uuid.UUID) (bool, error) {
	owner, ok := c[caseID]
	return ok && owner == lawyerID, nil
}
