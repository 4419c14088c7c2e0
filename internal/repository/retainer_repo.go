package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"mizan/internal/db"
	"mizan/internal/models"
	"mizan/internal/retainer"
)

// scanner abstracts pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier abstracts the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const accountColumns = `id, number, client_id, lawyer_id, case_id, retainer_type,
	initial_amount, current_balance, minimum_balance, status,
	auto_replenish, replenish_threshold, replenish_amount, notes,
	entry_seq, created_by, created_at, updated_at`

// Qualified variant for statements where the row alias is ambiguous.
const accountColumnsQualified = `r.id, r.number, r.client_id, r.lawyer_id, r.case_id, r.retainer_type,
	r.initial_amount, r.current_balance, r.minimum_balance, r.status,
	r.auto_replenish, r.replenish_threshold, r.replenish_amount, r.notes,
	r.entry_seq, r.created_by, r.created_at, r.updated_at`

// RetainerRepository is the PostgreSQL ledger store. Mutations run their
// predicate inside the UPDATE itself, so the check and the write are one
// indivisible operation from the perspective of any concurrent caller.
type RetainerRepository struct {
	db *db.DB
}

// NewRetainerRepository creates a new retainer repository.
func NewRetainerRepository(database *db.DB) *RetainerRepository {
	return &RetainerRepository{db: database}
}

var _ retainer.Store = (*RetainerRepository)(nil)

// Create persists a new account and its seed deposit entry in one
// transaction.
func (r *RetainerRepository) Create(ctx context.Context, params models.CreateRetainerParams) (*models.RetainerAccount, error) {
	return db.WithTxResult(ctx, r.db, func(tx pgx.Tx) (*models.RetainerAccount, error) {
		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('retainer_number_seq')`).Scan(&seq); err != nil {
			return nil, fmt.Errorf("next retainer number: %w", err)
		}
		number := fmt.Sprintf("RET-%d-%05d", time.Now().UTC().Year(), seq)

		query := fmt.Sprintf(`
			INSERT INTO retainer_accounts (
				id, number, client_id, lawyer_id, case_id, retainer_type,
				initial_amount, current_balance, minimum_balance, status,
				auto_replenish, replenish_threshold, replenish_amount, notes,
				entry_seq, created_by
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, $10, $11, $12, $13, 1, $14)
			RETURNING %s`, accountColumns)

		row := tx.QueryRow(ctx, query,
			uuid.New(),
			number,
			params.ClientID,
			params.LawyerID,
			params.CaseID,
			params.RetainerType,
			params.InitialAmount,
			params.MinimumBalance,
			models.RetainerStatusActive,
			params.AutoReplenish,
			params.ReplenishThreshold,
			params.ReplenishAmount,
			params.Notes,
			params.CreatedBy,
		)

		acct, err := r.scan(row)
		if err != nil {
			return nil, fmt.Errorf("insert retainer account: %w", err)
		}

		entryQuery := `
			INSERT INTO retainer_entries (account_id, seq, kind, amount, payment_id, description, balance_after)
			VALUES ($1, 1, $2, $3, $4, $5, $3)`
		if _, err := tx.Exec(ctx, entryQuery,
			acct.ID,
			models.EntryKindDeposit,
			params.InitialAmount,
			params.SeedPaymentID,
			"initial retainer deposit",
		); err != nil {
			return nil, fmt.Errorf("insert seed deposit: %w", err)
		}

		if err := r.loadEntries(ctx, tx, acct); err != nil {
			return nil, err
		}
		return acct, nil
	})
}

// Get retrieves an account with its entries, or nil if absent.
func (r *RetainerRepository) Get(ctx context.Context, id uuid.UUID) (*models.RetainerAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM retainer_accounts WHERE id = $1`, accountColumns)

	acct, err := r.scan(r.db.Pool().QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get retainer account: %w", err)
	}

	if err := r.loadEntries(ctx, r.db.Pool(), acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// TryApplyDelta applies the delta and appends the entry iff the precondition
// holds at the moment of write. The predicate lives in the UPDATE's WHERE
// clause; zero rows updated means not applied. The entry insert shares the
// transaction, so the cached balance and the entry lists move together.
func (r *RetainerRepository) TryApplyDelta(ctx context.Context, id uuid.UUID, pre retainer.Precondition, delta retainer.Delta, entry *retainer.Entry) (*retainer.ApplyResult, bool, error) {
	type outcome struct {
		result  *retainer.ApplyResult
		applied bool
	}

	out, err := db.WithTxResult(ctx, r.db, func(tx pgx.Tx) (outcome, error) {
		sets := []string{"updated_at = NOW()"}
		args := []any{id}
		argNum := 2

		if delta.ZeroBalance {
			sets = append(sets, "current_balance = 0")
		} else {
			sets = append(sets, fmt.Sprintf("current_balance = r.current_balance + $%d", argNum))
			args = append(args, delta.Amount)
			argNum++
		}
		if delta.SetStatus != nil {
			sets = append(sets, fmt.Sprintf("status = $%d", argNum))
			args = append(args, *delta.SetStatus)
			argNum++
		}
		if entry != nil {
			sets = append(sets, "entry_seq = r.entry_seq + 1")
		}

		conds := []string{"r.id = prev.id"}
		if pre.Owner != nil {
			conds = append(conds, fmt.Sprintf("r.lawyer_id = $%d", argNum))
			args = append(args, *pre.Owner)
			argNum++
		}
		if pre.Status != nil {
			conds = append(conds, fmt.Sprintf("r.status = $%d", argNum))
			args = append(args, *pre.Status)
			argNum++
		}
		if pre.NotStatus != nil {
			conds = append(conds, fmt.Sprintf("r.status <> $%d", argNum))
			args = append(args, *pre.NotStatus)
			argNum++
		}
		if pre.MinBalance != nil {
			conds = append(conds, fmt.Sprintf("r.current_balance >= $%d", argNum))
			args = append(args, *pre.MinBalance)
			argNum++
		}

		query := fmt.Sprintf(`
			UPDATE retainer_accounts r
			SET %s
			FROM (SELECT id, current_balance FROM retainer_accounts WHERE id = $1 FOR UPDATE) prev
			WHERE %s
			RETURNING %s, prev.current_balance`,
			strings.Join(sets, ", "),
			strings.Join(conds, " AND "),
			accountColumnsQualified,
		)

		var prev decimal.Decimal
		acct := &models.RetainerAccount{}
		err := r.scanInto(tx.QueryRow(ctx, query, args...), acct, &prev)
		if err == pgx.ErrNoRows {
			// Account missing or predicate failed; the caller re-reads
			// and classifies.
			return outcome{applied: false}, nil
		}
		if err != nil {
			return outcome{}, fmt.Errorf("conditional update: %w", err)
		}

		if entry != nil {
			entryQuery := `
				INSERT INTO retainer_entries (account_id, seq, kind, amount, payment_id, invoice_id, description, balance_after)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
			if _, err := tx.Exec(ctx, entryQuery,
				acct.ID,
				acct.EntrySeq,
				entry.Kind,
				entry.Amount,
				entry.PaymentID,
				entry.InvoiceID,
				entry.Description,
				acct.CurrentBalance,
			); err != nil {
				return outcome{}, fmt.Errorf("append ledger entry: %w", err)
			}
		}

		if err := r.loadEntries(ctx, tx, acct); err != nil {
			return outcome{}, err
		}

		return outcome{
			result:  &retainer.ApplyResult{Account: acct, PreviousBalance: prev},
			applied: true,
		}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return out.result, out.applied, nil
}

// List retrieves a lawyer's accounts with filters plus per-status totals.
// Entries are not loaded on list reads.
func (r *RetainerRepository) List(ctx context.Context, lawyerID uuid.UUID, filter models.RetainerFilter) ([]*models.RetainerAccount, []models.StatusTotals, error) {
	conds := []string{"lawyer_id = $1"}
	args := []any{lawyerID}
	argNum := 2

	if filter.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.Type != nil {
		conds = append(conds, fmt.Sprintf("retainer_type = $%d", argNum))
		args = append(args, *filter.Type)
		argNum++
	}
	if filter.ClientID != nil {
		conds = append(conds, fmt.Sprintf("client_id = $%d", argNum))
		args = append(args, *filter.ClientID)
		argNum++
	}
	if filter.CaseID != nil {
		conds = append(conds, fmt.Sprintf("case_id = $%d", argNum))
		args = append(args, *filter.CaseID)
		argNum++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM retainer_accounts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		accountColumns,
		strings.Join(conds, " AND "),
		argNum,
		argNum+1,
	)
	args = append(args, limit, offset)

	accounts, err := r.scanMany(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	totalsQuery := `
		SELECT status, COUNT(*), COALESCE(SUM(current_balance), 0)
		FROM retainer_accounts
		WHERE lawyer_id = $1
		GROUP BY status
		ORDER BY status`

	rows, err := r.db.Pool().Query(ctx, totalsQuery, lawyerID)
	if err != nil {
		return nil, nil, fmt.Errorf("query status totals: %w", err)
	}
	defer rows.Close()

	var totals []models.StatusTotals
	for rows.Next() {
		var t models.StatusTotals
		if err := rows.Scan(&t.Status, &t.Count, &t.Balance); err != nil {
			return nil, nil, fmt.Errorf("scan status totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return accounts, totals, nil
}

// ListLowBalance retrieves active accounts at or below their minimum.
func (r *RetainerRepository) ListLowBalance(ctx context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM retainer_accounts
		WHERE lawyer_id = $1 AND status = $2 AND current_balance <= minimum_balance
		ORDER BY current_balance ASC`, accountColumns)

	return r.scanMany(ctx, query, lawyerID, models.RetainerStatusActive)
}

// ListNeedingReplenishment retrieves active auto-replenish accounts at or
// below their replenish threshold.
func (r *RetainerRepository) ListNeedingReplenishment(ctx context.Context, lawyerID uuid.UUID) ([]*models.RetainerAccount, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM retainer_accounts
		WHERE lawyer_id = $1 AND status = $2 AND auto_replenish
			AND replenish_threshold IS NOT NULL
			AND current_balance <= replenish_threshold
		ORDER BY current_balance ASC`, accountColumns)

	return r.scanMany(ctx, query, lawyerID, models.RetainerStatusActive)
}

func (r *RetainerRepository) scanMany(ctx context.Context, query string, args ...any) ([]*models.RetainerAccount, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query retainer accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.RetainerAccount
	for rows.Next() {
		acct, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retainer account: %w", err)
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

func (r *RetainerRepository) scan(s scanner) (*models.RetainerAccount, error) {
	acct := &models.RetainerAccount{}
	if err := r.scanInto(s, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// scanInto scans the account columns plus any trailing extras (such as the
// previous balance returned by a conditional update).
func (r *RetainerRepository) scanInto(s scanner, acct *models.RetainerAccount, extras ...any) error {
	dest := []any{
		&acct.ID,
		&acct.Number,
		&acct.ClientID,
		&acct.LawyerID,
		&acct.CaseID,
		&acct.RetainerType,
		&acct.InitialAmount,
		&acct.CurrentBalance,
		&acct.MinimumBalance,
		&acct.Status,
		&acct.AutoReplenish,
		&acct.ReplenishThreshold,
		&acct.ReplenishAmount,
		&acct.Notes,
		&acct.EntrySeq,
		&acct.CreatedBy,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	}
	dest = append(dest, extras...)
	return s.Scan(dest...)
}

// loadEntries fills the account's deposit and consumption lists in append
// order.
func (r *RetainerRepository) loadEntries(ctx context.Context, q querier, acct *models.RetainerAccount) error {
	query := `
		SELECT seq, kind, entry_date, amount, payment_id, invoice_id, description, balance_after
		FROM retainer_entries
		WHERE account_id = $1
		ORDER BY seq ASC`

	rows, err := q.Query(ctx, query, acct.ID)
	if err != nil {
		return fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	acct.Deposits = nil
	acct.Consumptions = nil
	for rows.Next() {
		var (
			seq          int64
			kind         models.EntryKind
			date         time.Time
			amount       decimal.Decimal
			paymentID    *uuid.UUID
			invoiceID    *uuid.UUID
			description  string
			balanceAfter decimal.Decimal
		)
		if err := rows.Scan(&seq, &kind, &date, &amount, &paymentID, &invoiceID, &description, &balanceAfter); err != nil {
			return fmt.Errorf("scan ledger entry: %w", err)
		}

		switch kind {
		case models.EntryKindDeposit:
			acct.Deposits = append(acct.Deposits, models.DepositEntry{
				Seq:          seq,
				Date:         date,
				Amount:       amount,
				PaymentID:    paymentID,
				BalanceAfter: balanceAfter,
			})
		case models.EntryKindConsumption:
			acct.Consumptions = append(acct.Consumptions, models.ConsumptionEntry{
				Seq:          seq,
				Date:         date,
				Amount:       amount,
				InvoiceID:    invoiceID,
				Description:  description,
				BalanceAfter: balanceAfter,
			})
		}
	}

	return rows.Err()
}
