package db

import (
	"context"
	"fmt"
)

// Bootstrap creates the schema if it does not exist. The check constraint on
// current_balance is a backstop; the store's conditional updates are what
// keep the balance non-negative under contention.
var bootstrapStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS retainer_number_seq`,

	`CREATE TABLE IF NOT EXISTS retainer_accounts (
		id                  UUID PRIMARY KEY,
		number              TEXT NOT NULL UNIQUE,
		client_id           UUID NOT NULL,
		lawyer_id           UUID NOT NULL,
		case_id             UUID,
		retainer_type       TEXT NOT NULL,
		initial_amount      NUMERIC(18,2) NOT NULL,
		current_balance     NUMERIC(18,2) NOT NULL CHECK (current_balance >= 0),
		minimum_balance     NUMERIC(18,2) NOT NULL DEFAULT 0,
		status              TEXT NOT NULL DEFAULT 'active',
		auto_replenish      BOOLEAN NOT NULL DEFAULT FALSE,
		replenish_threshold NUMERIC(18,2),
		replenish_amount    NUMERIC(18,2),
		notes               TEXT NOT NULL DEFAULT '',
		entry_seq           BIGINT NOT NULL DEFAULT 0,
		created_by          UUID NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_retainer_accounts_lawyer
		ON retainer_accounts (lawyer_id, status)`,

	`CREATE INDEX IF NOT EXISTS idx_retainer_accounts_client
		ON retainer_accounts (client_id)`,

	`CREATE TABLE IF NOT EXISTS retainer_entries (
		id            BIGSERIAL PRIMARY KEY,
		account_id    UUID NOT NULL REFERENCES retainer_accounts (id),
		seq           BIGINT NOT NULL,
		kind          TEXT NOT NULL,
		entry_date    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		amount        NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		payment_id    UUID,
		invoice_id    UUID,
		description   TEXT NOT NULL DEFAULT '',
		balance_after NUMERIC(18,2) NOT NULL,
		UNIQUE (account_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS billing_activity (
		id             BIGSERIAL PRIMARY KEY,
		account_id     UUID NOT NULL,
		lawyer_id      UUID NOT NULL,
		action         TEXT NOT NULL,
		amount         NUMERIC(18,2) NOT NULL,
		balance_before NUMERIC(18,2) NOT NULL,
		balance_after  NUMERIC(18,2) NOT NULL,
		reference_id   UUID,
		description    TEXT NOT NULL DEFAULT '',
		occurred_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Collaborator tables. Owned by the surrounding billing service; created
	// here so the lookups work on a fresh database.
	`CREATE TABLE IF NOT EXISTS payments (
		id         UUID PRIMARY KEY,
		lawyer_id  UUID NOT NULL,
		amount     NUMERIC(18,2) NOT NULL,
		status     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS cases (
		id         UUID PRIMARY KEY,
		lawyer_id  UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Bootstrap applies the schema statements in order.
func (db *DB) Bootstrap(ctx context.Context) error {
	for _, stmt := range bootstrapStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
