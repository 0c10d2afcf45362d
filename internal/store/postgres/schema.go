package postgres

import (
	"context"
	"fmt"
)

// Migrations are idempotent and applied in order inside one transaction.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS cash_sessions (
			id               UUID PRIMARY KEY,
			cashier_id       BIGINT NOT NULL CHECK (cashier_id > 0),
			outlet_id        BIGINT NOT NULL CHECK (outlet_id > 0),
			status           TEXT NOT NULL CHECK (status IN ('OPEN', 'CLOSED')),
			opening_balance  NUMERIC(18,4) NOT NULL CHECK (opening_balance >= 0),
			closing_balance  NUMERIC(18,4),
			expected_balance NUMERIC(18,4),
			variance         NUMERIC(18,4),
			opening_time     TIMESTAMPTZ NOT NULL,
			closing_time     TIMESTAMPTZ,
			notes            TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS cash_sessions_one_open_idx
			ON cash_sessions (cashier_id, outlet_id) WHERE status = 'OPEN'`,
		`CREATE TABLE IF NOT EXISTS cash_transactions (
			seq              BIGSERIAL PRIMARY KEY,
			id               UUID NOT NULL UNIQUE,
			session_id       UUID NOT NULL REFERENCES cash_sessions (id),
			outlet_id        BIGINT NOT NULL,
			transaction_type TEXT NOT NULL,
			amount           NUMERIC(18,4) NOT NULL CHECK (amount >= 0),
			amount_in        NUMERIC(18,4) CHECK (amount_in >= 0),
			amount_out       NUMERIC(18,4) CHECK (amount_out >= 0),
			payment_method   TEXT NOT NULL DEFAULT '',
			description      TEXT NOT NULL DEFAULT '',
			reference_number TEXT NOT NULL DEFAULT '',
			transaction_date TIMESTAMPTZ NOT NULL,
			created_by       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS cash_transactions_session_idx ON cash_transactions (session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS cash_transactions_outlet_date_idx ON cash_transactions (outlet_id, transaction_date)`,
		`CREATE OR REPLACE FUNCTION cash_transactions_append_only() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'cash_transactions is append-only';
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS cash_transactions_append_only_trg ON cash_transactions`,
		`CREATE TRIGGER cash_transactions_append_only_trg
			BEFORE UPDATE OR DELETE ON cash_transactions
			FOR EACH ROW EXECUTE FUNCTION cash_transactions_append_only()`,
		`CREATE TABLE IF NOT EXISTS outlet_settings (
			outlet_id       BIGINT PRIMARY KEY,
			currency_code   TEXT NOT NULL,
			currency_symbol TEXT NOT NULL DEFAULT '',
			minor_units     SMALLINT NOT NULL DEFAULT 2 CHECK (minor_units >= 0),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL,
			cashier_id BIGINT NOT NULL DEFAULT 0,
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range Migrations() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
