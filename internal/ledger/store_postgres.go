package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// Schema creates the accounts table. Applied by EnsureSchema at startup and
// by integration tests against throwaway databases.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_accounts (
	account_id TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
`

// PostgresStore persists balances in PostgreSQL. Transfers run in one SQL
// transaction so the debit and credit commit together or not at all.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies the ledger schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Balance(ctx context.Context, account AccountID) (int64, error) {
	var balance int64
	err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT balance FROM ledger_accounts WHERE account_id = $1`, string(account),
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) Credit(ctx context.Context, account AccountID, amount int64) error {
	_, err := s.querier(ctx).ExecContext(ctx, `
		INSERT INTO ledger_accounts (account_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance
	`, string(account), amount)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	return nil
}

// Transfer joins the context's transaction when one is present, so callers
// can commit the fund movement together with their own state change. Without
// one it opens its own transaction.
func (s *PostgresStore) Transfer(ctx context.Context, from, to AccountID, amount int64) error {
	if dbTx, ok := txcontext.From(ctx); ok {
		return transferIn(ctx, dbTx, from, to, amount)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer dbTx.Rollback()

	if err := transferIn(ctx, dbTx, from, to, amount); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

func transferIn(ctx context.Context, dbTx *sql.Tx, from, to AccountID, amount int64) error {
	res, err := dbTx.ExecContext(ctx, `
		UPDATE ledger_accounts SET balance = balance - $1
		WHERE account_id = $2 AND balance >= $1
	`, amount, string(from))
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	if affected == 0 {
		// Missing account and underfunded account are the same fact here:
		// the treasury cannot cover the amount.
		return sentinel.ErrInsufficientFunds
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO ledger_accounts (account_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance
	`, string(to), amount)
	if err != nil {
		return fmt.Errorf("credit recipient: %w", err)
	}
	return nil
}
