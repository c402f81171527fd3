// Package tx threads a SQL transaction through context so stores participating
// in one unit of work share it without changing their signatures.
package tx

import (
	"context"
	"database/sql"
	"fmt"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in the context for downstream stores.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts the SQL transaction from the context, if one is present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes a unit of work. A SQL-backed runner makes every store call
// inside fn share one transaction, committed only when fn returns nil.
type Runner interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

// SQLRunner runs units of work inside a database transaction, threading it
// to the participating stores through the context.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) InTx(ctx context.Context, fn func(context.Context) error) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, dbTx)); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Passthrough runs units of work directly. It backs in-memory stores, whose
// individual operations are already atomic; callers that need multi-store
// atomicity must order their writes so a failure leaves no funds moved.
type Passthrough struct{}

func (Passthrough) InTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
