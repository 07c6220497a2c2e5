package db

import (
	"context"
	"database/sql"
)

// Executor is the query surface shared by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// WithTx stores a transaction in ctx so repositories joined to the same unit of
// work use it instead of the pool.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom extracts the transaction stored by WithTx.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// ExecutorFrom returns the transaction in ctx, falling back to database.
func ExecutorFrom(ctx context.Context, database *sql.DB) Executor {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return database
}

// InTx runs fn inside a transaction carried by ctx. It commits when fn returns
// nil and rolls back otherwise.
func InTx(ctx context.Context, database *sql.DB, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(WithTx(ctx, tx), tx); err != nil {
		return err
	}
	return tx.Commit()
}
