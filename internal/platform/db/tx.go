package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner opens transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes a function within a transaction using the ReadCommitted isolation level.
// The transaction is rolled back when fn fails or the commit does not happen.
func WithTx(ctx context.Context, beginner Beginner, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, beginner, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithTxOptions is WithTx with explicit transaction options.
func WithTxOptions(ctx context.Context, beginner Beginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := beginner.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
