package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxStarter begins transactions. *pgxpool.Pool satisfies it.
type TxStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostingTxOptions is used by document posting. Rows locked with
// SELECT ... FOR UPDATE are re-read after the holder commits, which
// REPEATABLE READ would turn into a serialization failure instead.
var PostingTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

// WithTx runs fn inside one transaction. Any error from fn rolls back and is
// returned as is; begin and commit failures are wrapped.
func WithTx(ctx context.Context, db TxStarter, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	var fnErr error
	err := pgx.BeginTxFunc(ctx, db, opts, func(tx pgx.Tx) error {
		fnErr = fn(tx)
		return fnErr
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil:
		return fnErr
	default:
		return fmt.Errorf("platform/db: tx: %w", err)
	}
}
