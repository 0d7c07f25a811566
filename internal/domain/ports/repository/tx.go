package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories accept nil to run on the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction.
// fn returning an error rolls everything back; otherwise the transaction commits.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		recs, err := payments.LockByIntent(ctx, tx, intentID)
//		...
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
