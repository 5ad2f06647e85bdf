package storage

import (
	"context"

	"github.com/uptrace/bun"
)

type txKey struct{}

// WithTransaction runs fn inside a write transaction. If ctx already carries
// an active transaction (because an outer WithTransaction call is still in
// progress), fn reuses it instead of opening a nested one — this is the Go
// equivalent of the execution-context-local transaction reuse described in
// §9: any repository method nested inside a transaction block automatically
// participates in the same connection.
func WithTransaction(ctx context.Context, db *bun.DB, fn func(ctx context.Context, tx bun.IDB) error) error {
	if tx, ok := ctx.Value(txKey{}).(bun.IDB); ok {
		return fn(ctx, tx)
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		innerCtx := context.WithValue(ctx, txKey{}, bun.IDB(tx))
		return fn(innerCtx, tx)
	})
}

// IDB resolves whichever connection is active on ctx — the pinned
// transaction if one is in progress, otherwise the root *bun.DB handle.
// Repository methods call this so they work transparently inside or
// outside a transaction.
func IDB(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.IDB); ok {
		return tx
	}
	return db
}
