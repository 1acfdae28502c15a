package ports

import "context"

// Tx is an opaque transaction handle; infrastructure picks the concrete type.
type Tx interface{}

// UnitOfWork runs fn atomically. A returned error rolls back every write made
// through the ctx handed to fn. Calls nested inside fn join the outer unit.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) Tx {
	return ctx.Value(txKey{})
}

// InTx reports whether ctx already carries a transaction.
func InTx(ctx context.Context) bool {
	return TxFromContext(ctx) != nil
}
