package transaction

import (
	"context"
	"database/sql"
)

type contextKey struct{}

// FromContext returns the operation transaction carried by ctx
func FromContext(ctx context.Context) (*Transaction, bool) {
	t, ok := ctx.Value(contextKey{}).(*Transaction)
	return t, ok
}

// WithContext returns ctx carrying t
func WithContext(ctx context.Context, t *Transaction) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// TxFromContext returns the *sql.Tx of the running operation on ctx
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	t, ok := FromContext(ctx)
	if !ok || !t.Active() {
		return nil, false
	}
	return t.tx, true
}
