// Package transaction runs each controller operation inside one database
// transaction. The transaction travels on the context handed to the
// operation, so identifier resolution and rendering of embedded records read
// through the same *sql.Tx and see the operation's uncommitted writes. A
// failed resolution rolls the whole write back.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	stateOpen int32 = iota
	stateCommitted
	stateRolledBack
)

// Transaction is the transaction of one controller operation
type Transaction struct {
	tx    *sql.Tx
	ctx   context.Context
	state atomic.Int32
}

// Manager opens operation transactions on a connection pool
type Manager struct {
	db *sql.DB
}

// NewManager creates a manager over db
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// DB returns the connection pool
func (m *Manager) DB() *sql.DB {
	return m.db
}

func (m *Manager) begin(ctx context.Context) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx, ctx: ctx}, nil
}

// WithTransaction runs fn with a context carrying the operation's
// transaction. fn's error, or a panic, rolls everything back; otherwise the
// transaction commits. Called from inside a running operation it reuses that
// operation's transaction and leaves the outcome to it.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if outer, ok := FromContext(ctx); ok && outer.Active() {
		return fn(ctx, outer.tx)
	}

	t, err := m.begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			t.Rollback()
			panic(p)
		}
	}()

	if err := fn(WithContext(t.ctx, t), t.tx); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return t.Commit()
}

// Active reports whether the operation is still running
func (t *Transaction) Active() bool {
	return t.state.Load() == stateOpen
}

// Commit makes the operation's writes visible
func (t *Transaction) Commit() error {
	switch t.state.Load() {
	case stateCommitted:
		return errors.New("transaction already committed")
	case stateRolledBack:
		return errors.New("transaction already rolled back")
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.state.Store(stateCommitted)
	return nil
}

// Rollback discards the operation's writes. Rolling back twice is a no-op.
func (t *Transaction) Rollback() error {
	switch t.state.Load() {
	case stateCommitted:
		return errors.New("transaction already committed")
	case stateRolledBack:
		return nil
	}
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	t.state.Store(stateRolledBack)
	return nil
}
