package repository

import (
	"context"
	"database/sql"
)

type txContextKey struct{}

// TxManager runs a function within one database transaction. The
// transaction rides in the context, so repositories pick it up
// transparently through conn; nested InTx calls join the outer
// transaction. The webhook pipeline relies on this to commit the
// idempotency-ledger claim and the dependent state mutations as a
// single unit.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// conn returns the context's transaction when present, the plain
// connection otherwise.
func conn(ctx context.Context, db DBTX) DBTX {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}
