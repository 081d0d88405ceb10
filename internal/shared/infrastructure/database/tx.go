package database

import (
	"context"
	"errors"
)

type txKey struct{}

type txInfo struct {
	tx    Transaction
	owned bool
}

// WithTx stores a transaction in the context. owned marks the unit of work
// that started it and is therefore responsible for ending it.
func WithTx(ctx context.Context, tx Transaction, owned bool) context.Context {
	return context.WithValue(ctx, txKey{}, txInfo{tx: tx, owned: owned})
}

// TxFromContext returns the ambient transaction, or nil.
func TxFromContext(ctx context.Context) Transaction {
	if info, ok := ctx.Value(txKey{}).(txInfo); ok {
		return info.tx
	}
	return nil
}

// ExecutorFromContext returns the ambient transaction when present,
// otherwise the connection.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}

// UnitOfWork implements application.UnitOfWork over a Connection. Nested
// Begin calls join the outer transaction.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a UnitOfWork.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin starts a transaction unless one is already in ctx.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return WithTx(ctx, tx, false), nil
	}
	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return WithTx(ctx, tx, true), nil
}

// Commit commits the transaction if this unit started it.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	info, ok := ctx.Value(txKey{}).(txInfo)
	if !ok {
		return errors.New("no transaction in context")
	}
	if !info.owned {
		return nil
	}
	return info.tx.Commit(ctx)
}

// Rollback rolls back the transaction if this unit started it.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	info, ok := ctx.Value(txKey{}).(txInfo)
	if !ok {
		return errors.New("no transaction in context")
	}
	if !info.owned {
		return nil
	}
	return info.tx.Rollback(ctx)
}
