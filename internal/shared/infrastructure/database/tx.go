package database

import (
	"context"
	"errors"
)

type txKey struct{}

// txScope is the transaction bound to a context. Only the scope that began
// the transaction commits or rolls it back.
type txScope struct {
	tx    Transaction
	owner bool
}

func scopeFrom(ctx context.Context) (txScope, bool) {
	scope, ok := ctx.Value(txKey{}).(txScope)
	return scope, ok && scope.tx != nil
}

// TxFromContext returns the transaction bound to ctx, or nil.
func TxFromContext(ctx context.Context) Transaction {
	if scope, ok := scopeFrom(ctx); ok {
		return scope.tx
	}
	return nil
}

// ExecutorFromContext returns the bound transaction or, outside one, conn.
// Repositories call it on every query so they join the caller's unit of
// work without knowing about it.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}

var errNoTx = errors.New("no transaction in context")

// UnitOfWork implements application.UnitOfWork on a Connection. A nested
// Begin joins the outer transaction; its Commit and Rollback are no-ops.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a unit of work on conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin binds a transaction to the returned context.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if scope, ok := scopeFrom(ctx); ok {
		return context.WithValue(ctx, txKey{}, txScope{tx: scope.tx}), nil
	}
	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, txKey{}, txScope{tx: tx, owner: true}), nil
}

// Commit commits when ctx owns the transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	scope, ok := scopeFrom(ctx)
	if !ok {
		return errNoTx
	}
	if !scope.owner {
		return nil
	}
	return scope.tx.Commit(ctx)
}

// Rollback rolls back when ctx owns the transaction.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	scope, ok := scopeFrom(ctx)
	if !ok {
		return errNoTx
	}
	if !scope.owner {
		return nil
	}
	return scope.tx.Rollback(ctx)
}
