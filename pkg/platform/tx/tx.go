// Package tx carries a *sql.Tx through context so stores participating in the
// same unit of work share it. Side effects that must only happen once the
// work is durable are registered with AfterCommit.
package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

type unitKey struct{}

type unit struct {
	mu    sync.Mutex
	after []func(context.Context)
}

// AfterCommit defers fn until the unit of work in ctx commits. Hooks of a
// unit that fails or rolls back never run. Outside a unit of work fn runs
// immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if u, ok := ctx.Value(unitKey{}).(*unit); ok {
		u.mu.Lock()
		u.after = append(u.after, fn)
		u.mu.Unlock()
		return
	}
	fn(ctx)
}

// Begin opens hook collection for a unit of work and returns the context to
// run it with plus a commit callback that fires the collected hooks in
// registration order. Runners call commit only after the work is durable.
// Inside an enclosing unit, commit is a no-op and the enclosing unit decides.
func Begin(ctx context.Context) (context.Context, func()) {
	if _, ok := ctx.Value(unitKey{}).(*unit); ok {
		return ctx, func() {}
	}
	u := &unit{}
	base := context.WithoutCancel(ctx)
	return context.WithValue(ctx, unitKey{}, u), func() {
		u.mu.Lock()
		hooks := u.after
		u.after = nil
		u.mu.Unlock()
		for _, fn := range hooks {
			fn(base)
		}
	}
}

// Run executes fn inside a transaction. An enclosing transaction already in
// ctx is reused; otherwise a new one is started and committed when fn
// returns nil.
func Run(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	ctx, committed := Begin(ctx)
	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed()
	return nil
}

// Runner runs fn as one unit of work.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs units of work in a database transaction.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return Run(ctx, r.db, fn)
}

// NoopRunner calls fn directly. Used with in-memory stores, whose single
// writes are already atomic.
type NoopRunner struct{}

func (NoopRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, committed := Begin(ctx)
	if err := fn(ctx); err != nil {
		return err
	}
	committed()
	return nil
}
