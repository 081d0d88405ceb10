package database

import (
	"context"
	"database/sql"
)

// Row abstracts pgx.Row and *sql.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows abstracts pgx.Rows and *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Result reports the outcome of an Exec.
type Result interface {
	RowsAffected() (int64, error)
}

// Executor runs statements regardless of the underlying driver.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Transaction is an Executor that can be committed or rolled back.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is a pooled handle that can start transactions.
type Connection interface {
	Executor
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
	Ping(ctx context.Context) error
	Driver() Driver
}

type sqlRows struct{ rows *sql.Rows }

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Close() error           { return r.rows.Close() }
func (r *sqlRows) Err() error             { return r.rows.Err() }

// WrapSQLRows adapts *sql.Rows to Rows.
func WrapSQLRows(r *sql.Rows) Rows { return &sqlRows{rows: r} }

// Runner executes '?'-style queries against whichever executor the context
// carries, rebinding placeholders for the connection's driver. Repositories
// hold a Runner so they join an ambient unit of work transparently.
type Runner struct {
	conn Connection
}

// NewRunner creates a Runner over conn.
func NewRunner(conn Connection) Runner {
	return Runner{conn: conn}
}

// Driver returns the backend of the wrapped connection.
func (r Runner) Driver() Driver { return r.conn.Driver() }

func (r Runner) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return ExecutorFromContext(ctx, r.conn).Exec(ctx, Rebind(r.conn.Driver(), query), args...)
}

func (r Runner) QueryRow(ctx context.Context, query string, args ...any) Row {
	return ExecutorFromContext(ctx, r.conn).QueryRow(ctx, Rebind(r.conn.Driver(), query), args...)
}

func (r Runner) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return ExecutorFromContext(ctx, r.conn).Query(ctx, Rebind(r.conn.Driver(), query), args...)
}
