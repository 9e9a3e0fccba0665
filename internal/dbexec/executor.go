// Package dbexec is the read path shared by introspection and the SQL table
// store. Everything above it sees Rows, never a *sql.DB.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the subset of *sql.Rows the readers use.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs read statements.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// StandardExecutor adapts a Querier to QueryExecutor.
type StandardExecutor struct {
	q Querier
}

// NewStandardExecutor wraps q. A nil q fails every query with sql.ErrConnDone.
func NewStandardExecutor(q Querier) *StandardExecutor {
	return &StandardExecutor{q: q}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.q == nil {
		return nil, sql.ErrConnDone
	}
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
