// Package sqlstore serves tables from a MySQL or TiDB server. Each attached
// database is a schema on the same server; every statement is a read.
package sqlstore

import (
	"context"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tablegraph/internal/dbexec"
	"tablegraph/internal/introspection"
	"tablegraph/internal/sqltype"
	"tablegraph/internal/store"
)

// Store implements store.TableStore over a query executor.
type Store struct {
	db dbexec.QueryExecutor

	mu      sync.RWMutex
	sources map[string]*store.FTSMeta
}

var _ store.TableStore = (*Store)(nil)

// New creates a store reading through db.
func New(db dbexec.QueryExecutor) *Store {
	return &Store{
		db:      db,
		sources: make(map[string]*store.FTSMeta),
	}
}

// ListTables introspects database.
func (s *Store) ListTables(ctx context.Context, database string) ([]store.TableMeta, error) {
	return introspection.ListTables(ctx, s.db, database)
}

// FetchPage reads one page in sort-then-key order, fetching one extra row to
// detect further pages.
func (s *Store) FetchPage(ctx context.Context, req store.FetchRequest) (result store.PageResult, err error) {
	ctx, span := startSpan(ctx, "sqlstore.fetch_page",
		attribute.String("db.name", req.Table.Database),
		attribute.String("db.table", req.Table.Name),
		attribute.Int("page.size", req.PageSize),
	)
	defer func() {
		finishSpan(span, err)
	}()

	var search sq.Sqlizer
	if req.Search != "" {
		search, err = s.searchCondition(ctx, req)
		if err != nil {
			return store.PageResult{}, err
		}
	}
	page, count, err := buildPageQueries(req, search)
	if err != nil {
		return store.PageResult{}, err
	}

	rows, err := s.queryRows(ctx, page, selectColumns(req.Table))
	if err != nil {
		return store.PageResult{}, fmt.Errorf("fetch %s.%s: %w", req.Table.Database, req.Table.Name, err)
	}
	if len(rows) > req.PageSize {
		result.HasMore = true
		rows = rows[:req.PageSize]
	}
	result.Rows = rows

	if count != nil {
		total, err := s.queryCount(ctx, *count)
		if err != nil {
			return store.PageResult{}, fmt.Errorf("count %s.%s: %w", req.Table.Database, req.Table.Name, err)
		}
		result.TotalCount = &total
	}
	span.SetAttributes(attribute.Int("page.rows", len(result.Rows)))
	return result, nil
}

// FetchByKey returns the row whose key columns equal key, or nil.
func (s *Store) FetchByKey(ctx context.Context, table store.TableMeta, key map[string]any) (row store.Row, err error) {
	ctx, span := startSpan(ctx, "sqlstore.fetch_by_key",
		attribute.String("db.name", table.Database),
		attribute.String("db.table", table.Name),
	)
	defer func() {
		finishSpan(span, err)
	}()

	q, err := buildKeyQuery(table, key)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryRows(ctx, q, selectColumns(table))
	if err != nil {
		return nil, fmt.Errorf("fetch %s.%s by key: %w", table.Database, table.Name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *Store) queryRows(ctx context.Context, q SQLQuery, cols []scanColumn) ([]store.Row, error) {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []store.Row
	for rows.Next() {
		dest := make([]any, len(cols))
		for i, col := range cols {
			dest[i] = sqltype.ScanTarget(col.kind)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(cols))
		for i, col := range cols {
			row[col.name] = sqltype.ScannedValue(dest[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) queryCount(ctx context.Context, q SQLQuery) (int, error) {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var total int
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, rows.Err()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("tablegraph/sqlstore")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
