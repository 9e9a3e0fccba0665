package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tablegraph/internal/costguard"
	"tablegraph/internal/observability"
	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

// fetchFunc performs one backend read and reports how many rows it returned.
type fetchFunc func(ctx context.Context) (value interface{}, rows int, err error)

type fetchOutcome struct {
	value interface{}
	rows  int
	err   error
}

// async claims a fetch from the request's budget and runs fn in its own
// goroutine. The claim happens synchronously, in resolver order, so budget
// breaches are attributed to the same field on every run. The returned thunk
// is completed by graphql-go once sibling fields have been scheduled.
func (r *Resolver) async(ctx context.Context, signature, spanName string, ts *typegen.TypeSet, fn fetchFunc) (interface{}, error) {
	guard := costguard.FromContext(ctx)
	metrics := observability.GraphQLMetricsFromContext(ctx)
	if err := guard.Acquire(signature); err != nil {
		var limitErr *costguard.LimitError
		if errors.As(err, &limitErr) {
			metrics.RecordBudgetExceeded(ctx, string(limitErr.Kind))
		}
		return nil, err
	}

	done := make(chan fetchOutcome, 1)
	go func() {
		done <- runFetch(ctx, metrics, signature, spanName, ts, fn)
	}()

	return func() (interface{}, error) {
		out := <-done
		return out.value, out.err
	}, nil
}

// runFetch runs an admitted fetch to completion. The budget was checked when
// it was claimed, so its result stands even if the deadline passes meanwhile.
func runFetch(ctx context.Context, metrics *observability.GraphQLMetrics, signature, spanName string, ts *typegen.TypeSet, fn fetchFunc) (out fetchOutcome) {
	fetchCtx, span := startFetchSpan(ctx, spanName, ts, signature)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			out = fetchOutcome{err: fmt.Errorf("fetch %s failed: %v", signature, rec)}
		}
		endFetchSpan(span, out.rows, out.err)
		metrics.RecordFetch(ctx, ts.Table.Name, time.Since(start), out.rows, out.err)
	}()

	value, rows, err := fn(fetchCtx)
	return fetchOutcome{value: value, rows: rows, err: err}
}

// fetchCollection issues one page read for q and shapes it into a collection.
func (r *Resolver) fetchCollection(ctx context.Context, ts *typegen.TypeSet, q pageQuery, includeTotal bool) (interface{}, error) {
	signature := seekSignature(ts, q)
	after, err := decodeAfter(ts, q, signature)
	if err != nil {
		return nil, err
	}
	req := q.request(ts, after)
	req.IncludeTotal = includeTotal

	return r.async(ctx, req.Signature(), "resolver.fetch_page", ts, func(ctx context.Context) (interface{}, int, error) {
		page, err := r.store.FetchPage(ctx, req)
		if err != nil {
			return nil, 0, err
		}
		res, err := newCollectionResult(ts, q.sort, signature, page)
		if err != nil {
			return nil, 0, err
		}
		return res, len(page.Rows), nil
	})
}

// fetchFirst issues a one-row page read and returns the row or nil.
func (r *Resolver) fetchFirst(ctx context.Context, ts *typegen.TypeSet, q pageQuery) (interface{}, error) {
	signature := seekSignature(ts, q)
	after, err := decodeAfter(ts, q, signature)
	if err != nil {
		return nil, err
	}
	q.pageSize = 1
	req := q.request(ts, after)

	return r.async(ctx, req.Signature(), "resolver.fetch_page", ts, func(ctx context.Context) (interface{}, int, error) {
		page, err := r.store.FetchPage(ctx, req)
		if err != nil {
			return nil, 0, err
		}
		if len(page.Rows) == 0 {
			return nil, 0, nil
		}
		return page.Rows[0], 1, nil
	})
}

// fetchByKey looks a row up by its full key.
func (r *Resolver) fetchByKey(ctx context.Context, ts *typegen.TypeSet, key map[string]any) (interface{}, error) {
	req := store.FetchRequest{Table: ts.Table, PageSize: 1}
	for _, col := range ts.Table.KeyColumns() {
		req.Filters = append(req.Filters, store.Filter{Column: col, Op: store.OpEq, Value: key[col]})
	}

	return r.async(ctx, req.Signature(), "resolver.fetch_by_key", ts, func(ctx context.Context) (interface{}, int, error) {
		row, err := r.store.FetchByKey(ctx, ts.Table, key)
		if err != nil {
			return nil, 0, err
		}
		if row == nil {
			return nil, 0, nil
		}
		return row, 1, nil
	})
}

func (q pageQuery) request(ts *typegen.TypeSet, after []any) store.FetchRequest {
	return store.FetchRequest{
		Table:    ts.Table,
		Filters:  q.filters,
		Where:    q.where,
		Search:   q.search,
		Sort:     q.sort,
		After:    after,
		PageSize: q.pageSize,
	}
}

// isFullKey reports whether key names exactly the table's key columns.
func isFullKey(ts *typegen.TypeSet, key map[string]any) bool {
	cols := ts.Table.KeyColumns()
	if len(key) == 0 || len(key) != len(cols) {
		return false
	}
	for _, col := range cols {
		if _, ok := key[col]; !ok {
			return false
		}
	}
	return true
}
