package resolver

import (
	"errors"
	"fmt"

	"tablegraph/internal/cursor"
	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

var errSortConflict = errors.New("sort and sort_desc cannot be used together")

// pageQuery is a parsed set of collection arguments.
type pageQuery struct {
	filters  []store.Filter
	where    string
	search   string
	sort     *store.Sort
	pageSize int
	after    string
}

func (r *Resolver) parsePageQuery(ts *typegen.TypeSet, args map[string]interface{}) (pageQuery, error) {
	q := pageQuery{pageSize: r.opts.DefaultPageSize}

	filters, err := parseFilters(ts, args["filter"])
	if err != nil {
		return q, err
	}
	q.filters = filters
	q.where, _ = args["where"].(string)
	q.search, _ = args["search"].(string)
	q.after, _ = args["after"].(string)

	if first, ok := args["first"].(int); ok {
		if first < 0 {
			return q, fmt.Errorf("first must be non-negative, got %d", first)
		}
		if first > r.opts.MaxPageSize {
			return q, fmt.Errorf("first must be at most %d, got %d", r.opts.MaxPageSize, first)
		}
		q.pageSize = first
	}

	asc, hasAsc := args["sort"].(string)
	desc, hasDesc := args[ts.SortDescArg].(string)
	switch {
	case hasAsc && hasDesc:
		return q, errSortConflict
	case hasAsc:
		q.sort = &store.Sort{Column: asc}
	case hasDesc:
		q.sort = &store.Sort{Column: desc, Desc: true}
	}
	return q, nil
}

// parseFilters flattens the filter list into column predicates. Columns and
// operators are visited in schema order so equal arguments always produce the
// same predicate list, which keeps cursor signatures stable.
func parseFilters(ts *typegen.TypeSet, raw interface{}) ([]store.Filter, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}
	var filters []store.Filter
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for _, ff := range ts.FilterFields {
			ops, ok := obj[ff.Name].(map[string]interface{})
			if !ok {
				continue
			}
			for _, op := range store.OpsForKind(ff.Kind) {
				v, present := ops[string(op)]
				if !present || v == nil {
					continue
				}
				value, err := normalizeOperand(op, v)
				if err != nil {
					return nil, fmt.Errorf("filter %s.%s: %w", ff.Name, op, err)
				}
				filters = append(filters, store.Filter{Column: ff.Column, Op: op, Value: value})
			}
		}
	}
	return filters, nil
}

func normalizeOperand(op store.Op, v interface{}) (any, error) {
	if op == store.OpIsNull {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	}
	if op.IsList() {
		items, ok := v.([]interface{})
		if !ok {
			items = []interface{}{v}
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			if item == nil {
				continue
			}
			out = append(out, normalizeScalar(item))
		}
		return out, nil
	}
	return normalizeScalar(v), nil
}

func normalizeScalar(v interface{}) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

// seekSignature identifies the ordering and row set a cursor belongs to.
func seekSignature(ts *typegen.TypeSet, q pageQuery) string {
	sig := cursor.Signature{
		Table:      ts.Key,
		KeyColumns: ts.Table.KeyColumns(),
		Args: map[string]any{
			"filters": q.filters,
			"where":   q.where,
			"search":  q.search,
		},
	}
	if q.sort != nil {
		sig.SortColumn = q.sort.Column
		sig.Desc = q.sort.Desc
	}
	return sig.String()
}

// seekValues returns the values identifying row's position in the ordering.
func seekValues(ts *typegen.TypeSet, sort *store.Sort, row store.Row) []any {
	keys := ts.Table.KeyColumns()
	values := make([]any, 0, len(keys)+1)
	if sort != nil {
		values = append(values, row[sort.Column])
	}
	for _, k := range keys {
		values = append(values, row[k])
	}
	return values
}

// decodeAfter resolves the after argument into seek values.
func decodeAfter(ts *typegen.TypeSet, q pageQuery, signature string) ([]any, error) {
	if q.after == "" {
		return nil, nil
	}
	c, err := cursor.Decode(q.after, signature)
	if err != nil {
		return nil, err
	}
	want := len(ts.Table.KeyColumns())
	if q.sort != nil {
		want++
	}
	if len(c.Values) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", cursor.ErrInvalidCursor, want, len(c.Values))
	}
	return c.Values, nil
}
