// Package store defines the read-only table backend that the schema compiler
// introspects and the resolvers fetch pages from.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupported is returned when a request asks the backend for something the
// table cannot do, such as searching a table without a full-text index.
var ErrUnsupported = errors.New("unsupported by table")

// TableStore is the backend collaborator. Implementations must be safe for
// concurrent use; every call is a read.
type TableStore interface {
	// ListTables returns metadata for every table and view in the database.
	ListTables(ctx context.Context, database string) ([]TableMeta, error)
	// FetchPage returns up to req.PageSize rows in key order after req.After.
	FetchPage(ctx context.Context, req FetchRequest) (PageResult, error)
	// FetchByKey returns the row of table whose columns equal key, or nil.
	FetchByKey(ctx context.Context, table TableMeta, key map[string]any) (Row, error)
}

// Row maps raw column names to values. Values are nil, int64, float64,
// string or []byte.
type Row map[string]any

// PageResult is one backend fetch.
type PageResult struct {
	Rows []Row
	// TotalCount is set only when FetchRequest.IncludeTotal was requested.
	TotalCount *int
	HasMore    bool
}

// Sort orders a page by one column. The table key is always appended as an
// ascending tie-break.
type Sort struct {
	Column string
	Desc   bool
}

// Filter is one column predicate.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// FetchRequest describes a single page read. Table is the compiled metadata,
// including configured JSON and search overrides, and is authoritative for
// the backend.
type FetchRequest struct {
	Table   TableMeta
	Filters []Filter
	// Where is a raw boolean expression in the backend's dialect.
	Where  string
	Search string
	Sort   *Sort
	// After holds the seek values: the sort column value first when Sort is
	// set, then one value per key column.
	After        []any
	PageSize     int
	IncludeTotal bool
}

// Signature renders the request the way it is reported in budget errors,
// for example /test/repos.json?_size=10&owner=2.
func (r FetchRequest) Signature() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "/%s/%s.json?_size=%d", r.Table.Database, r.Table.Name, r.PageSize)
	if r.Search != "" {
		sb.WriteString("&_search=" + url.QueryEscape(r.Search))
	}
	if r.Where != "" {
		sb.WriteString("&_where=" + url.QueryEscape(r.Where))
	}
	if r.Sort != nil {
		if r.Sort.Desc {
			sb.WriteString("&_sort_desc=" + url.QueryEscape(r.Sort.Column))
		} else {
			sb.WriteString("&_sort=" + url.QueryEscape(r.Sort.Column))
		}
	}
	for _, f := range r.Filters {
		key := f.Column
		if f.Op != OpEq {
			key += "__" + string(f.Op)
		}
		sb.WriteString("&" + url.QueryEscape(key) + "=" + url.QueryEscape(formatValue(f.Value)))
	}
	if len(r.After) > 0 {
		parts := make([]string, len(r.After))
		for i, v := range r.After {
			parts[i] = formatValue(v)
		}
		sb.WriteString("&_next=" + url.QueryEscape(strings.Join(parts, ",")))
	}
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}
