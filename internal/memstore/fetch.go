package memstore

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"tablegraph/internal/store"
)

// FetchPage filters, orders and seeks the table in memory. Ordering matches
// the SQL store: NULLs first ascending, last descending, ties broken by the
// key columns ascending.
func (s *Store) FetchPage(ctx context.Context, req store.FetchRequest) (store.PageResult, error) {
	s.fetches.Add(1)
	if err := s.wait(ctx); err != nil {
		return store.PageResult{}, err
	}

	matchers, err := compileFilters(req.Filters)
	if err != nil {
		return store.PageResult{}, err
	}
	var where *vm.Program
	if strings.TrimSpace(req.Where) != "" {
		where, err = expr.Compile(req.Where, expr.AsBool())
		if err != nil {
			return store.PageResult{}, fmt.Errorf("invalid where expression: %w", err)
		}
	}

	if req.Search != "" && req.Table.FTS == nil {
		return store.PageResult{}, fmt.Errorf("search on %s: %w", req.Table.Name, store.ErrUnsupported)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(req.Table)
	if err != nil {
		return store.PageResult{}, err
	}

	var searchKeys map[string]bool
	if req.Search != "" {
		searchKeys, err = s.searchKeys(t, req.Table, req.Search)
		if err != nil {
			return store.PageResult{}, err
		}
	}

	keys := req.Table.KeyColumns()
	sourceKey := req.Table.SearchSourceKey()
	var matched []store.Row
	for _, row := range t.rows {
		if !matchAll(row, matchers) {
			continue
		}
		if searchKeys != nil && !searchKeys[searchKey(row[sourceKey])] {
			continue
		}
		if where != nil {
			ok, err := expr.Run(where, map[string]any(row))
			if err != nil {
				return store.PageResult{}, fmt.Errorf("evaluate where expression: %w", err)
			}
			if b, _ := ok.(bool); !b {
				continue
			}
		}
		matched = append(matched, row)
	}

	var result store.PageResult
	if req.IncludeTotal {
		total := len(matched)
		result.TotalCount = &total
	}

	ord := ordering{sort: req.Sort, keys: keys}
	sort.SliceStable(matched, func(i, j int) bool {
		return ord.compare(ord.tuple(matched[i]), ord.tuple(matched[j])) < 0
	})

	start := 0
	if len(req.After) > 0 {
		if len(req.After) != ord.width() {
			return store.PageResult{}, fmt.Errorf("seek values: expected %d, got %d", ord.width(), len(req.After))
		}
		start = sort.Search(len(matched), func(i int) bool {
			return ord.compare(ord.tuple(matched[i]), req.After) > 0
		})
	}

	end := start + req.PageSize
	if end < len(matched) {
		result.HasMore = true
	} else {
		end = len(matched)
	}
	for _, row := range matched[start:end] {
		result.Rows = append(result.Rows, maps.Clone(row))
	}
	return result, nil
}

// searchKeys returns the key values of rows matching every search token.
// When the search index lives in another table, its key column joins back to
// the searched table's search source key.
func (s *Store) searchKeys(t *table, meta store.TableMeta, query string) (map[string]bool, error) {
	tokens := strings.Fields(strings.ToLower(query))
	source := t
	keyColumn := meta.SearchSourceKey()
	if meta.FTS.Table != "" && meta.FTS.Table != meta.Name {
		ext, ok := s.databases[meta.Database][meta.FTS.Table]
		if !ok {
			return nil, fmt.Errorf("search table %s.%s not found", meta.Database, meta.FTS.Table)
		}
		source = ext
		keyColumn = meta.FTS.Key
		if keyColumn == "" {
			keyColumn = ext.meta.KeyColumns()[0]
		}
	}

	columns := meta.FTS.Columns
	if len(columns) == 0 {
		for _, col := range source.meta.Columns {
			if col.Kind == store.KindText && col.Name != keyColumn {
				columns = append(columns, col.Name)
			}
		}
	}

	out := make(map[string]bool)
	for _, row := range source.rows {
		var sb strings.Builder
		for _, col := range columns {
			if v, ok := row[col].(string); ok {
				sb.WriteString(strings.ToLower(v))
				sb.WriteByte(' ')
			}
		}
		text := sb.String()
		all := true
		for _, token := range tokens {
			if !strings.Contains(text, token) {
				all = false
				break
			}
		}
		if all {
			out[searchKey(row[keyColumn])] = true
		}
	}
	return out, nil
}

func searchKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}

type ordering struct {
	sort *store.Sort
	keys []string
}

func (o ordering) width() int {
	if o.sort != nil {
		return len(o.keys) + 1
	}
	return len(o.keys)
}

func (o ordering) tuple(row store.Row) []any {
	out := make([]any, 0, o.width())
	if o.sort != nil {
		out = append(out, row[o.sort.Column])
	}
	for _, k := range o.keys {
		out = append(out, row[k])
	}
	return out
}

func (o ordering) compare(a, b []any) int {
	i := 0
	if o.sort != nil {
		c := compareNullable(a[0], b[0])
		if o.sort.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		i = 1
	}
	for ; i < len(a) && i < len(b); i++ {
		if c := compareNullable(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

type matcher struct {
	column string
	match  func(v any) bool
}

func matchAll(row store.Row, matchers []matcher) bool {
	for _, m := range matchers {
		if !m.match(row[m.column]) {
			return false
		}
	}
	return true
}

func compileFilters(filters []store.Filter) ([]matcher, error) {
	out := make([]matcher, 0, len(filters))
	for _, f := range filters {
		fn, err := compileFilter(f)
		if err != nil {
			return nil, err
		}
		out = append(out, matcher{column: f.Column, match: fn})
	}
	return out, nil
}

func compileFilter(f store.Filter) (func(v any) bool, error) {
	want := normalize(f.Value)
	cmp := func(pred func(int) bool) func(any) bool {
		return func(v any) bool {
			return v != nil && pred(compareValues(normalize(v), want))
		}
	}
	switch f.Op {
	case store.OpEq:
		return cmp(func(c int) bool { return c == 0 }), nil
	case store.OpNe:
		return cmp(func(c int) bool { return c != 0 }), nil
	case store.OpGt:
		return cmp(func(c int) bool { return c > 0 }), nil
	case store.OpGte:
		return cmp(func(c int) bool { return c >= 0 }), nil
	case store.OpLt:
		return cmp(func(c int) bool { return c < 0 }), nil
	case store.OpLte:
		return cmp(func(c int) bool { return c <= 0 }), nil
	case store.OpIn, store.OpNotIn:
		items, _ := f.Value.([]any)
		negate := f.Op == store.OpNotIn
		return func(v any) bool {
			if v == nil {
				return false
			}
			for _, item := range items {
				if compareValues(normalize(v), normalize(item)) == 0 {
					return !negate
				}
			}
			return negate
		}, nil
	case store.OpIsNull:
		isNull, _ := f.Value.(bool)
		return func(v any) bool { return (v == nil) == isNull }, nil
	case store.OpContains, store.OpStartsWith, store.OpEndsWith:
		needle := strings.ToLower(fmt.Sprint(f.Value))
		return func(v any) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			s = strings.ToLower(s)
			switch f.Op {
			case store.OpStartsWith:
				return strings.HasPrefix(s, needle)
			case store.OpEndsWith:
				return strings.HasSuffix(s, needle)
			default:
				return strings.Contains(s, needle)
			}
		}, nil
	case store.OpLike, store.OpNotLike:
		re, err := likePattern(fmt.Sprint(f.Value))
		if err != nil {
			return nil, err
		}
		negate := f.Op == store.OpNotLike
		return func(v any) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			return re.MatchString(s) != negate
		}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", f.Op)
	}
}

// likePattern translates a SQL LIKE pattern into a case-insensitive regexp.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?is)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			sb.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			sb.WriteString(".*")
		case r == '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
