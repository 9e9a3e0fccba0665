package sqlstore

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"tablegraph/internal/sqlutil"
	"tablegraph/internal/store"
)

// SQLQuery is a rendered statement with its arguments.
type SQLQuery struct {
	SQL  string
	Args []any
}

// scanColumn is one selected column and the kind it is scanned as.
type scanColumn struct {
	name string
	kind store.Kind
}

// selectColumns lists the table columns followed by the row id when the table
// is keyed by it.
func selectColumns(table store.TableMeta) []scanColumn {
	cols := make([]scanColumn, 0, len(table.Columns)+1)
	for _, col := range table.Columns {
		cols = append(cols, scanColumn{name: col.Name, kind: col.Kind})
	}
	if table.UsesRowID() {
		if _, ok := table.Column(table.RowIDColumn); !ok {
			cols = append(cols, scanColumn{name: table.RowIDColumn, kind: store.KindInteger})
		}
	}
	return cols
}

func quotedNames(cols []scanColumn) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = sqlutil.QuoteIdentifier(col.name)
	}
	return names
}

// buildPageQueries renders the page read and, when requested, the count over
// the same filters. search is the full-text condition or nil.
func buildPageQueries(req store.FetchRequest, search sq.Sqlizer) (page SQLQuery, count *SQLQuery, err error) {
	table := req.Table
	base := sq.Select(quotedNames(selectColumns(table))...).
		From(sqlutil.QualifiedName(table.Database, table.Name))

	conditions, err := filterConditions(req.Filters)
	if err != nil {
		return SQLQuery{}, nil, err
	}
	if strings.TrimSpace(req.Where) != "" {
		where, err := normalizeWhere(req.Where)
		if err != nil {
			return SQLQuery{}, nil, err
		}
		conditions = append(conditions, sq.Expr("("+where+")"))
	}
	if search != nil {
		conditions = append(conditions, search)
	}
	for _, cond := range conditions {
		base = base.Where(cond)
	}

	if req.IncludeTotal {
		countBase, args, err := base.PlaceholderFormat(sq.Question).ToSql()
		if err != nil {
			return SQLQuery{}, nil, err
		}
		count = &SQLQuery{
			SQL:  fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS __count", countBase),
			Args: args,
		}
	}

	keys := table.KeyColumns()
	seek, err := seekCondition(req.Sort, keys, req.After)
	if err != nil {
		return SQLQuery{}, nil, err
	}
	builder := base
	if seek != nil {
		builder = builder.Where(seek)
	}
	builder = builder.OrderBy(orderByClauses(req.Sort, keys)...).
		Limit(uint64(req.PageSize) + 1).
		PlaceholderFormat(sq.Question)

	query, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, nil, err
	}
	return SQLQuery{SQL: query, Args: args}, count, nil
}

// buildKeyQuery renders a single-row lookup by key column values.
func buildKeyQuery(table store.TableMeta, key map[string]any) (SQLQuery, error) {
	keys := table.KeyColumns()
	cond := make(sq.And, 0, len(keys))
	for _, name := range keys {
		value, ok := key[name]
		if !ok {
			return SQLQuery{}, fmt.Errorf("missing key column %s", name)
		}
		col := sqlutil.QuoteIdentifier(name)
		if value == nil {
			cond = append(cond, sq.Eq{col: nil})
			continue
		}
		cond = append(cond, compare(col, "=", value))
	}

	query, args, err := sq.Select(quotedNames(selectColumns(table))...).
		From(sqlutil.QualifiedName(table.Database, table.Name)).
		Where(cond).
		Limit(1).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func filterConditions(filters []store.Filter) ([]sq.Sqlizer, error) {
	out := make([]sq.Sqlizer, 0, len(filters))
	for _, f := range filters {
		cond, err := filterCondition(f)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func filterCondition(f store.Filter) (sq.Sqlizer, error) {
	col := sqlutil.QuoteIdentifier(f.Column)
	switch f.Op {
	case store.OpEq:
		return sq.Eq{col: f.Value}, nil
	case store.OpNe:
		return sq.NotEq{col: f.Value}, nil
	case store.OpGt:
		return sq.Gt{col: f.Value}, nil
	case store.OpGte:
		return sq.GtOrEq{col: f.Value}, nil
	case store.OpLt:
		return sq.Lt{col: f.Value}, nil
	case store.OpLte:
		return sq.LtOrEq{col: f.Value}, nil
	case store.OpIn:
		items, _ := f.Value.([]any)
		return sq.Eq{col: items}, nil
	case store.OpNotIn:
		items, _ := f.Value.([]any)
		if len(items) == 0 {
			// NOT IN over nothing still excludes NULLs.
			return sq.NotEq{col: nil}, nil
		}
		return sq.NotEq{col: items}, nil
	case store.OpIsNull:
		if isNull, _ := f.Value.(bool); isNull {
			return sq.Eq{col: nil}, nil
		}
		return sq.NotEq{col: nil}, nil
	case store.OpContains:
		return sq.Like{col: "%" + sqlutil.EscapeLike(fmt.Sprint(f.Value)) + "%"}, nil
	case store.OpStartsWith:
		return sq.Like{col: sqlutil.EscapeLike(fmt.Sprint(f.Value)) + "%"}, nil
	case store.OpEndsWith:
		return sq.Like{col: "%" + sqlutil.EscapeLike(fmt.Sprint(f.Value))}, nil
	case store.OpLike:
		return sq.Like{col: fmt.Sprint(f.Value)}, nil
	case store.OpNotLike:
		return sq.NotLike{col: fmt.Sprint(f.Value)}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", f.Op)
	}
}

// compare renders col op ? directly. squirrel's map predicates expand []byte
// values as lists.
func compare(col, op string, value any) sq.Sqlizer {
	return sq.Expr(col+" "+op+" ?", value)
}

func orderByClauses(sort *store.Sort, keys []string) []string {
	clauses := make([]string, 0, len(keys)+1)
	if sort != nil {
		direction := "ASC"
		if sort.Desc {
			direction = "DESC"
		}
		clauses = append(clauses, sqlutil.QuoteIdentifier(sort.Column)+" "+direction)
	}
	for _, key := range keys {
		clauses = append(clauses, sqlutil.QuoteIdentifier(key)+" ASC")
	}
	return clauses
}

// seekCondition selects the rows strictly after the seek tuple in the page
// ordering. MySQL sorts NULL first ascending and last descending; the key
// tie-break is always ascending.
func seekCondition(sort *store.Sort, keys []string, after []any) (sq.Sqlizer, error) {
	if len(after) == 0 {
		return nil, nil
	}
	width := len(keys)
	if sort != nil {
		width++
	}
	if len(after) != width {
		return nil, fmt.Errorf("seek values: expected %d, got %d", width, len(after))
	}
	if sort == nil {
		return keysAfter(keys, after), nil
	}

	col := sqlutil.QuoteIdentifier(sort.Column)
	value := after[0]
	tail := keysAfter(keys, after[1:])
	switch {
	case !sort.Desc && value == nil:
		return sq.Or{sq.And{sq.Eq{col: nil}, tail}, sq.NotEq{col: nil}}, nil
	case !sort.Desc:
		return sq.Or{compare(col, ">", value), sq.And{compare(col, "=", value), tail}}, nil
	case value == nil:
		return sq.And{sq.Eq{col: nil}, tail}, nil
	default:
		return sq.Or{compare(col, "<", value), sq.Eq{col: nil}, sq.And{compare(col, "=", value), tail}}, nil
	}
}

// keysAfter compares the key tuple ascending. Row comparison is used when no
// seek value is NULL; otherwise the comparison is expanded column by column
// with NULL ordered first.
func keysAfter(keys []string, values []any) sq.Sqlizer {
	if !hasNil(values) {
		quoted := make([]string, len(keys))
		for i, key := range keys {
			quoted[i] = sqlutil.QuoteIdentifier(key)
		}
		lhs := "(" + strings.Join(quoted, ", ") + ")"
		rhs := "(" + sq.Placeholders(len(values)) + ")"
		return sq.Expr(lhs+" > "+rhs, values...)
	}

	or := make(sq.Or, 0, len(keys))
	for i, key := range keys {
		and := make(sq.And, 0, i+1)
		for j := 0; j < i; j++ {
			and = append(and, compare(sqlutil.QuoteIdentifier(keys[j]), "<=>", values[j]))
		}
		col := sqlutil.QuoteIdentifier(key)
		if values[i] == nil {
			and = append(and, sq.NotEq{col: nil})
		} else {
			and = append(and, compare(col, ">", values[i]))
		}
		or = append(or, and)
	}
	return or
}

func hasNil(values []any) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}
