package sqlstore

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"tablegraph/internal/introspection"
	"tablegraph/internal/sqlutil"
	"tablegraph/internal/store"
)

// Characters with meaning in boolean-mode full-text queries.
var booleanOperators = strings.NewReplacer(
	"+", " ", "-", " ", "<", " ", ">", " ", "(", " ", ")", " ",
	"~", " ", "*", " ", `"`, " ", "@", " ",
)

// booleanQuery requires every term of query, each as a prefix.
func booleanQuery(query string) string {
	terms := strings.Fields(booleanOperators.Replace(query))
	for i, term := range terms {
		terms[i] = "+" + term + "*"
	}
	return strings.Join(terms, " ")
}

// searchCondition builds the full-text predicate for req. An index on the
// table itself is matched inline; a separate search table is joined on its
// key column against the table's search source key.
func (s *Store) searchCondition(ctx context.Context, req store.FetchRequest) (sq.Sqlizer, error) {
	table := req.Table
	if table.FTS == nil {
		return nil, fmt.Errorf("search on %s: %w", table.Name, store.ErrUnsupported)
	}
	terms := booleanQuery(req.Search)
	if terms == "" {
		return nil, nil
	}

	fts := table.FTS
	source := fts.Table
	if source == "" {
		source = table.Name
	}
	columns, searchKey := fts.Columns, fts.Key
	if len(columns) == 0 || (source != table.Name && searchKey == "") {
		src, err := s.searchSource(ctx, table.Database, source)
		if err != nil {
			return nil, err
		}
		if len(columns) == 0 {
			columns = src.Columns
		}
		if searchKey == "" {
			searchKey = src.Key
		}
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(col)
	}
	match := fmt.Sprintf("MATCH(%s) AGAINST (? IN BOOLEAN MODE)", strings.Join(quoted, ", "))

	if source == table.Name {
		return sq.Expr(match, terms), nil
	}
	return sq.Expr(fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
		sqlutil.QuoteIdentifier(table.SearchSourceKey()),
		sqlutil.QuoteIdentifier(searchKey),
		sqlutil.QualifiedName(table.Database, source),
		match,
	), terms), nil
}

// searchSource resolves and caches the key and FULLTEXT columns of a search
// table.
func (s *Store) searchSource(ctx context.Context, database, table string) (*store.FTSMeta, error) {
	cacheKey := database + "." + table
	s.mu.RLock()
	src, ok := s.sources[cacheKey]
	s.mu.RUnlock()
	if ok {
		return src, nil
	}

	src, err := introspection.SearchSource(ctx, s.db, database, table)
	if err != nil {
		return nil, err
	}
	if len(src.Columns) == 0 {
		return nil, fmt.Errorf("search table %s.%s has no FULLTEXT index: %w", database, table, store.ErrUnsupported)
	}

	s.mu.Lock()
	s.sources[cacheKey] = src
	s.mu.Unlock()
	return src, nil
}
