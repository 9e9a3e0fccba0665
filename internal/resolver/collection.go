package resolver

import (
	"github.com/graphql-go/graphql"

	"tablegraph/internal/cursor"
	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

// collectionResult is the source value of a collection type.
type collectionResult struct {
	rows       []store.Row
	cursors    []string
	totalCount *int
	// hasMore is only set alongside endCursor, so an empty page such as
	// first: 0 never claims a next page it cannot point to.
	hasMore bool
	// endCursor is empty when there is no next page.
	endCursor string
}

type edge struct {
	cursor string
	node   store.Row
}

func newCollectionResult(ts *typegen.TypeSet, sort *store.Sort, signature string, page store.PageResult) (*collectionResult, error) {
	res := &collectionResult{
		rows:       page.Rows,
		cursors:    make([]string, len(page.Rows)),
		totalCount: page.TotalCount,
	}
	for i, row := range page.Rows {
		encoded, err := cursor.Encode(cursor.Cursor{Signature: signature, Values: seekValues(ts, sort, row)})
		if err != nil {
			return nil, err
		}
		res.cursors[i] = encoded
	}
	if page.HasMore && len(res.cursors) > 0 {
		res.hasMore = true
		res.endCursor = res.cursors[len(res.cursors)-1]
	}
	return res, nil
}

func emptyCollection() *collectionResult {
	zero := 0
	return &collectionResult{totalCount: &zero}
}

func (c *collectionResult) nodes() []store.Row {
	return c.rows
}

func (c *collectionResult) edges() []edge {
	out := make([]edge, len(c.rows))
	for i, row := range c.rows {
		out[i] = edge{cursor: c.cursors[i], node: row}
	}
	return out
}

// collectionField builds a collection field over ts. When rel is set the
// field is a reverse relation: rows of ts whose rel.SourceColumn equals the
// parent row's rel.RefColumn.
func (r *Resolver) collectionField(ts *typegen.TypeSet, rel *typegen.Field) *graphql.Field {
	return &graphql.Field{
		Type:        r.collectionTypes[ts.Key],
		Args:        r.collectionArgs(ts),
		Description: ts.CollectionDescription,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			q, err := r.parsePageQuery(ts, p.Args)
			if err != nil {
				return nil, err
			}
			if rel != nil {
				row, _ := p.Source.(store.Row)
				parent := row[rel.RefColumn]
				if parent == nil {
					return emptyCollection(), nil
				}
				q.filters = append([]store.Filter{{Column: rel.SourceColumn, Op: store.OpEq, Value: parent}}, q.filters...)
			}
			return r.fetchCollection(p.Context, ts, q, selectsField(p.Info, "totalCount"))
		},
	}
}

// rowField builds the singular lookup field for ts.
func (r *Resolver) rowField(ts *typegen.TypeSet) *graphql.Field {
	return &graphql.Field{
		Type:        r.rowTypes[ts.Key],
		Args:        r.rowArgs(ts),
		Description: ts.RowFieldDescription,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			q, err := r.parsePageQuery(ts, p.Args)
			if err != nil {
				return nil, err
			}
			key := make(map[string]any)
			var keyFilters []store.Filter
			for _, arg := range ts.KeyArgs {
				v, ok := p.Args[arg.Name]
				if !ok || v == nil {
					continue
				}
				value := normalizeScalar(v)
				key[arg.Column] = value
				keyFilters = append(keyFilters, store.Filter{Column: arg.Column, Op: store.OpEq, Value: value})
			}
			if isFullKey(ts, key) && len(q.filters) == 0 && q.where == "" && q.search == "" && q.after == "" {
				return r.fetchByKey(p.Context, ts, key)
			}
			q.filters = append(keyFilters, q.filters...)
			return r.fetchFirst(p.Context, ts, q)
		},
	}
}

// forwardResolver resolves a foreign key column to the referenced row.
func (r *Resolver) forwardResolver(target *typegen.TypeSet, f typegen.Field) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, _ := p.Source.(store.Row)
		value := row[f.Column]
		if value == nil {
			return nil, nil
		}
		key := map[string]any{f.RefColumn: value}
		if isFullKey(target, key) {
			return r.fetchByKey(p.Context, target, key)
		}
		q := pageQuery{filters: []store.Filter{{Column: f.RefColumn, Op: store.OpEq, Value: value}}}
		return r.fetchFirst(p.Context, target, q)
	}
}
