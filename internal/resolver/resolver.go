// Package resolver turns a compiled schema plan into an executable GraphQL
// schema. Every table becomes a row type and a paginated collection; field
// resolvers fetch from the TableStore through the request's cost guard and
// return thunks so independent branches fetch concurrently.
package resolver

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"tablegraph/internal/scalars"
	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

const (
	// DefaultPageSize applies when a collection field has no first argument.
	DefaultPageSize = 10
	// DefaultMaxPageSize bounds the first argument.
	DefaultMaxPageSize = 1000
)

// Options tune pagination.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Resolver builds the GraphQL types for one Plan. It is used once, by
// BuildSchema; the resulting schema is immutable and safe for concurrent use.
type Resolver struct {
	store store.TableStore
	plan  *typegen.Plan
	opts  Options

	rowTypes        map[string]*graphql.Object
	collectionTypes map[string]*graphql.Object
	filterInputs    map[string]*graphql.InputObject
	sortEnums       map[string]*graphql.Enum
	sortDescEnums   map[string]*graphql.Enum
	operations      map[store.Kind]*graphql.InputObject
	pageInfoType    *graphql.Object
	jsonType        *graphql.Scalar
}

// New creates a Resolver over st for plan.
func New(st store.TableStore, plan *typegen.Plan, opts Options) *Resolver {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	return &Resolver{
		store:           st,
		plan:            plan,
		opts:            opts,
		rowTypes:        make(map[string]*graphql.Object),
		collectionTypes: make(map[string]*graphql.Object),
		filterInputs:    make(map[string]*graphql.InputObject),
		sortEnums:       make(map[string]*graphql.Enum),
		sortDescEnums:   make(map[string]*graphql.Enum),
		operations:      make(map[store.Kind]*graphql.InputObject),
	}
}

// BuildSchema constructs the executable schema: one collection field and one
// singular row field per table on Query.
func (r *Resolver) BuildSchema() (graphql.Schema, error) {
	for _, ts := range r.plan.Types {
		r.rowTypes[ts.Key] = r.buildRowType(ts)
	}
	for _, ts := range r.plan.Types {
		r.collectionTypes[ts.Key] = r.buildCollectionType(ts)
	}

	queryFields := graphql.Fields{}
	for _, root := range r.plan.Root {
		ts, ok := r.plan.Lookup(root.TableKey)
		if !ok {
			return graphql.Schema{}, fmt.Errorf("root field %s references unknown table %s", root.Name, root.TableKey)
		}
		if root.Singular {
			queryFields[root.Name] = r.rowField(ts)
		} else {
			queryFields[root.Name] = r.collectionField(ts, nil)
		}
	}

	// If no tables exist, add a placeholder query to satisfy GraphQL requirements
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No tables found", nil
			},
			Description: "Placeholder field when no tables are exposed",
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
}

func (r *Resolver) lookup(key string) *typegen.TypeSet {
	ts, ok := r.plan.Lookup(key)
	if !ok {
		panic(fmt.Sprintf("resolver: table %s missing from plan", key))
	}
	return ts
}

func (r *Resolver) buildRowType(ts *typegen.TypeSet) *graphql.Object {
	// FieldsThunk lets row types reference each other through relations.
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        ts.RowType,
		Description: ts.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.buildRowFields(ts)
		}),
	})
}

func (r *Resolver) buildRowFields(ts *typegen.TypeSet) graphql.Fields {
	fields := graphql.Fields{}
	for _, f := range ts.Fields {
		switch f.Kind {
		case typegen.FieldColumn:
			fields[f.Name] = &graphql.Field{
				Type:        r.scalarType(f.Scalar),
				Description: f.Description,
				Resolve:     columnResolver(f),
			}
		case typegen.FieldForward:
			target := r.lookup(f.Target)
			fields[f.Name] = &graphql.Field{
				Type:        r.rowTypes[target.Key],
				Description: f.Description,
				Resolve:     r.forwardResolver(target, f),
			}
		case typegen.FieldReverse:
			target := r.lookup(f.Target)
			field := r.collectionField(target, &f)
			field.Description = f.Description
			fields[f.Name] = field
		}
	}
	return fields
}

func (r *Resolver) buildCollectionType(ts *typegen.TypeSet) *graphql.Object {
	rowType := r.rowTypes[ts.Key]
	edgeType := graphql.NewObject(graphql.ObjectConfig{
		Name: ts.EdgeType,
		Fields: graphql.Fields{
			"cursor": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(edge).cursor, nil
				},
			},
			"node": &graphql.Field{
				Type: rowType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(edge).node, nil
				},
			},
		},
	})

	return graphql.NewObject(graphql.ObjectConfig{
		Name: ts.CollectionType,
		Fields: graphql.Fields{
			"totalCount": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res := p.Source.(*collectionResult)
					if res.totalCount == nil {
						return nil, nil
					}
					return *res.totalCount, nil
				},
			},
			"pageInfo": &graphql.Field{
				Type: graphql.NewNonNull(r.pageInfo()),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*collectionResult), nil
				},
			},
			"nodes": &graphql.Field{
				Type: graphql.NewList(rowType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*collectionResult).nodes(), nil
				},
			},
			"edges": &graphql.Field{
				Type: graphql.NewList(edgeType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*collectionResult).edges(), nil
				},
			},
		},
	})
}

func (r *Resolver) pageInfo() *graphql.Object {
	if r.pageInfoType != nil {
		return r.pageInfoType
	}
	r.pageInfoType = graphql.NewObject(graphql.ObjectConfig{
		Name: typegen.PageInfoType,
		Fields: graphql.Fields{
			"endCursor": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res := p.Source.(*collectionResult)
					if res.endCursor == "" {
						return nil, nil
					}
					return res.endCursor, nil
				},
			},
			"hasNextPage": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*collectionResult).hasMore, nil
				},
			},
		},
	})
	return r.pageInfoType
}

func (r *Resolver) scalarType(s typegen.ScalarType) graphql.Output {
	switch s {
	case typegen.ScalarInt:
		return graphql.Int
	case typegen.ScalarFloat:
		return graphql.Float
	case typegen.ScalarJSON:
		return r.jsonScalar()
	default:
		return graphql.String
	}
}

func (r *Resolver) jsonScalar() *graphql.Scalar {
	if r.jsonType == nil {
		r.jsonType = scalars.JSON()
	}
	return r.jsonType
}
