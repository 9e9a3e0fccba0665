package executor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tablegraph/internal/resolver"
	"tablegraph/internal/schemacache"
	"tablegraph/internal/schemafilter"
	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

// compile introspects databases and builds an executable schema.
func (e *Executor) compile(ctx context.Context, databases []string, cfg Config) (compiled *schemacache.Compiled, err error) {
	ctx, span := otel.Tracer("tablegraph/executor").Start(ctx, "schema.compile")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var tables []store.TableMeta
	for _, db := range databases {
		dbTables, err := e.store.ListTables(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables in %s: %w", db, err)
		}
		tables = append(tables, schemafilter.Apply(dbTables, cfg.Filters)...)
	}
	span.SetAttributes(
		attribute.StringSlice("tablegraph.databases", databases),
		attribute.Int("tablegraph.tables", len(tables)),
	)

	plan, err := typegen.Compile(tables, typegen.Config{Naming: cfg.Naming, Overrides: cfg.Tables})
	if err != nil {
		return nil, err
	}

	schema, err := resolver.New(e.store, plan, resolver.Options{
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}).BuildSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	return &schemacache.Compiled{
		Schema:    schema,
		Plan:      plan,
		Databases: append([]string(nil), databases...),
		BuiltAt:   time.Now(),
	}, nil
}
