// Package executor is the entry point for running GraphQL documents against
// the attached databases: it resolves the compiled schema from the cache,
// attaches a fresh cost guard, executes, and shapes the response envelope.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tablegraph/internal/costguard"
	"tablegraph/internal/logging"
	"tablegraph/internal/observability"
	"tablegraph/internal/schemacache"
	"tablegraph/internal/store"
)

// Request is one document to execute.
type Request struct {
	Query         string
	Variables     map[string]interface{}
	OperationName string
	// Databases restricts the request to a subset of the attached databases.
	// Empty means all of them.
	Databases []string
	// Config overrides the executor's configuration when set.
	Config *Config
}

// Result is the response envelope. Data is nil for document errors and is
// otherwise ordered as the document selected it.
type Result struct {
	Data   interface{}                `json:"data"`
	Errors []gqlerrors.FormattedError `json:"errors,omitempty"`
}

// HasErrors reports whether any error was collected.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Executor runs documents. It is safe for concurrent use.
type Executor struct {
	store     store.TableStore
	databases []string
	config    Config
	cache     *schemacache.Cache
	logger    *logging.Logger
	metrics   *observability.GraphQLMetrics
	now       func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithCache shares a schema cache between executors.
func WithCache(cache *schemacache.Cache) Option {
	return func(e *Executor) {
		e.cache = cache
	}
}

// WithLogger sets the base logger. Request-scoped loggers in the context win.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics enables request and fetch metrics.
func WithMetrics(metrics *observability.GraphQLMetrics) Option {
	return func(e *Executor) {
		e.metrics = metrics
	}
}

// WithClock replaces the clock the request time limit is measured with.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an executor over the attached databases.
func New(st store.TableStore, databases []string, cfg Config, opts ...Option) *Executor {
	e := &Executor{
		store:     st,
		databases: append([]string(nil), databases...),
		config:    cfg,
		logger:    &logging.Logger{Logger: slog.Default()},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = schemacache.New(schemacache.WithLogger(e.logger), schemacache.WithMetrics(e.metrics))
	}
	return e
}

// Databases returns the attached database names.
func (e *Executor) Databases() []string {
	return slices.Clone(e.databases)
}

// HasDatabase reports whether name is attached.
func (e *Executor) HasDatabase(name string) bool {
	return slices.Contains(e.databases, name)
}

// Cache exposes the schema cache, for watchers.
func (e *Executor) Cache() *schemacache.Cache {
	return e.cache
}

// InvalidateSchema forces recompilation on the next request.
func (e *Executor) InvalidateSchema() {
	e.cache.Invalidate()
}

// Schema returns the compiled schema for databases under cfg, compiling it
// if needed. A nil cfg uses the executor's configuration.
func (e *Executor) Schema(ctx context.Context, databases []string, cfg *Config) (*schemacache.Compiled, error) {
	if len(databases) == 0 {
		databases = e.databases
	}
	for _, db := range databases {
		if !e.HasDatabase(db) {
			return nil, fmt.Errorf("database %q is not attached", db)
		}
	}
	effective := e.config
	if cfg != nil {
		effective = *cfg
	}
	key := schemacache.NewKey(databases, effective.Fingerprint())
	return e.cache.GetOrCompile(ctx, key, func(ctx context.Context) (*schemacache.Compiled, error) {
		return e.compile(ctx, databases, effective)
	})
}

// Execute runs one document. Document errors (parse, validation, operation
// selection) return nil data without touching the store; field errors are
// collected alongside the data that did resolve.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	start := time.Now()
	cfg := e.config
	if req.Config != nil {
		cfg = *req.Config
	}

	ctx, span := otel.Tracer("tablegraph/executor").Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(attribute.String("graphql.operation.name", req.OperationName))

	logger := logging.FromContext(ctx)
	e.metrics.IncrementActiveRequests(ctx)
	defer e.metrics.DecrementActiveRequests(ctx)

	// The time limit counts from request start, so a schema compiled on this
	// request is charged to it.
	guard := costguard.New(costguard.Limits{MaxFetches: cfg.MaxFetches, TimeLimit: cfg.TimeLimit}, costguard.WithClock(e.now))
	result := e.execute(ctx, req, cfg, guard)

	duration := time.Since(start)
	e.metrics.RecordRequest(ctx, duration, len(result.Errors), guard.Fetches())
	span.SetAttributes(
		attribute.Int("tablegraph.fetches", guard.Fetches()),
		attribute.Int("graphql.errors", len(result.Errors)),
	)
	if result.HasErrors() {
		span.SetStatus(codes.Error, result.Errors[0].Message)
	}

	attrs := []any{
		slog.Int("fetches", guard.Fetches()),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", duration),
	}
	if breach := guard.Breached(); breach != nil {
		attrs = append(attrs, slog.String("budget_exceeded", string(breach.Kind)))
	}
	logger.Debug("graphql request executed", attrs...)
	return result
}

func (e *Executor) execute(ctx context.Context, req Request, cfg Config, guard *costguard.Guard) *Result {
	compiled, err := e.Schema(ctx, req.Databases, &cfg)
	if err != nil {
		return &Result{Errors: gqlerrors.FormatErrors(err)}
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(req.Query),
			Name: "GraphQL request",
		}),
	})
	if err != nil {
		return &Result{Errors: gqlerrors.FormatErrors(err)}
	}

	validation := graphql.ValidateDocument(&compiled.Schema, doc, nil)
	if !validation.IsValid {
		return &Result{Errors: validation.Errors}
	}

	ctx = costguard.WithGuard(ctx, guard)
	ctx = observability.ContextWithGraphQLMetrics(ctx, e.metrics)
	res := graphql.Execute(graphql.ExecuteParams{
		Schema:        compiled.Schema,
		AST:           doc,
		OperationName: req.OperationName,
		Args:          req.Variables,
		Context:       ctx,
	})

	out := &Result{Errors: res.Errors}
	if res.Data != nil {
		out.Data = orderData(res.Data, doc, req.OperationName)
	}
	return out
}

func documentFragments(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if frag, ok := def.(*ast.FragmentDefinition); ok && frag.Name != nil {
			fragments[frag.Name.Value] = frag
		}
	}
	return fragments
}

func selectedOperation(doc *ast.Document, name string) *ast.OperationDefinition {
	var found *ast.OperationDefinition
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if name == "" {
			if found != nil {
				return nil
			}
			found = op
			continue
		}
		if op.Name != nil && op.Name.Value == name {
			return op
		}
	}
	return found
}
