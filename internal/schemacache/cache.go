// Package schemacache holds compiled schemas keyed by the attached database
// set and the schema configuration fingerprint. Entries are immutable; the
// cache swaps its whole entry map atomically so readers never lock.
package schemacache

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/graphql-go/graphql"

	"tablegraph/internal/logging"
	"tablegraph/internal/observability"
	"tablegraph/internal/typegen"
)

// Key identifies one compiled schema.
type Key struct {
	Databases   string
	Fingerprint string
}

// NewKey builds a key from database names in any order.
func NewKey(databases []string, fingerprint string) Key {
	sorted := append([]string(nil), databases...)
	sort.Strings(sorted)
	return Key{Databases: strings.Join(sorted, ","), Fingerprint: fingerprint}
}

// Compiled is an executable schema plus the plan it was built from.
type Compiled struct {
	Schema    graphql.Schema
	Plan      *typegen.Plan
	Databases []string
	BuiltAt   time.Time
}

// CompileFunc builds a schema on a cache miss.
type CompileFunc func(ctx context.Context) (*Compiled, error)

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache struct {
	entries atomic.Pointer[map[Key]*Compiled]
	// mu serializes writers and compilation so a burst of misses for one key
	// compiles once.
	mu      sync.Mutex
	logger  *logging.Logger
	metrics *observability.GraphQLMetrics
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for compile events.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records compile durations.
func WithMetrics(metrics *observability.GraphQLMetrics) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{logger: &logging.Logger{Logger: slog.Default()}}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(slog.String("component", "schema_cache"))
	empty := map[Key]*Compiled{}
	c.entries.Store(&empty)
	return c
}

// Get returns the cached schema for key.
func (c *Cache) Get(key Key) (*Compiled, bool) {
	compiled, ok := (*c.entries.Load())[key]
	return compiled, ok
}

// Put stores compiled under key, replacing any previous entry.
func (c *Cache) Put(key Key, compiled *Compiled) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, compiled)
}

func (c *Cache) put(key Key, compiled *Compiled) {
	current := *c.entries.Load()
	next := make(map[Key]*Compiled, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[key] = compiled
	c.entries.Store(&next)
}

// Invalidate drops every entry. Requests already holding a schema finish
// with it; the next lookup recompiles.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	empty := map[Key]*Compiled{}
	dropped := len(*c.entries.Swap(&empty))
	c.logger.Info("schema cache invalidated", slog.Int("entries", dropped))
}

// Len reports the number of cached schemas.
func (c *Cache) Len() int {
	return len(*c.entries.Load())
}

// GetOrCompile returns the cached schema for key, compiling and storing it on
// a miss. A failed compile is not cached.
func (c *Cache) GetOrCompile(ctx context.Context, key Key, compile CompileFunc) (*Compiled, error) {
	if compiled, ok := c.Get(key); ok {
		return compiled, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if compiled, ok := c.Get(key); ok {
		return compiled, nil
	}

	start := time.Now()
	compiled, err := compile(ctx)
	duration := time.Since(start)
	c.metrics.RecordSchemaCompile(ctx, duration, err)
	if err != nil {
		c.logger.Error("schema compile failed",
			slog.String("databases", key.Databases),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if compiled.BuiltAt.IsZero() {
		compiled.BuiltAt = time.Now()
	}
	c.put(key, compiled)

	attrs := []any{
		slog.String("databases", key.Databases),
		slog.String("fingerprint", key.Fingerprint),
		slog.Duration("duration", duration),
	}
	if compiled.Plan != nil {
		attrs = append(attrs, slog.Int("tables", len(compiled.Plan.Types)))
	}
	c.logger.Info("schema compiled", attrs...)
	return compiled, nil
}
