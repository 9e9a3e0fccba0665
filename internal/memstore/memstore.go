// Package memstore is an in-memory TableStore. It serves the demo mode and
// gives the resolver and executor tests a backend with the same ordering,
// filtering and pagination semantics as the SQL store.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tablegraph/internal/store"
)

// RowIDColumn is the hidden row id assigned to tables without a primary key.
const RowIDColumn = "rowid"

type table struct {
	meta   store.TableMeta
	rows   []store.Row
	nextID int64
}

// Store holds tables grouped by database. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	databases map[string]map[string]*table
	latency   time.Duration
	fetches   atomic.Int64
}

// Option customizes a Store.
type Option func(*Store)

// WithLatency delays every fetch, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency = d
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{databases: make(map[string]map[string]*table)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTable registers a table and its rows under meta.Database. Tables that
// are neither views nor keyed by a primary key get a rowid column.
func (s *Store) AddTable(meta store.TableMeta, rows ...store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(meta.PrimaryKey) == 0 && meta.RowIDColumn == "" && !meta.IsView {
		meta.RowIDColumn = RowIDColumn
	}
	t := &table{meta: meta}
	for _, row := range rows {
		t.insert(row)
	}
	db := s.databases[meta.Database]
	if db == nil {
		db = make(map[string]*table)
		s.databases[meta.Database] = db
	}
	db[meta.Name] = t
}

// Insert appends a row to an existing table.
func (s *Store) Insert(database, name string, row store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.databases[database][name]
	if !ok {
		return fmt.Errorf("table %s.%s not found", database, name)
	}
	t.insert(row)
	return nil
}

// Delete removes rows for which match returns true and reports how many.
func (s *Store) Delete(database, name string, match func(store.Row) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.databases[database][name]
	if !ok {
		return 0
	}
	before := len(t.rows)
	t.rows = slices.DeleteFunc(t.rows, match)
	return before - len(t.rows)
}

func (t *table) insert(row store.Row) {
	r := make(store.Row, len(row)+1)
	for k, v := range row {
		r[k] = normalize(v)
	}
	if t.meta.RowIDColumn != "" {
		t.nextID++
		r[t.meta.RowIDColumn] = t.nextID
	}
	t.rows = append(t.rows, r)
}

// Databases lists database names in sorted order.
func (s *Store) Databases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fetches returns how many FetchPage and FetchByKey calls were served.
func (s *Store) Fetches() int {
	return int(s.fetches.Load())
}

// ListTables returns table metadata in name order.
func (s *Store) ListTables(ctx context.Context, database string) ([]store.TableMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, ok := s.databases[database]
	if !ok {
		return nil, fmt.Errorf("database %q not found", database)
	}
	out := make([]store.TableMeta, 0, len(db))
	for _, t := range db {
		out = append(out, t.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FetchByKey returns the first row whose columns equal key.
func (s *Store) FetchByKey(ctx context.Context, meta store.TableMeta, key map[string]any) (store.Row, error) {
	s.fetches.Add(1)
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookup(meta)
	if err != nil {
		return nil, err
	}
	for _, row := range t.rows {
		matched := true
		for col, want := range key {
			if row[col] == nil || compareValues(row[col], normalize(want)) != 0 {
				matched = false
				break
			}
		}
		if matched {
			return maps.Clone(row), nil
		}
	}
	return nil, nil
}

func (s *Store) lookup(meta store.TableMeta) (*table, error) {
	t, ok := s.databases[meta.Database][meta.Name]
	if !ok {
		return nil, fmt.Errorf("table %s.%s not found", meta.Database, meta.Name)
	}
	return t, nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return val
	}
}
