package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tablegraph/internal/memstore"
	"tablegraph/internal/store"
)

var gif1x1 = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x01D\x00;")

func col(name string, kind store.Kind) store.ColumnMeta {
	return store.ColumnMeta{Name: name, Kind: kind, Nullable: true}
}

func fixtureStore(opts ...memstore.Option) *memstore.Store {
	s := memstore.New(opts...)

	s.AddTable(store.TableMeta{
		Database:   "test",
		Name:       "users",
		Columns:    []store.ColumnMeta{col("id", store.KindInteger), col("name", store.KindText), col("points", store.KindInteger), col("score", store.KindFloat)},
		PrimaryKey: []string{"id"},
	},
		store.Row{"id": 1, "name": "cleopaws", "points": 5, "score": 51.5},
		store.Row{"id": 2, "name": "simonw", "points": 3, "score": 35.2},
	)

	s.AddTable(store.TableMeta{
		Database:   "test",
		Name:       "licenses",
		Columns:    []store.ColumnMeta{col("key", store.KindText), col("name", store.KindText)},
		PrimaryKey: []string{"key"},
	},
		store.Row{"key": "mit", "name": "MIT"},
		store.Row{"key": "apache2", "name": "Apache 2"},
	)

	repoColumns := []store.ColumnMeta{
		col("id", store.KindInteger), col("full_name", store.KindText), col("name", store.KindText),
		col("owner", store.KindInteger), col("license", store.KindText), col("tags", store.KindText),
	}
	repoRows := []store.Row{
		{"id": 1, "full_name": "simonw/datasette", "name": "datasette", "owner": 2, "license": "apache2", "tags": `["databases", "apis"]`},
		{"id": 2, "full_name": "cleopaws/dogspotter", "name": "dogspotter", "owner": 1, "license": "mit", "tags": `["dogs"]`},
		{"id": 3, "full_name": "simonw/private", "name": "private", "owner": 2, "license": nil, "tags": nil},
	}
	s.AddTable(store.TableMeta{
		Database:    "test",
		Name:        "repos",
		Columns:     repoColumns,
		PrimaryKey:  []string{"id"},
		ForeignKeys: []store.ForeignKey{{Column: "owner", RefTable: "users", RefColumn: "id"}, {Column: "license", RefTable: "licenses", RefColumn: "key"}},
		FTS:         &store.FTSMeta{Table: "repos", Key: "id", Columns: []string{"full_name"}},
	}, repoRows...)
	s.AddTable(store.TableMeta{
		Database: "test",
		Name:     "view_on_repos",
		IsView:   true,
		Columns:  repoColumns,
	}, repoRows...)
	s.AddTable(store.TableMeta{
		Database:   "test",
		Name:       "repos_fts",
		Columns:    []store.ColumnMeta{col("id", store.KindInteger), col("full_name", store.KindText)},
		PrimaryKey: []string{"id"},
	},
		store.Row{"id": 1, "full_name": "simonw/datasette"},
		store.Row{"id": 2, "full_name": "cleopaws/dogspotter"},
		store.Row{"id": 3, "full_name": "simonw/private"},
	)

	s.AddTable(store.TableMeta{
		Database:    "test",
		Name:        "issues",
		Columns:     []store.ColumnMeta{col("id", store.KindInteger), col("title", store.KindText), col("user", store.KindInteger), col("repo", store.KindInteger)},
		PrimaryKey:  []string{"id"},
		ForeignKeys: []store.ForeignKey{{Column: "user", RefTable: "users"}, {Column: "repo", RefTable: "repos"}},
	}, store.Row{"id": 111, "title": "Not enough dog stuff", "user": 1, "repo": 1})

	s.AddTable(store.TableMeta{
		Database:   "test",
		Name:       "1_images",
		Columns:    []store.ColumnMeta{col("path", store.KindText), col("content", store.KindBlob)},
		PrimaryKey: []string{"path"},
	}, store.Row{"path": "1x1.gif", "content": gif1x1})

	var rowidRows, pkRows, compoundRows []store.Row
	for i := 1; i <= 21; i++ {
		rowidRows = append(rowidRows, store.Row{"name": fmt.Sprintf("Row %d", i)})
		pkRows = append(pkRows, store.Row{"pk": i, "name": fmt.Sprintf("Row %d", i)})
	}
	for i := 1; i <= 3; i++ {
		for j := 1; j <= 7; j++ {
			compoundRows = append(compoundRows, store.Row{"pk1": i, "pk2": j, "name": fmt.Sprintf("Row %d %d", i, j)})
		}
	}
	s.AddTable(store.TableMeta{
		Database: "test",
		Name:     "table_with_rowid",
		Columns:  []store.ColumnMeta{col("name", store.KindText)},
	}, rowidRows...)
	s.AddTable(store.TableMeta{
		Database:   "test",
		Name:       "table_with_pk",
		Columns:    []store.ColumnMeta{col("pk", store.KindInteger), col("name", store.KindText)},
		PrimaryKey: []string{"pk"},
	}, pkRows...)
	s.AddTable(store.TableMeta{
		Database:   "test",
		Name:       "table_with_compound_pk",
		Columns:    []store.ColumnMeta{col("pk1", store.KindInteger), col("pk2", store.KindInteger), col("name", store.KindText)},
		PrimaryKey: []string{"pk1", "pk2"},
	}, compoundRows...)

	s.AddTable(store.TableMeta{
		Database: "test2",
		Name:     "test_table",
		Columns:  []store.ColumnMeta{col("full_name", store.KindText)},
	}, store.Row{"full_name": "This is a full name"})

	return s
}

func newTestExecutor(st store.TableStore, cfg Config, databases ...string) *Executor {
	if len(databases) == 0 {
		databases = []string{"test"}
	}
	return New(st, databases, cfg)
}

func run(t *testing.T, e *Executor, query string) *Result {
	t.Helper()
	return e.Execute(context.Background(), Request{Query: query})
}

func encode(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func decode(t *testing.T, res *Result) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(encode(t, res)), &out))
	return out
}

// countingStore counts ListTables calls so tests can observe compiles.
type countingStore struct {
	store.TableStore
	lists atomic.Int64
}

func (c *countingStore) ListTables(ctx context.Context, database string) ([]store.TableMeta, error) {
	c.lists.Add(1)
	return c.TableStore.ListTables(ctx, database)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// clockedStore advances a fake clock on every call, standing in for slow
// introspection and slow fetches.
type clockedStore struct {
	store.TableStore
	clock *fakeClock
	list  time.Duration
	fetch time.Duration
}

func (c *clockedStore) ListTables(ctx context.Context, database string) ([]store.TableMeta, error) {
	c.clock.Advance(c.list)
	return c.TableStore.ListTables(ctx, database)
}

func (c *clockedStore) FetchPage(ctx context.Context, req store.FetchRequest) (store.PageResult, error) {
	c.clock.Advance(c.fetch)
	return c.TableStore.FetchPage(ctx, req)
}
