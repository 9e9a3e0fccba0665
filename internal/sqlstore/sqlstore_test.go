package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablegraph/internal/dbexec"
	"tablegraph/internal/store"
)

var reposTable = store.TableMeta{
	Database: "test",
	Name:     "repos",
	Columns: []store.ColumnMeta{
		{Name: "id", Kind: store.KindInteger},
		{Name: "name", Kind: store.KindText, Nullable: true},
		{Name: "owner", Kind: store.KindInteger, Nullable: true},
	},
	PrimaryKey: []string{"id"},
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return New(dbexec.NewStandardExecutor(db)), mock
}

func reposRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "owner"})
}

func TestBuildPageQueries(t *testing.T) {
	req := store.FetchRequest{
		Table:    reposTable,
		Filters:  []store.Filter{{Column: "owner", Op: store.OpEq, Value: int64(2)}},
		After:    []any{int64(3)},
		PageSize: 2,
	}
	page, count, err := buildPageQueries(req, nil)
	require.NoError(t, err)
	assert.Nil(t, count)
	assert.Equal(t, "SELECT `id`, `name`, `owner` FROM `test`.`repos` WHERE `owner` = ? AND (`id`) > (?) ORDER BY `id` ASC LIMIT 3", page.SQL)
	assert.Equal(t, []any{int64(2), int64(3)}, page.Args)
}

func TestBuildPageQueries_CountIgnoresSeek(t *testing.T) {
	req := store.FetchRequest{
		Table:        reposTable,
		Filters:      []store.Filter{{Column: "owner", Op: store.OpEq, Value: int64(2)}},
		After:        []any{int64(3)},
		PageSize:     2,
		IncludeTotal: true,
	}
	_, count, err := buildPageQueries(req, nil)
	require.NoError(t, err)
	require.NotNil(t, count)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT `id`, `name`, `owner` FROM `test`.`repos` WHERE `owner` = ?) AS __count", count.SQL)
	assert.Equal(t, []any{int64(2)}, count.Args)
}

func TestFilterCondition(t *testing.T) {
	tests := []struct {
		name     string
		filter   store.Filter
		wantSQL  string
		wantArgs []any
	}{
		{"ne", store.Filter{Column: "name", Op: store.OpNe, Value: "x"}, "`name` <> ?", []any{"x"}},
		{"gt", store.Filter{Column: "id", Op: store.OpGt, Value: int64(1)}, "`id` > ?", []any{int64(1)}},
		{"gte", store.Filter{Column: "id", Op: store.OpGte, Value: int64(1)}, "`id` >= ?", []any{int64(1)}},
		{"lt", store.Filter{Column: "id", Op: store.OpLt, Value: 1.5}, "`id` < ?", []any{1.5}},
		{"lte", store.Filter{Column: "id", Op: store.OpLte, Value: int64(1)}, "`id` <= ?", []any{int64(1)}},
		{"in", store.Filter{Column: "id", Op: store.OpIn, Value: []any{int64(1), int64(2)}}, "`id` IN (?,?)", []any{int64(1), int64(2)}},
		{"notin", store.Filter{Column: "id", Op: store.OpNotIn, Value: []any{int64(1), int64(2)}}, "`id` NOT IN (?,?)", []any{int64(1), int64(2)}},
		{"notin empty", store.Filter{Column: "id", Op: store.OpNotIn, Value: []any{}}, "`id` IS NOT NULL", nil},
		{"isnull", store.Filter{Column: "name", Op: store.OpIsNull, Value: true}, "`name` IS NULL", nil},
		{"not isnull", store.Filter{Column: "name", Op: store.OpIsNull, Value: false}, "`name` IS NOT NULL", nil},
		{"contains", store.Filter{Column: "name", Op: store.OpContains, Value: "100%"}, "`name` LIKE ?", []any{`%100\%%`}},
		{"startswith", store.Filter{Column: "name", Op: store.OpStartsWith, Value: "dog_"}, "`name` LIKE ?", []any{`dog\_%`}},
		{"endswith", store.Filter{Column: "name", Op: store.OpEndsWith, Value: "er"}, "`name` LIKE ?", []any{"%er"}},
		{"like", store.Filter{Column: "name", Op: store.OpLike, Value: "d_g%"}, "`name` LIKE ?", []any{"d_g%"}},
		{"notlike", store.Filter{Column: "name", Op: store.OpNotLike, Value: "d%"}, "`name` NOT LIKE ?", []any{"d%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := filterCondition(tt.filter)
			require.NoError(t, err)
			sql, args, err := cond.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}

	_, err := filterCondition(store.Filter{Column: "id", Op: store.Op("between")})
	assert.Error(t, err)
}

func TestSeekCondition(t *testing.T) {
	keys := []string{"id"}

	cond, err := seekCondition(&store.Sort{Column: "score", Desc: true}, keys, []any{nil, int64(4)})
	require.NoError(t, err)
	sql, args, err := cond.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(`score` IS NULL AND (`id`) > (?))", sql)
	assert.Equal(t, []any{int64(4)}, args)

	cond, err = seekCondition(&store.Sort{Column: "score"}, keys, []any{nil, int64(4)})
	require.NoError(t, err)
	sql, _, err = cond.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "`score` IS NOT NULL")

	cond, err = seekCondition(&store.Sort{Column: "score", Desc: true}, keys, []any{int64(7), int64(4)})
	require.NoError(t, err)
	sql, args, err = cond.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "`score` < ?")
	assert.Contains(t, sql, "`score` IS NULL")
	assert.Equal(t, []any{int64(7), int64(7), int64(4)}, args)

	_, err = seekCondition(&store.Sort{Column: "score"}, keys, []any{int64(4)})
	assert.EqualError(t, err, "seek values: expected 2, got 1")

	cond, err = seekCondition(nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, cond)
}

func TestKeysAfter_NullableKeys(t *testing.T) {
	sql, args, err := keysAfter([]string{"a", "b"}, []any{nil, "x"}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "`a` IS NOT NULL")
	assert.Contains(t, sql, "`a` <=> ?")
	assert.Contains(t, sql, "`b` > ?")
	assert.Equal(t, []any{nil, "x"}, args)
}

func TestNormalizeWhere(t *testing.T) {
	got, err := normalizeWhere("owner = 2 AND id > 1")
	require.NoError(t, err)
	assert.Regexp(t, "^`owner` ?= ?2 AND `id` ?> ?1$", got)

	rejected := []string{
		"id IN (SELECT id FROM users)",
		"EXISTS (SELECT 1)",
		"@a := 1",
		"id > ?",
		"sleep(1) = 0",
		"1 = 1; DELETE FROM repos",
		"1 = 1 UNION SELECT 1",
		"1 = 1 ORDER BY id",
		"owner ==",
	}
	for _, fragment := range rejected {
		t.Run(fragment, func(t *testing.T) {
			_, err := normalizeWhere(fragment)
			assert.ErrorIs(t, err, ErrInvalidWhere)
		})
	}
}

func TestBooleanQuery(t *testing.T) {
	assert.Equal(t, "+dog* +spotter*", booleanQuery("dog spotter"))
	assert.Equal(t, "+dog* +spot*", booleanQuery(`+dog -"spot"`))
	assert.Equal(t, "", booleanQuery("  "))
}

func TestFetchPage(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `name`, `owner` FROM `test`.`repos` ORDER BY `id` ASC LIMIT 3")).
		WillReturnRows(reposRows().
			AddRow(int64(1), "dogspotter", int64(2)).
			AddRow(int64(2), nil, nil).
			AddRow(int64(3), "tablegraph", int64(1)))

	result, err := s.FetchPage(context.Background(), store.FetchRequest{Table: reposTable, PageSize: 2})
	require.NoError(t, err)
	assert.True(t, result.HasMore)
	assert.Nil(t, result.TotalCount)
	assert.Equal(t, []store.Row{
		{"id": int64(1), "name": "dogspotter", "owner": int64(2)},
		{"id": int64(2), "name": nil, "owner": nil},
	}, result.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_TotalCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE `owner` = ? ORDER BY `id` ASC LIMIT 11")).
		WithArgs(int64(2)).
		WillReturnRows(reposRows().AddRow(int64(1), "dogspotter", int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(1)))

	result, err := s.FetchPage(context.Background(), store.FetchRequest{
		Table:        reposTable,
		Filters:      []store.Filter{{Column: "owner", Op: store.OpEq, Value: int64(2)}},
		PageSize:     10,
		IncludeTotal: true,
	})
	require.NoError(t, err)
	assert.False(t, result.HasMore)
	require.NotNil(t, result.TotalCount)
	assert.Equal(t, 1, *result.TotalCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_Where(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("WHERE \\(`owner` ?= ?2\\) ORDER BY").
		WillReturnRows(reposRows())

	result, err := s.FetchPage(context.Background(), store.FetchRequest{Table: reposTable, Where: "owner = 2", PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = s.FetchPage(context.Background(), store.FetchRequest{Table: reposTable, Where: "id IN (SELECT id FROM users)", PageSize: 10})
	assert.ErrorIs(t, err, ErrInvalidWhere)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_InlineSearch(t *testing.T) {
	s, mock := newMockStore(t)
	users := store.TableMeta{
		Database:   "test",
		Name:       "users",
		Columns:    []store.ColumnMeta{{Name: "id", Kind: store.KindInteger}, {Name: "name", Kind: store.KindText}, {Name: "bio", Kind: store.KindText}},
		PrimaryKey: []string{"id"},
		FTS:        &store.FTSMeta{Table: "users", Key: "id", Columns: []string{"name", "bio"}},
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM `test`.`users` WHERE MATCH(`name`, `bio`) AGAINST (? IN BOOLEAN MODE) ORDER BY `id` ASC")).
		WithArgs("+dog* +spot*").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "bio"}).AddRow(int64(1), "cleopaws", "dog spotter"))

	result, err := s.FetchPage(context.Background(), store.FetchRequest{Table: users, Search: "dog spot", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "cleopaws", result.Rows[0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_ExternalSearchTable(t *testing.T) {
	s, mock := newMockStore(t)
	// A view has no primary key, so fts_pk picks the column joined to the
	// search table even though it is not the first one.
	view := store.TableMeta{
		Database: "test",
		Name:     "repos_view",
		IsView:   true,
		Columns: []store.ColumnMeta{
			{Name: "name", Kind: store.KindText, Nullable: true},
			{Name: "id", Kind: store.KindInteger},
			{Name: "owner", Kind: store.KindInteger, Nullable: true},
		},
	}
	table := view.WithOverride(store.Override{FTSTable: "repos_fts", FTSKey: "id"})
	viewRows := func() *sqlmock.Rows { return sqlmock.NewRows([]string{"name", "id", "owner"}) }

	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").
		WithArgs("test", "repos_fts").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("repo_id"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("test", "repos_fts").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME"}).
			AddRow("ft_repos", "name").
			AddRow("ft_repos", "description"))
	searchSQL := regexp.QuoteMeta("WHERE `id` IN (SELECT `repo_id` FROM `test`.`repos_fts` WHERE MATCH(`name`, `description`) AGAINST (? IN BOOLEAN MODE))")
	mock.ExpectQuery(searchSQL).
		WithArgs("+dogspotter*").
		WillReturnRows(viewRows().AddRow("dogspotter", int64(1), int64(2)))
	mock.ExpectQuery(searchSQL).
		WithArgs("+tablegraph*").
		WillReturnRows(viewRows())

	result, err := s.FetchPage(context.Background(), store.FetchRequest{Table: table, Search: "dogspotter", PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)

	// The search table is described once.
	result, err = s.FetchPage(context.Background(), store.FetchRequest{Table: table, Search: "tablegraph", PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_SearchTableWithoutPrimaryKey(t *testing.T) {
	s, mock := newMockStore(t)
	table := reposTable.WithOverride(store.Override{FTSTable: "repos_fts"})

	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").
		WithArgs("test", "repos_fts").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").
		WithArgs("test", "repos_fts").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME"}).AddRow("ft_repos", "name"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE `id` IN (SELECT `_tidb_rowid` FROM `test`.`repos_fts` WHERE MATCH(`name`) AGAINST (? IN BOOLEAN MODE))")).
		WithArgs("+dog*").
		WillReturnRows(reposRows())

	_, err := s.FetchPage(context.Background(), store.FetchRequest{Table: table, Search: "dog", PageSize: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_SearchUnsupported(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.FetchPage(context.Background(), store.FetchRequest{Table: reposTable, Search: "dog", PageSize: 10})
	assert.ErrorIs(t, err, store.ErrUnsupported)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_WrapsQueryErrors(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `test`.`repos`").WillReturnError(errors.New("boom"))

	_, err := s.FetchPage(context.Background(), store.FetchRequest{Table: reposTable, PageSize: 10})
	assert.EqualError(t, err, "fetch test.repos: boom")
}

func TestFetchByKey(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `test`.`repos` WHERE (`id` = ?) LIMIT 1")).
		WithArgs(int64(1)).
		WillReturnRows(reposRows().AddRow(int64(1), "dogspotter", int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `test`.`repos` WHERE (`id` = ?) LIMIT 1")).
		WithArgs(int64(99)).
		WillReturnRows(reposRows())

	row, err := s.FetchByKey(context.Background(), reposTable, map[string]any{"id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, store.Row{"id": int64(1), "name": "dogspotter", "owner": int64(2)}, row)

	row, err = s.FetchByKey(context.Background(), reposTable, map[string]any{"id": int64(99)})
	require.NoError(t, err)
	assert.Nil(t, row)

	_, err = s.FetchByKey(context.Background(), reposTable, map[string]any{"name": "x"})
	assert.EqualError(t, err, "missing key column id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPage_RowID(t *testing.T) {
	s, mock := newMockStore(t)
	logs := store.TableMeta{
		Database:    "test",
		Name:        "logs",
		Columns:     []store.ColumnMeta{{Name: "message", Kind: store.KindText}, {Name: "payload", Kind: store.KindBlob, Nullable: true}},
		RowIDColumn: "_tidb_rowid",
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `message`, `payload`, `_tidb_rowid` FROM `test`.`logs` ORDER BY `_tidb_rowid` ASC LIMIT 2")).
		WillReturnRows(sqlmock.NewRows([]string{"message", "payload", "_tidb_rowid"}).
			AddRow("hello", []byte{0x01, 0x02}, int64(7)))

	result, err := s.FetchPage(context.Background(), store.FetchRequest{Table: logs, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, []store.Row{{"message": "hello", "payload": []byte{0x01, 0x02}, "_tidb_rowid": int64(7)}}, result.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
