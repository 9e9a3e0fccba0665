package introspection

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"tablegraph/internal/dbexec"
	"tablegraph/internal/store"
)

func expectTable(mock sqlmock.Sqlmock, db, table string, columns [][]driver.Value, pks []string, fks [][]driver.Value, fulltext [][]driver.Value) {
	colRows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"})
	for _, c := range columns {
		colRows.AddRow(c...)
	}
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WithArgs(db, table).WillReturnRows(colRows)

	if pks == nil && fks == nil && fulltext == nil {
		return
	}

	pkRows := sqlmock.NewRows([]string{"COLUMN_NAME"})
	for _, pk := range pks {
		pkRows.AddRow(pk)
	}
	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").WithArgs(db, table).WillReturnRows(pkRows)

	fkRows := sqlmock.NewRows([]string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"})
	for _, fk := range fks {
		fkRows.AddRow(fk...)
	}
	mock.ExpectQuery("REFERENCED_TABLE_NAME IS NOT NULL").WithArgs(db, table).WillReturnRows(fkRows)

	ftRows := sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME"})
	for _, ft := range fulltext {
		ftRows.AddRow(ft...)
	}
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").WithArgs(db, table).WillReturnRows(ftRows)
}

func TestListTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT VERSION\\(\\)").WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.11-TiDB-v8.5.0"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WithArgs("test").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).
			AddRow("logs", "BASE TABLE").
			AddRow("repos", "BASE TABLE").
			AddRow("view_on_repos", "VIEW"),
	)
	expectTable(mock, "test", "logs",
		[][]driver.Value{{"message", "text", "YES"}},
		[]string{}, [][]driver.Value{}, [][]driver.Value{},
	)
	expectTable(mock, "test", "repos",
		[][]driver.Value{{"id", "bigint", "NO"}, {"full_name", "varchar", "YES"}, {"description", "text", "YES"}, {"owner", "int", "YES"}, {"tags", "json", "YES"}, {"avatar", "blob", "YES"}},
		[]string{"id"},
		[][]driver.Value{{"owner", "users", "id", "repos_ibfk_1", 1}},
		[][]driver.Value{{"ft_name", "full_name"}, {"ft_all", "full_name"}, {"ft_all", "description"}},
	)
	expectTable(mock, "test", "view_on_repos",
		[][]driver.Value{{"id", "bigint", "NO"}, {"full_name", "varchar", "YES"}},
		nil, nil, nil,
	)

	got, err := ListTables(context.Background(), dbexec.NewStandardExecutor(db), "test")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	want := []store.TableMeta{
		{
			Database:    "test",
			Name:        "logs",
			Columns:     []store.ColumnMeta{{Name: "message", Kind: store.KindText, Nullable: true}},
			RowIDColumn: TiDBRowIDColumn,
		},
		{
			Database: "test",
			Name:     "repos",
			Columns: []store.ColumnMeta{
				{Name: "id", Kind: store.KindInteger},
				{Name: "full_name", Kind: store.KindText, Nullable: true},
				{Name: "description", Kind: store.KindText, Nullable: true},
				{Name: "owner", Kind: store.KindInteger, Nullable: true},
				{Name: "tags", Kind: store.KindJSON, Nullable: true},
				{Name: "avatar", Kind: store.KindBlob, Nullable: true},
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []store.ForeignKey{{Column: "owner", RefTable: "users", RefColumn: "id"}},
			FTS:         &store.FTSMeta{Table: "repos", Key: "id", Columns: []string{"full_name", "description"}},
		},
		{
			Database: "test",
			Name:     "view_on_repos",
			IsView:   true,
			Columns: []store.ColumnMeta{
				{Name: "id", Kind: store.KindInteger},
				{Name: "full_name", Kind: store.KindText, Nullable: true},
			},
		},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d tables, got %d", len(want), len(got))
	}
	for i := range want {
		if len(got[i].PrimaryKey) == 0 {
			got[i].PrimaryKey = nil
		}
		if len(got[i].ForeignKeys) == 0 {
			got[i].ForeignKeys = nil
		}
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("table %s:\n got  %#v\n want %#v", want[i].Name, got[i], want[i])
		}
	}
}

func TestListTables_MySQLHasNoRowID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT VERSION\\(\\)").WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WithArgs("test").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).AddRow("logs", "BASE TABLE"),
	)
	expectTable(mock, "test", "logs", [][]driver.Value{{"message", "text", "YES"}}, []string{}, [][]driver.Value{}, [][]driver.Value{})

	got, err := ListTables(context.Background(), dbexec.NewStandardExecutor(db), "test")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if len(got) != 1 || got[0].RowIDColumn != "" {
		t.Fatalf("expected no row id column on MySQL, got %#v", got)
	}
	if keys := got[0].KeyColumns(); len(keys) != 1 || keys[0] != "message" {
		t.Fatalf("expected every column as implicit key, got %v", keys)
	}
}

func TestListTables_WrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("access denied")
	mock.ExpectQuery("SELECT VERSION\\(\\)").WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WithArgs("test").WillReturnError(boom)

	_, err = ListTables(context.Background(), dbexec.NewStandardExecutor(db), "test")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to get tables") {
		t.Fatalf("expected context in error, got %v", err)
	}
}

func TestFullTextMeta(t *testing.T) {
	if fullTextMeta("repos", []string{"id"}, nil) != nil {
		t.Fatalf("expected nil without indexes")
	}
	meta := fullTextMeta("pairs", []string{"a", "b"}, []fullTextIndex{{Name: "ft", Columns: []string{"body"}}})
	if meta == nil || meta.Key != "" || meta.Table != "pairs" {
		t.Fatalf("unexpected meta for compound key: %#v", meta)
	}
}
