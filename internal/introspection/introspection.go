// Package introspection discovers table metadata from MySQL/TiDB's information_schema.
// It extracts tables, columns, primary keys, single-column foreign keys and
// FULLTEXT indexes for use in GraphQL schema generation.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tablegraph/internal/dbexec"
	"tablegraph/internal/sqltype"
	"tablegraph/internal/store"
)

// TiDBRowIDColumn is TiDB's hidden row id, present on tables without a
// clustered primary key.
const TiDBRowIDColumn = "_tidb_rowid"

const (
	tablesQuery = `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME`

	columnsQuery = `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	primaryKeyQuery = `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION`

	// Only references inside the same schema become relations.
	foreignKeyQuery = `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME,
			CONSTRAINT_NAME, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
			AND (REFERENCED_TABLE_SCHEMA IS NULL OR REFERENCED_TABLE_SCHEMA = TABLE_SCHEMA)
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`

	fullTextQuery = `
		SELECT INDEX_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_TYPE = 'FULLTEXT'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`
)

var tracer = otel.Tracer("tablegraph/introspection")

// ListTables reads metadata for every table and view in databaseName,
// ordered by name.
func ListTables(ctx context.Context, db dbexec.QueryExecutor, databaseName string) (metas []store.TableMeta, err error) {
	ctx, span := tracer.Start(ctx, "introspection.list_tables",
		trace.WithAttributes(attribute.String("db.name", databaseName)))
	defer func() {
		endSpan(span, err)
	}()

	tidb, err := isTiDB(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to detect server flavor: %w", err)
	}

	type tableRow struct {
		name   string
		isView bool
	}
	tables, err := collect(ctx, db, "introspection.get_tables", tablesQuery, []any{databaseName},
		func(rows dbexec.Rows) (tableRow, error) {
			var t tableRow
			var kind string
			err := rows.Scan(&t.name, &kind)
			t.isView = strings.EqualFold(kind, "VIEW")
			return t, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	metas = make([]store.TableMeta, 0, len(tables))
	for _, t := range tables {
		meta := store.TableMeta{Database: databaseName, Name: t.name, IsView: t.isView}
		if meta.Columns, err = getColumns(ctx, db, databaseName, t.name); err != nil {
			return nil, fmt.Errorf("failed to get columns for %s: %w", t.name, err)
		}
		if !t.isView {
			if err := describeTable(ctx, db, &meta, tidb); err != nil {
				return nil, err
			}
		}
		metas = append(metas, meta)
	}

	span.SetAttributes(attribute.Int("db.tables", len(metas)))
	return metas, nil
}

// describeTable fills the key, relation and search metadata of a base table.
func describeTable(ctx context.Context, db dbexec.QueryExecutor, meta *store.TableMeta, tidb bool) error {
	var err error
	if meta.PrimaryKey, err = getPrimaryKeys(ctx, db, meta.Database, meta.Name); err != nil {
		return fmt.Errorf("failed to get primary keys for table %s: %w", meta.Name, err)
	}
	if tidb && len(meta.PrimaryKey) == 0 {
		meta.RowIDColumn = TiDBRowIDColumn
	}

	fks, err := getForeignKeys(ctx, db, meta.Database, meta.Name)
	if err != nil {
		return fmt.Errorf("failed to get foreign keys for table %s: %w", meta.Name, err)
	}
	meta.ForeignKeys = singleColumnForeignKeys(fks)

	indexes, err := getFullTextIndexes(ctx, db, meta.Database, meta.Name)
	if err != nil {
		return fmt.Errorf("failed to get indexes for table %s: %w", meta.Name, err)
	}
	meta.FTS = fullTextMeta(meta.Name, meta.PrimaryKey, indexes)
	return nil
}

func isTiDB(ctx context.Context, db dbexec.QueryExecutor) (bool, error) {
	versions, err := collect(ctx, db, "", "SELECT VERSION()", nil, scanString)
	if err != nil || len(versions) == 0 {
		return false, err
	}
	return strings.Contains(strings.ToLower(versions[0]), "tidb"), nil
}

func getColumns(ctx context.Context, db dbexec.QueryExecutor, databaseName, tableName string) ([]store.ColumnMeta, error) {
	return collect(ctx, db, "introspection.get_columns", columnsQuery, []any{databaseName, tableName},
		func(rows dbexec.Rows) (store.ColumnMeta, error) {
			var col store.ColumnMeta
			var dataType, nullable string
			if err := rows.Scan(&col.Name, &dataType, &nullable); err != nil {
				return col, err
			}
			col.Kind = sqltype.KindOf(dataType)
			col.Nullable = strings.EqualFold(nullable, "YES")
			return col, nil
		})
}

func getPrimaryKeys(ctx context.Context, db dbexec.QueryExecutor, databaseName, tableName string) ([]string, error) {
	return collect(ctx, db, "introspection.get_primary_keys", primaryKeyQuery, []any{databaseName, tableName}, scanString)
}

func getForeignKeys(ctx context.Context, db dbexec.QueryExecutor, databaseName, tableName string) ([]foreignKeyRow, error) {
	return collect(ctx, db, "introspection.get_foreign_keys", foreignKeyQuery, []any{databaseName, tableName},
		func(rows dbexec.Rows) (foreignKeyRow, error) {
			var fk foreignKeyRow
			err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition)
			return fk, err
		})
}

// fullTextIndex is one FULLTEXT index with its ordered columns.
type fullTextIndex struct {
	Name    string
	Columns []string
}

// getFullTextIndexes groups FULLTEXT index columns by index, sorted by index
// name.
func getFullTextIndexes(ctx context.Context, db dbexec.QueryExecutor, databaseName, tableName string) ([]fullTextIndex, error) {
	type indexColumn struct {
		index  string
		column sql.NullString
	}
	cols, err := collect(ctx, db, "introspection.get_indexes", fullTextQuery, []any{databaseName, tableName},
		func(rows dbexec.Rows) (indexColumn, error) {
			var c indexColumn
			err := rows.Scan(&c.index, &c.column)
			return c, err
		})
	if err != nil {
		return nil, err
	}

	var indexes []fullTextIndex
	for _, c := range cols {
		if !c.column.Valid {
			continue
		}
		// Rows arrive ordered by index name, so a new name starts a new index.
		if n := len(indexes); n == 0 || indexes[n-1].Name != c.index {
			indexes = append(indexes, fullTextIndex{Name: c.index})
		}
		last := &indexes[len(indexes)-1]
		last.Columns = append(last.Columns, c.column.String)
	}
	slices.SortStableFunc(indexes, func(a, b fullTextIndex) int { return strings.Compare(a.Name, b.Name) })
	return indexes, nil
}

// SearchSource describes a separate search table: its key column and the
// columns of its widest FULLTEXT index. The key is the first primary key
// column, else TiDB's row id. Columns is nil when the table has no index.
func SearchSource(ctx context.Context, db dbexec.QueryExecutor, databaseName, tableName string) (*store.FTSMeta, error) {
	pk, err := getPrimaryKeys(ctx, db, databaseName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get primary keys for table %s: %w", tableName, err)
	}
	indexes, err := getFullTextIndexes(ctx, db, databaseName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get indexes for table %s: %w", tableName, err)
	}

	src := &store.FTSMeta{Table: tableName, Key: TiDBRowIDColumn}
	if len(pk) > 0 {
		src.Key = pk[0]
	}
	if meta := fullTextMeta(tableName, nil, indexes); meta != nil {
		src.Columns = meta.Columns
	}
	return src, nil
}

// fullTextMeta picks the widest FULLTEXT index. MATCH needs the exact
// column list of one index, so indexes are never merged.
func fullTextMeta(tableName string, primaryKey []string, indexes []fullTextIndex) *store.FTSMeta {
	if len(indexes) == 0 {
		return nil
	}
	best := indexes[0]
	for _, idx := range indexes[1:] {
		if len(idx.Columns) > len(best.Columns) {
			best = idx
		}
	}
	key := ""
	if len(primaryKey) == 1 {
		key = primaryKey[0]
	}
	return &store.FTSMeta{Table: tableName, Key: key, Columns: best.Columns}
}

func scanString(rows dbexec.Rows) (string, error) {
	var s string
	err := rows.Scan(&s)
	return s, err
}

// collect runs query and scans every row with scan. With a span name the
// query gets its own span, tagged from the leading database and table args.
func collect[T any](ctx context.Context, db dbexec.QueryExecutor, spanName, query string, args []any, scan func(dbexec.Rows) (T, error)) (out []T, err error) {
	if spanName != "" {
		var span trace.Span
		ctx, span = tracer.Start(ctx, spanName, trace.WithAttributes(argAttributes(args)...))
		defer func() {
			endSpan(span, err)
		}()
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func argAttributes(args []any) []attribute.KeyValue {
	keys := []string{"db.name", "db.table"}
	var attrs []attribute.KeyValue
	for i, arg := range args {
		if s, ok := arg.(string); ok && i < len(keys) {
			attrs = append(attrs, attribute.String(keys[i], s))
		}
	}
	return attrs
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
