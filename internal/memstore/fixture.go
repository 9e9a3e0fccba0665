package memstore

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"tablegraph/internal/sqltype"
	"tablegraph/internal/store"
)

// Fixture is the YAML layout accepted by LoadFixture.
//
//	databases:
//	  test:
//	    - name: users
//	      primary_key: [id]
//	      columns:
//	        - {name: id, type: int}
//	        - {name: name, type: varchar(64), nullable: true}
//	      rows:
//	        - {id: 1, name: alice}
type Fixture struct {
	Databases map[string][]FixtureTable `yaml:"databases"`
}

// FixtureTable describes one table and its rows.
type FixtureTable struct {
	Name        string              `yaml:"name"`
	View        bool                `yaml:"view"`
	PrimaryKey  []string            `yaml:"primary_key"`
	Columns     []FixtureColumn     `yaml:"columns"`
	ForeignKeys []FixtureForeignKey `yaml:"foreign_keys"`
	Search      *FixtureSearch      `yaml:"search"`
	JSONColumns []string            `yaml:"json_columns"`
	Rows        []map[string]any    `yaml:"rows"`
}

// FixtureColumn is a column with its SQL type name.
type FixtureColumn struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

// FixtureForeignKey links Column to RefTable.RefColumn.
type FixtureForeignKey struct {
	Column    string `yaml:"column"`
	RefTable  string `yaml:"ref_table"`
	RefColumn string `yaml:"ref_column"`
}

// FixtureSearch enables full-text search over Columns, optionally through a
// separate index table. Key is the index table's join column and SourceKey
// the searched table's.
type FixtureSearch struct {
	Table     string   `yaml:"table"`
	Key       string   `yaml:"key"`
	SourceKey string   `yaml:"source_key"`
	Columns   []string `yaml:"columns"`
}

// LoadFixtureFile reads a fixture from disk into a new store.
func LoadFixtureFile(path string, opts ...Option) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return LoadFixture(f, opts...)
}

// LoadFixture decodes a YAML fixture into a new store.
func LoadFixture(r io.Reader, opts ...Option) (*Store, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	s := New(opts...)
	for database, tables := range fx.Databases {
		for _, ft := range tables {
			meta, err := ft.meta(database)
			if err != nil {
				return nil, err
			}
			rows := make([]store.Row, 0, len(ft.Rows))
			for _, raw := range ft.Rows {
				rows = append(rows, store.Row(raw))
			}
			s.AddTable(meta, rows...)
		}
	}
	return s, nil
}

func (ft FixtureTable) meta(database string) (store.TableMeta, error) {
	if ft.Name == "" {
		return store.TableMeta{}, fmt.Errorf("fixture table in %s has no name", database)
	}
	meta := store.TableMeta{
		Database:    database,
		Name:        ft.Name,
		IsView:      ft.View,
		PrimaryKey:  ft.PrimaryKey,
		JSONColumns: ft.JSONColumns,
	}
	for _, col := range ft.Columns {
		meta.Columns = append(meta.Columns, store.ColumnMeta{
			Name:     col.Name,
			Kind:     sqltype.KindOf(col.Type),
			Nullable: col.Nullable,
		})
	}
	for _, key := range ft.PrimaryKey {
		if _, ok := meta.Column(key); !ok {
			return store.TableMeta{}, fmt.Errorf("fixture table %s.%s: primary key column %q not declared", database, ft.Name, key)
		}
	}
	for _, fk := range ft.ForeignKeys {
		meta.ForeignKeys = append(meta.ForeignKeys, store.ForeignKey{
			Column:    fk.Column,
			RefTable:  fk.RefTable,
			RefColumn: fk.RefColumn,
		})
	}
	if ft.Search != nil {
		meta.FTS = &store.FTSMeta{
			Table:     ft.Search.Table,
			Key:       ft.Search.Key,
			SourceKey: ft.Search.SourceKey,
			Columns:   ft.Search.Columns,
		}
	}
	return meta, nil
}
