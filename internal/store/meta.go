package store

import "slices"

// Kind is the inferred scalar kind of a column.
type Kind string

const (
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindText    Kind = "text"
	KindBlob    Kind = "blob"
	KindJSON    Kind = "json"
)

// ColumnMeta describes one column.
type ColumnMeta struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// ForeignKey links Column to RefTable.RefColumn in the same database.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// FTSMeta associates a table with a full-text search source. Table is the
// table holding the index (the table itself for inline indexes). For a
// separate search table, rows whose SourceKey value appears in the search
// table's Key column match.
type FTSMeta struct {
	Table string
	// Key is a column of the search table. Empty means the search table's
	// own key column.
	Key string
	// SourceKey is a column of the searched table. Empty means its first key
	// column.
	SourceKey string
	Columns   []string
}

// TableMeta is immutable metadata for one table or view.
type TableMeta struct {
	Database   string
	Name       string
	IsView     bool
	Columns    []ColumnMeta
	PrimaryKey []string
	// RowIDColumn names the backend's hidden row id used when PrimaryKey is
	// empty. Empty when the backend has none (views).
	RowIDColumn string
	ForeignKeys []ForeignKey
	FTS         *FTSMeta
	// JSONColumns lists text columns declared to hold JSON documents.
	JSONColumns []string
}

// Column looks up a column by raw name.
func (t TableMeta) Column(name string) (ColumnMeta, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnMeta{}, false
}

// UsesRowID reports whether the table is keyed by the backend row id.
func (t TableMeta) UsesRowID() bool {
	return len(t.PrimaryKey) == 0 && t.RowIDColumn != ""
}

// KeyColumns returns the stable default ordering: the primary key, the row
// id, or every column when the table has neither.
func (t TableMeta) KeyColumns() []string {
	if len(t.PrimaryKey) > 0 {
		return t.PrimaryKey
	}
	if t.RowIDColumn != "" {
		return []string{t.RowIDColumn}
	}
	cols := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		cols[i] = col.Name
	}
	return cols
}

// IsJSONColumn reports whether name holds JSON, either by type or by declaration.
func (t TableMeta) IsJSONColumn(name string) bool {
	if slices.Contains(t.JSONColumns, name) {
		return true
	}
	col, ok := t.Column(name)
	return ok && col.Kind == KindJSON
}

// SearchSourceKey is the searched table's column joined to a separate search
// table.
func (t TableMeta) SearchSourceKey() string {
	if t.FTS != nil && t.FTS.SourceKey != "" {
		return t.FTS.SourceKey
	}
	if keys := t.KeyColumns(); len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// Searchable reports whether the table accepts a search argument.
func (t TableMeta) Searchable() bool {
	return t.FTS != nil
}

// Override holds per-table configuration applied on top of introspected
// metadata.
type Override struct {
	JSONColumns []string `mapstructure:"json_columns" json:"json_columns,omitempty"`
	FTSTable    string   `mapstructure:"fts_table" json:"fts_table,omitempty"`
	// FTSKey names this table's column matched against the search table's key.
	FTSKey string `mapstructure:"fts_pk" json:"fts_pk,omitempty"`
}

// WithOverride returns a copy of t with o applied. A search table override
// replaces any detected index; its key and indexed columns are resolved by
// the backend.
func (t TableMeta) WithOverride(o Override) TableMeta {
	out := t
	if len(o.JSONColumns) > 0 {
		out.JSONColumns = append(slices.Clone(t.JSONColumns), o.JSONColumns...)
	}
	if o.FTSTable != "" {
		out.FTS = &FTSMeta{Table: o.FTSTable, SourceKey: o.FTSKey}
	}
	return out
}
