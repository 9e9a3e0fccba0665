// Package schemafilter applies allow/deny filters to introspected tables
// before types are generated for them.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"tablegraph/internal/store"
)

// Config controls allow/deny filters for tables and columns. Patterns are
// case-insensitive path.Match globs; the "*" key of a column map applies to
// every table.
type Config struct {
	AllowTables  []string            `mapstructure:"allow_tables" json:"allow_tables,omitempty"`
	DenyTables   []string            `mapstructure:"deny_tables" json:"deny_tables,omitempty"`
	SkipViews    bool                `mapstructure:"skip_views" json:"skip_views,omitempty"`
	AllowColumns map[string][]string `mapstructure:"allow_columns" json:"allow_columns,omitempty"`
	DenyColumns  map[string][]string `mapstructure:"deny_columns" json:"deny_columns,omitempty"`
}

// IsZero reports whether cfg filters nothing.
func (cfg Config) IsZero() bool {
	return len(cfg.AllowTables) == 0 && len(cfg.DenyTables) == 0 && !cfg.SkipViews &&
		len(cfg.AllowColumns) == 0 && len(cfg.DenyColumns) == 0
}

// Apply returns the tables and columns that pass cfg. Missing allow lists
// default to allow-all; deny rules always win. Key columns survive column
// filters so pagination keeps a stable order. Foreign keys, search indexes
// and JSON declarations that reference removed columns or tables are dropped.
func Apply(tables []store.TableMeta, cfg Config) []store.TableMeta {
	if cfg.IsZero() {
		return tables
	}

	filtered := make([]store.TableMeta, 0, len(tables))
	for _, table := range tables {
		if table.IsView && cfg.SkipViews {
			continue
		}
		if !tableAllowed(table.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}
		keys := table.PrimaryKey
		columns := make([]store.ColumnMeta, 0, len(table.Columns))
		for _, column := range table.Columns {
			if slices.Contains(keys, column.Name) || columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
				columns = append(columns, column)
			}
		}
		if len(columns) == 0 {
			continue
		}
		table.Columns = columns
		filtered = append(filtered, table)
	}

	allowed := make(map[string]map[string]bool, len(filtered))
	for _, table := range filtered {
		cols := make(map[string]bool, len(table.Columns))
		for _, col := range table.Columns {
			cols[col.Name] = true
		}
		allowed[table.Database+"."+table.Name] = cols
	}

	for i := range filtered {
		table := &filtered[i]
		own := allowed[table.Database+"."+table.Name]
		table.ForeignKeys = filterForeignKeys(table.Database, table.ForeignKeys, own, allowed)
		table.JSONColumns = keepAllowed(table.JSONColumns, own)
		if table.FTS != nil && table.FTS.Table == table.Name {
			fts := *table.FTS
			fts.Columns = keepAllowed(fts.Columns, own)
			if len(fts.Columns) == 0 {
				table.FTS = nil
			} else {
				table.FTS = &fts
			}
		}
	}
	return filtered
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	denyPatterns := mergePatterns(deny, table)
	if matchesAny(column, denyPatterns) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

func filterForeignKeys(database string, fks []store.ForeignKey, own map[string]bool, allowed map[string]map[string]bool) []store.ForeignKey {
	filtered := make([]store.ForeignKey, 0, len(fks))
	for _, fk := range fks {
		if !own[fk.Column] {
			continue
		}
		remote, ok := allowed[database+"."+fk.RefTable]
		if !ok {
			continue
		}
		if fk.RefColumn != "" && !remote[fk.RefColumn] {
			continue
		}
		filtered = append(filtered, fk)
	}
	return filtered
}

func keepAllowed(columns []string, own map[string]bool) []string {
	if columns == nil {
		return nil
	}
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if own[col] {
			out = append(out, col)
		}
	}
	return out
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
