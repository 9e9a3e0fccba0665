package introspection

import (
	"fmt"
	"sort"

	"tablegraph/internal/store"
)

// foreignKeyRow is one KEY_COLUMN_USAGE row of a foreign key constraint.
type foreignKeyRow struct {
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
	OrdinalPosition  int
}

// foreignKeyConstraint groups per-column KEY_COLUMN_USAGE rows into an ordered FK constraint mapping.
type foreignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// foreignKeyConstraints groups rows into constraints with deterministic ordering.
func foreignKeyConstraints(fkRows []foreignKeyRow) []foreignKeyConstraint {
	if len(fkRows) == 0 {
		return nil
	}

	type row struct {
		key   string
		fk    foreignKeyRow
		index int
	}
	rows := make([]row, 0, len(fkRows))
	for i, fk := range fkRows {
		key := fk.ConstraintName
		if key == "" {
			// Unnamed constraints appear in tests; keep them isolated to avoid accidental merging.
			key = fmt.Sprintf("__unnamed_%d", i)
		}
		rows = append(rows, row{key: key, fk: fk, index: i})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key < rows[j].key
		}
		iPos := rows[i].fk.OrdinalPosition
		jPos := rows[j].fk.OrdinalPosition
		if iPos != jPos {
			if iPos == 0 {
				return false
			}
			if jPos == 0 {
				return true
			}
			return iPos < jPos
		}
		if rows[i].fk.ColumnName != rows[j].fk.ColumnName {
			return rows[i].fk.ColumnName < rows[j].fk.ColumnName
		}
		return rows[i].index < rows[j].index
	})

	orderedKeys := make([]string, 0)
	keySeen := make(map[string]struct{})
	grouped := make(map[string]*foreignKeyConstraint)

	for _, item := range rows {
		group, ok := grouped[item.key]
		if !ok {
			group = &foreignKeyConstraint{
				ConstraintName:  item.fk.ConstraintName,
				ReferencedTable: item.fk.ReferencedTable,
			}
			grouped[item.key] = group
			if _, exists := keySeen[item.key]; !exists {
				keySeen[item.key] = struct{}{}
				orderedKeys = append(orderedKeys, item.key)
			}
		}
		group.ColumnNames = append(group.ColumnNames, item.fk.ColumnName)
		group.ReferencedColumns = append(group.ReferencedColumns, item.fk.ReferencedColumn)
	}

	result := make([]foreignKeyConstraint, 0, len(orderedKeys))
	for _, key := range orderedKeys {
		result = append(result, *grouped[key])
	}
	return result
}

// singleColumnForeignKeys keeps the constraints a relation field can follow.
// Composite constraints have no single column to replace and are skipped.
func singleColumnForeignKeys(rows []foreignKeyRow) []store.ForeignKey {
	var fks []store.ForeignKey
	for _, c := range foreignKeyConstraints(rows) {
		if len(c.ColumnNames) != 1 {
			continue
		}
		fks = append(fks, store.ForeignKey{
			Column:    c.ColumnNames[0],
			RefTable:  c.ReferencedTable,
			RefColumn: c.ReferencedColumns[0],
		})
	}
	return fks
}
