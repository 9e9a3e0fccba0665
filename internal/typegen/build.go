package typegen

import (
	"fmt"

	"tablegraph/internal/naming"
	"tablegraph/internal/store"
)

// rowIDField is the exposed name of the backend row id on tables without a
// primary key.
const rowIDField = "rowid"

// collectionArgs are argument names taken by collection and row fields.
var collectionArgs = map[string]bool{
	"filter": true, "where": true, "first": true, "after": true,
	"sort": true, "sort_desc": true, "sortDesc": true, "search": true,
}

// Build synthesizes the types for one table. exposed is the raw base name the
// table is published under (normally the table name). Relation fields are
// added by Compile, which sees every table.
func Build(meta store.TableMeta, exposed string, m *naming.Mapper) *TypeSet {
	field := m.Map(exposed, naming.RoleTable)
	typeName := m.Map(exposed, naming.RoleType)

	ts := &TypeSet{
		Key:                 TableKey(meta.Database, meta.Name),
		Table:               meta,
		RowType:             typeName,
		RowFieldName:        m.Join(field, "row"),
		CollectionType:      typeName + "Collection",
		CollectionFieldName: field,
		EdgeType:            typeName + "Edge",
		FilterInput:         typeName + "Filter",
		SortEnum:            typeName + "Sort",
		SortDescEnum:        typeName + "SortDesc",
		SortDescArg:         m.Join("sort", "desc"),
		Searchable:          meta.Searchable(),
		Description:         fmt.Sprintf("Row in the %s table", meta.Name),

		RowFieldDescription:   fmt.Sprintf("Look up a single %s by key or by the first match", m.Singularize(meta.Name)),
		CollectionDescription: fmt.Sprintf("Rows from the %s table", meta.Name),
	}
	if meta.IsView {
		ts.Description = fmt.Sprintf("Row in the %s view", meta.Name)
	}

	for _, col := range meta.Columns {
		kind := col.Kind
		if meta.IsJSONColumn(col.Name) {
			kind = store.KindJSON
		}
		name := m.Map(col.Name, naming.RoleColumn)
		ts.Fields = append(ts.Fields, Field{
			Name:       name,
			Kind:       FieldColumn,
			Column:     col.Name,
			ColumnKind: kind,
			Scalar:     scalarFor(kind),
		})
		ts.FilterFields = append(ts.FilterFields, FilterField{
			Name:   name,
			Column: col.Name,
			Kind:   kind,
			Input:  OperationsInput(kind),
		})
		ts.SortValues = append(ts.SortValues, EnumValue{
			Name:   m.Map(col.Name, naming.RoleEnumValue),
			Column: col.Name,
		})
	}

	if meta.UsesRowID() && !hasFieldNamed(ts.Fields, rowIDField) {
		ts.Fields = append(ts.Fields, Field{
			Name:       rowIDField,
			Kind:       FieldColumn,
			Column:     meta.RowIDColumn,
			ColumnKind: store.KindInteger,
			Scalar:     ScalarInt,
		})
		ts.FilterFields = append(ts.FilterFields, FilterField{
			Name:   rowIDField,
			Column: meta.RowIDColumn,
			Kind:   store.KindInteger,
			Input:  OperationsInput(store.KindInteger),
		})
		ts.SortValues = append(ts.SortValues, EnumValue{Name: rowIDField, Column: meta.RowIDColumn})
		ts.KeyArgs = []KeyArg{{Name: rowIDField, Column: meta.RowIDColumn, Scalar: ScalarInt}}
	}

	for _, pk := range meta.PrimaryKey {
		col, ok := meta.Column(pk)
		if !ok {
			continue
		}
		name := m.Map(pk, naming.RoleColumn)
		if collectionArgs[name] {
			name += "_"
		}
		ts.KeyArgs = append(ts.KeyArgs, KeyArg{Name: name, Column: pk, Scalar: OperandScalar(col.Kind)})
	}

	return ts
}

func scalarFor(kind store.Kind) ScalarType {
	switch kind {
	case store.KindInteger:
		return ScalarInt
	case store.KindFloat:
		return ScalarFloat
	case store.KindJSON:
		return ScalarJSON
	default:
		return ScalarString
	}
}

func hasFieldNamed(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
