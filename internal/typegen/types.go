// Package typegen turns table metadata into schema descriptors: plain data
// describing every generated type, field and argument. It has no dependency
// on the GraphQL execution engine; the resolver package turns a Plan into an
// executable schema.
package typegen

import "tablegraph/internal/store"

// ScalarType is the exposed scalar for a column.
type ScalarType string

const (
	ScalarInt    ScalarType = "Int"
	ScalarFloat  ScalarType = "Float"
	ScalarString ScalarType = "String"
	ScalarJSON   ScalarType = "JSON"
)

// Shared type names emitted once per schema.
const (
	PageInfoType = "PageInfo"
	JSONScalar   = "JSON"
)

// OperationsInput names the operator input type for a column kind.
func OperationsInput(kind store.Kind) string {
	switch kind {
	case store.KindInteger:
		return "IntegerOperations"
	case store.KindFloat:
		return "FloatOperations"
	case store.KindText:
		return "StringOperations"
	case store.KindBlob:
		return "BlobOperations"
	default:
		return "JSONOperations"
	}
}

// OperandScalar is the scalar used for operator values on a column kind.
func OperandScalar(kind store.Kind) ScalarType {
	switch kind {
	case store.KindInteger:
		return ScalarInt
	case store.KindFloat:
		return ScalarFloat
	default:
		return ScalarString
	}
}

// FieldKind distinguishes row type fields.
type FieldKind int

const (
	FieldColumn FieldKind = iota
	FieldForward
	FieldReverse
)

// Field is one field on a row type.
type Field struct {
	Name        string
	Kind        FieldKind
	Description string

	// Column is the raw column read by column and forward fields.
	Column string
	// ColumnKind is the effective kind of Column; declared JSON columns are KindJSON.
	ColumnKind store.Kind
	Scalar     ScalarType

	// Target is the table key of the related TypeSet.
	Target string
	// RefColumn is the raw column in the referenced table. For forward fields
	// it lives in Target; for reverse fields it lives in the owning table.
	RefColumn string
	// SourceColumn is the foreign key column in Target for reverse fields.
	SourceColumn string
}

// FilterField is one column of a filter input.
type FilterField struct {
	Name   string
	Column string
	Kind   store.Kind
	Input  string
}

// EnumValue maps an exposed enum value to a raw column.
type EnumValue struct {
	Name   string
	Column string
}

// KeyArg is a direct lookup argument on a singular row field.
type KeyArg struct {
	Name   string
	Column string
	Scalar ScalarType
}

// TypeSet is everything generated for one table.
type TypeSet struct {
	// Key identifies the table as database.table.
	Key   string
	Table store.TableMeta

	RowType             string
	RowFieldName        string
	CollectionType      string
	CollectionFieldName string
	EdgeType            string
	FilterInput         string
	SortEnum            string
	SortDescEnum        string
	// SortDescArg is the descending sort argument, sort_desc or sortDesc.
	SortDescArg string

	Fields       []Field
	FilterFields []FilterField
	SortValues   []EnumValue
	KeyArgs      []KeyArg
	Searchable   bool

	Description           string
	RowFieldDescription   string
	CollectionDescription string
}

// RootField maps a Query field to its table.
type RootField struct {
	Name     string
	TableKey string
	Singular bool
}

// Plan is a compiled schema description.
type Plan struct {
	Types []*TypeSet
	Root  []RootField

	byKey map[string]*TypeSet
}

// Lookup returns the TypeSet for a table key.
func (p *Plan) Lookup(key string) (*TypeSet, bool) {
	ts, ok := p.byKey[key]
	return ts, ok
}

// TableKey builds the key used to identify a table across databases.
func TableKey(database, table string) string {
	return database + "." + table
}
