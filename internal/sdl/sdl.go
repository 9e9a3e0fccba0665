// Package sdl renders a compiled schema plan as GraphQL schema definition
// language. The document is built from the same Plan the resolver consumes,
// so the printed schema and the executable one cannot drift apart.
package sdl

import (
	"bytes"
	"io"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

// kindOrder fixes the order operator inputs are printed in.
var kindOrder = []store.Kind{
	store.KindInteger,
	store.KindFloat,
	store.KindText,
	store.KindBlob,
	store.KindJSON,
}

// Document builds the schema document for plan.
func Document(plan *typegen.Plan) *ast.SchemaDocument {
	b := &builder{plan: plan, kinds: make(map[store.Kind]bool)}
	return b.document()
}

// Print writes plan's schema to w.
func Print(w io.Writer, plan *typegen.Plan) {
	formatter.NewFormatter(w).FormatSchemaDocument(Document(plan))
}

// String returns plan's schema as text.
func String(plan *typegen.Plan) string {
	var buf bytes.Buffer
	Print(&buf, plan)
	return buf.String()
}

type builder struct {
	plan    *typegen.Plan
	kinds   map[store.Kind]bool
	useJSON bool
}

func (b *builder) document() *ast.SchemaDocument {
	doc := &ast.SchemaDocument{}
	doc.Definitions = append(doc.Definitions, b.query())
	for _, ts := range b.plan.Types {
		doc.Definitions = append(doc.Definitions,
			b.rowType(ts),
			b.collectionType(ts),
			b.edgeType(ts),
			b.filterInput(ts),
			b.sortEnum(ts.SortEnum, ts),
			b.sortEnum(ts.SortDescEnum, ts),
		)
	}
	doc.Definitions = append(doc.Definitions, pageInfo())
	for _, kind := range kindOrder {
		if b.kinds[kind] {
			doc.Definitions = append(doc.Definitions, operationsInput(kind))
		}
	}
	if b.useJSON {
		doc.Definitions = append(doc.Definitions, &ast.Definition{
			Kind:        ast.Scalar,
			Name:        typegen.JSONScalar,
			Description: "Arbitrary JSON value decoded from a text column",
		})
	}
	return doc
}

func (b *builder) query() *ast.Definition {
	def := &ast.Definition{Kind: ast.Object, Name: "Query"}
	for _, root := range b.plan.Root {
		ts, ok := b.plan.Lookup(root.TableKey)
		if !ok {
			continue
		}
		if root.Singular {
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name:        root.Name,
				Description: ts.RowFieldDescription,
				Arguments:   rowArgs(ts),
				Type:        ast.NamedType(ts.RowType, nil),
			})
			continue
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        root.Name,
			Description: ts.CollectionDescription,
			Arguments:   collectionArgs(ts, true),
			Type:        ast.NamedType(ts.CollectionType, nil),
		})
	}
	if len(def.Fields) == 0 {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        "_schema",
			Description: "Placeholder field when no tables are exposed",
			Type:        ast.NamedType("String", nil),
		})
	}
	return def
}

// collectionArgs mirrors the arguments the resolver attaches to collection
// fields, in a fixed order.
func collectionArgs(ts *typegen.TypeSet, withFirst bool) ast.ArgumentDefinitionList {
	args := ast.ArgumentDefinitionList{
		{Name: "filter", Type: ast.ListType(ast.NamedType(ts.FilterInput, nil), nil)},
		{Name: "where", Type: ast.NamedType("String", nil)},
	}
	if ts.Searchable {
		args = append(args, &ast.ArgumentDefinition{Name: "search", Type: ast.NamedType("String", nil)})
	}
	if withFirst {
		args = append(args, &ast.ArgumentDefinition{Name: "first", Type: ast.NamedType("Int", nil)})
	}
	return append(args,
		&ast.ArgumentDefinition{Name: "after", Type: ast.NamedType("String", nil)},
		&ast.ArgumentDefinition{Name: "sort", Type: ast.NamedType(ts.SortEnum, nil)},
		&ast.ArgumentDefinition{Name: ts.SortDescArg, Type: ast.NamedType(ts.SortDescEnum, nil)},
	)
}

func rowArgs(ts *typegen.TypeSet) ast.ArgumentDefinitionList {
	args := collectionArgs(ts, false)
	for _, key := range ts.KeyArgs {
		args = append(args, &ast.ArgumentDefinition{Name: key.Name, Type: ast.NamedType(string(key.Scalar), nil)})
	}
	return args
}

func (b *builder) rowType(ts *typegen.TypeSet) *ast.Definition {
	def := &ast.Definition{Kind: ast.Object, Name: ts.RowType, Description: ts.Description}
	for _, f := range ts.Fields {
		field := &ast.FieldDefinition{Name: f.Name, Description: f.Description}
		switch f.Kind {
		case typegen.FieldColumn:
			if f.Scalar == typegen.ScalarJSON {
				b.useJSON = true
			}
			field.Type = ast.NamedType(string(f.Scalar), nil)
		case typegen.FieldForward:
			target, ok := b.plan.Lookup(f.Target)
			if !ok {
				continue
			}
			field.Type = ast.NamedType(target.RowType, nil)
		case typegen.FieldReverse:
			target, ok := b.plan.Lookup(f.Target)
			if !ok {
				continue
			}
			field.Arguments = collectionArgs(target, true)
			field.Type = ast.NamedType(target.CollectionType, nil)
		}
		def.Fields = append(def.Fields, field)
	}
	return def
}

func (b *builder) collectionType(ts *typegen.TypeSet) *ast.Definition {
	return &ast.Definition{
		Kind: ast.Object,
		Name: ts.CollectionType,
		Fields: ast.FieldList{
			{Name: "totalCount", Type: ast.NamedType("Int", nil)},
			{Name: "pageInfo", Type: ast.NonNullNamedType(typegen.PageInfoType, nil)},
			{Name: "nodes", Type: ast.ListType(ast.NamedType(ts.RowType, nil), nil)},
			{Name: "edges", Type: ast.ListType(ast.NamedType(ts.EdgeType, nil), nil)},
		},
	}
}

func (b *builder) edgeType(ts *typegen.TypeSet) *ast.Definition {
	return &ast.Definition{
		Kind: ast.Object,
		Name: ts.EdgeType,
		Fields: ast.FieldList{
			{Name: "cursor", Type: ast.NamedType("String", nil)},
			{Name: "node", Type: ast.NamedType(ts.RowType, nil)},
		},
	}
}

func (b *builder) filterInput(ts *typegen.TypeSet) *ast.Definition {
	def := &ast.Definition{Kind: ast.InputObject, Name: ts.FilterInput}
	for _, f := range ts.FilterFields {
		b.kinds[f.Kind] = true
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: f.Name,
			Type: ast.NamedType(f.Input, nil),
		})
	}
	return def
}

func (b *builder) sortEnum(name string, ts *typegen.TypeSet) *ast.Definition {
	def := &ast.Definition{Kind: ast.Enum, Name: name}
	for _, v := range ts.SortValues {
		def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{Name: v.Name})
	}
	return def
}

func pageInfo() *ast.Definition {
	return &ast.Definition{
		Kind: ast.Object,
		Name: typegen.PageInfoType,
		Fields: ast.FieldList{
			{Name: "endCursor", Type: ast.NamedType("String", nil)},
			{Name: "hasNextPage", Type: ast.NonNullNamedType("Boolean", nil)},
		},
	}
}

func operationsInput(kind store.Kind) *ast.Definition {
	operand := string(typegen.OperandScalar(kind))
	def := &ast.Definition{Kind: ast.InputObject, Name: typegen.OperationsInput(kind)}
	for _, op := range store.OpsForKind(kind) {
		var typ *ast.Type
		switch {
		case op == store.OpIsNull:
			typ = ast.NamedType("Boolean", nil)
		case op.IsList():
			typ = ast.ListType(ast.NamedType(operand, nil), nil)
		default:
			typ = ast.NamedType(operand, nil)
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{Name: string(op), Type: typ})
	}
	return def
}
