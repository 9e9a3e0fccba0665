package resolver

import (
	"github.com/graphql-go/graphql"

	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

// collectionArgs returns the arguments accepted by a collection field.
func (r *Resolver) collectionArgs(ts *typegen.TypeSet) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"filter": &graphql.ArgumentConfig{
			Type:        graphql.NewList(r.filterInput(ts)),
			Description: "Filters combined with AND",
		},
		"where": &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: "Raw boolean expression appended to the filters",
		},
		"first": &graphql.ArgumentConfig{
			Type: graphql.Int,
		},
		"after": &graphql.ArgumentConfig{
			Type: graphql.String,
		},
		"sort": &graphql.ArgumentConfig{
			Type: r.sortEnum(ts, false),
		},
		ts.SortDescArg: &graphql.ArgumentConfig{
			Type: r.sortEnum(ts, true),
		},
	}
	if ts.Searchable {
		args["search"] = &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: "Full-text search query",
		}
	}
	return args
}

// rowArgs returns the arguments for a singular row field: the collection
// arguments minus first, plus one argument per key column.
func (r *Resolver) rowArgs(ts *typegen.TypeSet) graphql.FieldConfigArgument {
	args := r.collectionArgs(ts)
	delete(args, "first")
	for _, key := range ts.KeyArgs {
		args[key.Name] = &graphql.ArgumentConfig{Type: operandType(key.Scalar)}
	}
	return args
}

func (r *Resolver) filterInput(ts *typegen.TypeSet) *graphql.InputObject {
	if cached, ok := r.filterInputs[ts.Key]; ok {
		return cached
	}
	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range ts.FilterFields {
		fields[f.Name] = &graphql.InputObjectFieldConfig{Type: r.operationsInput(f.Kind)}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   ts.FilterInput,
		Fields: fields,
	})
	r.filterInputs[ts.Key] = input
	return input
}

func (r *Resolver) sortEnum(ts *typegen.TypeSet, desc bool) *graphql.Enum {
	cache, name := r.sortEnums, ts.SortEnum
	if desc {
		cache, name = r.sortDescEnums, ts.SortDescEnum
	}
	if cached, ok := cache[ts.Key]; ok {
		return cached
	}
	values := graphql.EnumValueConfigMap{}
	for _, v := range ts.SortValues {
		values[v.Name] = &graphql.EnumValueConfig{Value: v.Column}
	}
	enum := graphql.NewEnum(graphql.EnumConfig{
		Name:   name,
		Values: values,
	})
	cache[ts.Key] = enum
	return enum
}

// operationsInput returns the shared operator input for a column kind.
func (r *Resolver) operationsInput(kind store.Kind) *graphql.InputObject {
	if cached, ok := r.operations[kind]; ok {
		return cached
	}
	operand := operandType(typegen.OperandScalar(kind))
	fields := graphql.InputObjectConfigFieldMap{}
	for _, op := range store.OpsForKind(kind) {
		switch {
		case op == store.OpIsNull:
			fields[string(op)] = &graphql.InputObjectFieldConfig{Type: graphql.Boolean}
		case op.IsList():
			fields[string(op)] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(operand)}
		default:
			fields[string(op)] = &graphql.InputObjectFieldConfig{Type: operand}
		}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typegen.OperationsInput(kind),
		Fields: fields,
	})
	r.operations[kind] = input
	return input
}

func operandType(s typegen.ScalarType) graphql.Input {
	switch s {
	case typegen.ScalarInt:
		return graphql.Int
	case typegen.ScalarFloat:
		return graphql.Float
	default:
		return graphql.String
	}
}
