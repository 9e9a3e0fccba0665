package resolver

import (
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// selectsField reports whether the current field's selection set asks for
// name directly or through fragments.
func selectsField(info graphql.ResolveInfo, name string) bool {
	for _, field := range info.FieldASTs {
		if field != nil && selectionSetHas(info, field.SelectionSet, name, 0) {
			return true
		}
	}
	return false
}

func selectionSetHas(info graphql.ResolveInfo, set *ast.SelectionSet, name string, depth int) bool {
	if set == nil || depth > 16 {
		return false
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name != nil && s.Name.Value == name {
				return true
			}
		case *ast.InlineFragment:
			if selectionSetHas(info, s.SelectionSet, name, depth+1) {
				return true
			}
		case *ast.FragmentSpread:
			if s.Name == nil {
				continue
			}
			def, ok := info.Fragments[s.Name.Value].(*ast.FragmentDefinition)
			if ok && selectionSetHas(info, def.SelectionSet, name, depth+1) {
				return true
			}
		}
	}
	return false
}
