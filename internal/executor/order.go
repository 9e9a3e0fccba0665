package executor

import (
	"sort"

	"github.com/dolmen-go/jsonmap"
	"github.com/graphql-go/graphql/language/ast"
)

// orderData rewrites the maps graphql-go returns into jsonmap.Ordered values
// so the encoded response lists keys in document order.
func orderData(data interface{}, doc *ast.Document, operationName string) interface{} {
	op := selectedOperation(doc, operationName)
	if op == nil {
		return data
	}
	o := orderer{fragments: documentFragments(doc)}
	return o.value(data, []*ast.SelectionSet{op.SelectionSet})
}

type orderer struct {
	fragments map[string]*ast.FragmentDefinition
}

func (o orderer) value(v interface{}, sets []*ast.SelectionSet) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys, children := o.collect(sets)
		out := jsonmap.Ordered{
			Data:  make(map[string]interface{}, len(val)),
			Order: make([]string, 0, len(val)),
		}
		for _, key := range keys {
			fv, ok := val[key]
			if !ok {
				continue
			}
			out.Data[key] = o.value(fv, children[key])
			out.Order = append(out.Order, key)
		}
		if len(out.Order) < len(val) {
			var rest []string
			for key := range val {
				if _, ok := out.Data[key]; !ok {
					rest = append(rest, key)
				}
			}
			sort.Strings(rest)
			for _, key := range rest {
				out.Data[key] = val[key]
				out.Order = append(out.Order, key)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = o.value(item, sets)
		}
		return out
	default:
		return v
	}
}

// collect lists response keys in first-seen order and gathers each key's
// sub-selections across repeated fields and fragments.
func (o orderer) collect(sets []*ast.SelectionSet) ([]string, map[string][]*ast.SelectionSet) {
	var keys []string
	children := make(map[string][]*ast.SelectionSet)
	seen := make(map[string]bool)
	visiting := make(map[string]bool)

	var walk func(set *ast.SelectionSet)
	walk = func(set *ast.SelectionSet) {
		if set == nil {
			return
		}
		for _, sel := range set.Selections {
			switch s := sel.(type) {
			case *ast.Field:
				key := responseKey(s)
				if !seen[key] {
					seen[key] = true
					keys = append(keys, key)
				}
				if s.SelectionSet != nil {
					children[key] = append(children[key], s.SelectionSet)
				}
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if s.Name == nil || visiting[s.Name.Value] {
					continue
				}
				if frag, ok := o.fragments[s.Name.Value]; ok {
					visiting[s.Name.Value] = true
					walk(frag.SelectionSet)
					delete(visiting, s.Name.Value)
				}
			}
		}
	}
	for _, set := range sets {
		walk(set)
	}
	return keys, children
}

func responseKey(f *ast.Field) string {
	if f.Alias != nil && f.Alias.Value != "" {
		return f.Alias.Value
	}
	if f.Name != nil {
		return f.Name.Value
	}
	return ""
}
