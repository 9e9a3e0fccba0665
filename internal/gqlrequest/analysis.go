package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/source"
)

const anonymousOperationName = "<anonymous>"

// Analysis is the request plus what could be derived from its document
// without a schema.
type Analysis struct {
	Request Request

	Document  *ast.Document
	Operation *ast.OperationDefinition

	OperationName  string
	OperationType  string
	FieldCount     int
	SelectionDepth int
	VariableCount  int
	OperationHash  string

	// DecodeErr is set when the HTTP request could not be decoded.
	DecodeErr error
	// DocumentErr is set when the document does not parse or no single
	// operation can be selected.
	DocumentErr error
}

// AnalyzeHTTP decodes r and analyzes the result.
func AnalyzeHTTP(r *http.Request) *Analysis {
	req, err := Decode(r)
	analysis := Analyze(req)
	analysis.DecodeErr = err
	return analysis
}

// Analyze parses the document and selects the requested operation.
func Analyze(req Request) *Analysis {
	analysis := &Analysis{Request: req}
	if strings.TrimSpace(req.Query) == "" {
		return analysis
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(req.Query), Name: "graphql"}),
	})
	if err != nil {
		analysis.DocumentErr = err
		return analysis
	}
	analysis.Document = doc

	fragments := map[string]*ast.FragmentDefinition{}
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			operations = append(operations, d)
		case *ast.FragmentDefinition:
			if d.Name != nil && d.Name.Value != "" {
				fragments[d.Name.Value] = d
			}
		}
	}

	op, err := selectOperation(operations, req.OperationName)
	if err != nil {
		analysis.DocumentErr = err
		return analysis
	}
	analysis.Operation = op
	analysis.OperationName = operationName(op)
	analysis.OperationType = op.Operation
	analysis.VariableCount = len(op.VariableDefinitions)

	w := &selectionWalker{fragments: fragments, used: map[string]bool{}, active: map[string]bool{}}
	analysis.FieldCount, analysis.SelectionDepth = w.walk(op.SelectionSet, 1)
	analysis.OperationHash = w.hash(op)
	return analysis
}

func selectOperation(operations []*ast.OperationDefinition, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == name {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	switch len(operations) {
	case 0:
		return nil, errors.New("request does not include an operation")
	case 1:
		return operations[0], nil
	default:
		return nil, errors.New("operationName is required when request has multiple operations")
	}
}

func operationName(op *ast.OperationDefinition) string {
	if op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// selectionWalker counts fields and depth through fragment spreads, each
// fragment expanded once, and remembers the fragments it used.
type selectionWalker struct {
	fragments map[string]*ast.FragmentDefinition
	used      map[string]bool
	active    map[string]bool
}

func (w *selectionWalker) walk(set *ast.SelectionSet, depth int) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	add := func(n, d int) {
		fields += n
		if d > maxDepth {
			maxDepth = d
		}
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				add(w.walk(sel.SelectionSet, depth+1))
			}
		case *ast.InlineFragment:
			add(w.walk(sel.SelectionSet, depth))
		case *ast.FragmentSpread:
			if sel.Name == nil {
				continue
			}
			name := sel.Name.Value
			fragment, ok := w.fragments[name]
			if !ok || w.used[name] || w.active[name] {
				continue
			}
			w.used[name] = true
			w.active[name] = true
			add(w.walk(fragment.SelectionSet, depth))
			delete(w.active, name)
		}
	}
	return fields, maxDepth
}

// hash is the SHA-256 of the printed operation followed by the fragments it
// used in name order, framed with the operation name.
func (w *selectionWalker) hash(op *ast.OperationDefinition) string {
	names := make([]string, 0, len(w.used))
	for name := range w.used {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := []ast.Node{op}
	for _, name := range names {
		definitions = append(definitions, w.fragments[name])
	}
	printed, _ := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions})).(string)

	h := sha256.New()
	for _, part := range []string{printed, operationName(op)} {
		_, _ = fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
