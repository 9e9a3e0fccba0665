package sqlstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// ErrInvalidWhere marks a rejected raw where fragment.
var ErrInvalidWhere = errors.New("invalid where expression")

// Functions that can stall or leak outside the table being read.
var deniedFunctions = map[string]bool{
	"sleep":        true,
	"benchmark":    true,
	"get_lock":     true,
	"release_lock": true,
	"load_file":    true,
}

// Parsers are not safe for concurrent use.
var parsers = sync.Pool{
	New: func() any { return parser.New() },
}

// normalizeWhere parses fragment as the condition of a single-table SELECT and
// returns the condition restored in canonical form.
func normalizeWhere(fragment string) (string, error) {
	p := parsers.Get().(*parser.Parser)
	defer parsers.Put(p)

	stmts, _, err := p.Parse("SELECT 1 FROM t WHERE "+fragment, "", "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWhere, err)
	}
	if len(stmts) != 1 {
		return "", fmt.Errorf("%w: only a single condition is allowed", ErrInvalidWhere)
	}
	sel, ok := stmts[0].(*ast.SelectStmt)
	if !ok || sel.Where == nil {
		return "", fmt.Errorf("%w: not a boolean condition", ErrInvalidWhere)
	}
	if sel.GroupBy != nil || sel.Having != nil || sel.OrderBy != nil || sel.Limit != nil || sel.LockInfo != nil {
		return "", fmt.Errorf("%w: trailing clauses are not allowed", ErrInvalidWhere)
	}

	v := &whereVisitor{}
	sel.Where.Accept(v)
	if v.err != nil {
		return "", v.err
	}

	var sb strings.Builder
	if err := sel.Where.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWhere, err)
	}
	return sb.String(), nil
}

type whereVisitor struct {
	err error
}

func (v *whereVisitor) Enter(in ast.Node) (ast.Node, bool) {
	if v.err != nil {
		return in, true
	}
	switch n := in.(type) {
	case *ast.SubqueryExpr, *ast.ExistsSubqueryExpr:
		v.err = fmt.Errorf("%w: subqueries are not allowed", ErrInvalidWhere)
	case *ast.VariableExpr:
		v.err = fmt.Errorf("%w: variables are not allowed", ErrInvalidWhere)
	case ast.ParamMarkerExpr:
		v.err = fmt.Errorf("%w: placeholders are not allowed", ErrInvalidWhere)
	case *ast.FuncCallExpr:
		if deniedFunctions[n.FnName.L] {
			v.err = fmt.Errorf("%w: function %s is not allowed", ErrInvalidWhere, n.FnName.O)
		}
	}
	return in, v.err != nil
}

func (v *whereVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, v.err == nil
}
