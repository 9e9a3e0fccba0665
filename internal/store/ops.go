package store

import "slices"

// Op is a filter operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpIn         Op = "in"
	OpNotIn      Op = "notin"
	OpIsNull     Op = "isnull"
	OpContains   Op = "contains"
	OpStartsWith Op = "startswith"
	OpEndsWith   Op = "endswith"
	OpLike       Op = "like"
	OpNotLike    Op = "notlike"
)

var (
	numericOps = []Op{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpIsNull}
	textOps    = append(slices.Clone(numericOps), OpContains, OpStartsWith, OpEndsWith, OpLike, OpNotLike)
	opaqueOps  = []Op{OpIsNull}
)

// OpsForKind returns the operator set a column of kind k accepts, in a stable order.
func OpsForKind(k Kind) []Op {
	switch k {
	case KindInteger, KindFloat:
		return numericOps
	case KindText:
		return textOps
	default:
		return opaqueOps
	}
}

// Supports reports whether op is valid for a column of kind k.
func (k Kind) Supports(op Op) bool {
	return slices.Contains(OpsForKind(k), op)
}

// IsList reports whether the operator takes a list operand.
func (op Op) IsList() bool {
	return op == OpIn || op == OpNotIn
}
