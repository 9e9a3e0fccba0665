package scalars

import (
	"encoding/json"
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
)

func TestJSONScalarSerialize(t *testing.T) {
	scalar := JSON()

	assert.Equal(t, []interface{}{"databases", "apis"}, scalar.Serialize([]interface{}{"databases", "apis"}))
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, scalar.Serialize(json.RawMessage(`{"a":1}`)))
	assert.Nil(t, scalar.Serialize(json.RawMessage(`{bad`)))
	assert.Equal(t, "plain", scalar.Serialize("plain"))
}

func TestJSONScalarParseLiteral(t *testing.T) {
	scalar := JSON()

	literal := &ast.ObjectValue{Fields: []*ast.ObjectField{
		{Name: &ast.Name{Value: "tags"}, Value: &ast.ListValue{Values: []ast.Value{
			&ast.StringValue{Value: "x"},
			&ast.IntValue{Value: "2"},
			&ast.FloatValue{Value: "1.5"},
			&ast.BooleanValue{Value: true},
		}}},
	}}

	assert.Equal(t, map[string]interface{}{
		"tags": []interface{}{"x", int64(2), 1.5, true},
	}, scalar.ParseLiteral(literal))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "not-a-number"}))
}
