package resolver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/graphql-go/graphql"

	"tablegraph/internal/store"
	"tablegraph/internal/typegen"
)

// columnResolver reads one raw column from a row source.
func columnResolver(f typegen.Field) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(store.Row)
		if !ok {
			return nil, nil
		}
		value := row[f.Column]
		switch f.ColumnKind {
		case store.KindJSON:
			return decodeJSON(f.Column, value)
		case store.KindBlob:
			if b, ok := value.([]byte); ok {
				return base64.StdEncoding.EncodeToString(b), nil
			}
		}
		if b, ok := value.([]byte); ok {
			return string(b), nil
		}
		return value, nil
	}
}

// decodeJSON parses a stored JSON document. Missing values and JSON null
// decode to an empty list; malformed documents fail only this field.
func decodeJSON(column string, value any) (interface{}, error) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return []interface{}{}, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return v, nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []interface{}{}, nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("column %s does not contain valid JSON: %w", column, err)
	}
	if decoded == nil {
		return []interface{}{}, nil
	}
	return decoded, nil
}
