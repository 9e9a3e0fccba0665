// Package cursor encodes and decodes keyset pagination cursors.
// Cursors are opaque base64-encoded JSON carrying the seek values of the last
// row on a page, each tagged with its type so decoding is exact, plus the
// signature of the ordering and filters the page was produced under.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCursor is wrapped by every decode failure.
var ErrInvalidCursor = errors.New("invalid cursor")

const payloadVersion = 3

// Cursor is a resume point: the seek values of the last row returned.
type Cursor struct {
	Signature string
	Values    []any
}

type payloadV3 struct {
	Version   int          `json:"v"`
	Signature string       `json:"s"`
	Values    []taggedItem `json:"k"`
}

type taggedItem struct {
	Tag   string `json:"t"`
	Value string `json:"v,omitempty"`
}

// Signature identifies an ordering plus the arguments that shape the row set.
// A cursor only decodes under the signature it was encoded with.
type Signature struct {
	Table      string
	SortColumn string
	Desc       bool
	KeyColumns []string
	// Args is any JSON-serializable value describing filters, search terms
	// and parent keys.
	Args any
}

// String renders the signature as table|sort|direction|keys|digest.
func (s Signature) String() string {
	direction := "asc"
	if s.Desc {
		direction = "desc"
	}
	return strings.Join([]string{
		s.Table,
		s.SortColumn,
		direction,
		strings.Join(s.KeyColumns, ","),
		Fingerprint(s.Args),
	}, "|")
}

// Fingerprint returns a short stable digest of v's JSON form. Map keys are
// sorted by encoding/json so equal arguments always hash the same.
func Fingerprint(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Encode builds an opaque cursor.
func Encode(c Cursor) (string, error) {
	items := make([]taggedItem, len(c.Values))
	for i, v := range c.Values {
		item, err := tag(v)
		if err != nil {
			return "", err
		}
		items[i] = item
	}
	data, err := json.Marshal(payloadV3{
		Version:   payloadVersion,
		Signature: c.Signature,
		Values:    items,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses raw and checks it was produced under expectedSignature.
func Decode(raw, expectedSignature string) (Cursor, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var payload payloadV3
	if err := json.Unmarshal(data, &payload); err != nil || payload.Version != payloadVersion {
		return Cursor{}, fmt.Errorf("%w: unrecognized format", ErrInvalidCursor)
	}
	if payload.Signature != expectedSignature {
		return Cursor{}, fmt.Errorf("%w: cursor does not match the current sort and filter arguments", ErrInvalidCursor)
	}
	values := make([]any, len(payload.Values))
	for i, item := range payload.Values {
		v, err := untag(item)
		if err != nil {
			return Cursor{}, fmt.Errorf("%w: value %d: %v", ErrInvalidCursor, i, err)
		}
		values[i] = v
	}
	return Cursor{Signature: payload.Signature, Values: values}, nil
}

func tag(v any) (taggedItem, error) {
	switch val := v.(type) {
	case nil:
		return taggedItem{Tag: "n"}, nil
	case int64:
		return taggedItem{Tag: "i", Value: strconv.FormatInt(val, 10)}, nil
	case int:
		return taggedItem{Tag: "i", Value: strconv.FormatInt(int64(val), 10)}, nil
	case float64:
		return taggedItem{Tag: "f", Value: strconv.FormatFloat(val, 'g', -1, 64)}, nil
	case string:
		return taggedItem{Tag: "s", Value: val}, nil
	case []byte:
		return taggedItem{Tag: "b", Value: base64.StdEncoding.EncodeToString(val)}, nil
	case bool:
		return taggedItem{Tag: "t", Value: strconv.FormatBool(val)}, nil
	default:
		return taggedItem{}, fmt.Errorf("cursor: unsupported value type %T", v)
	}
}

func untag(item taggedItem) (any, error) {
	switch item.Tag {
	case "n":
		return nil, nil
	case "i":
		return strconv.ParseInt(item.Value, 10, 64)
	case "f":
		return strconv.ParseFloat(item.Value, 64)
	case "s":
		return item.Value, nil
	case "b":
		return base64.StdEncoding.DecodeString(item.Value)
	case "t":
		return strconv.ParseBool(item.Value)
	default:
		return nil, fmt.Errorf("unknown tag %q", item.Tag)
	}
}
