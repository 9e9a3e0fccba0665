// Package gqlrequest decodes GraphQL-over-HTTP requests and derives the
// operation metadata used for logging, tracing and metrics.
package gqlrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ErrMethodNotAllowed is returned for methods other than GET and POST.
var ErrMethodNotAllowed = errors.New("GraphQL requests must use GET or POST")

// Request is a decoded GraphQL request.
type Request struct {
	Method        string
	Query         string
	OperationName string
	Variables     map[string]interface{}

	DocumentSizeBytes int
}

type jsonPayload struct {
	Query         string          `json:"query"`
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
}

// Decode reads query, operationName and variables from r. GET requests carry
// them as URL parameters (variables JSON-encoded); POST bodies are JSON or,
// with Content-Type application/graphql, the bare document. The body is
// rewound so later handlers can read it again.
func Decode(r *http.Request) (Request, error) {
	if r == nil {
		return Request{}, fmt.Errorf("request is nil")
	}
	req := Request{Method: r.Method}

	switch r.Method {
	case http.MethodGet:
		params := r.URL.Query()
		req.Query = params.Get("query")
		req.OperationName = params.Get("operationName")
		vars, err := decodeVariables([]byte(params.Get("variables")))
		if err != nil {
			return req, err
		}
		req.Variables = vars

	case http.MethodPost:
		if r.Body == nil {
			break
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, fmt.Errorf("failed to read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if mediaType(r.Header.Get("Content-Type")) == "application/graphql" {
			req.Query = string(body)
			req.OperationName = r.URL.Query().Get("operationName")
			break
		}
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			break
		}
		var payload jsonPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return req, fmt.Errorf("request body is not valid JSON: %w", err)
		}
		req.Query = payload.Query
		req.OperationName = payload.OperationName
		vars, err := decodeVariables(payload.Variables)
		if err != nil {
			return req, err
		}
		req.Variables = vars

	default:
		return req, ErrMethodNotAllowed
	}

	req.DocumentSizeBytes = len(req.Query)
	return req, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// decodeVariables accepts an absent value, null, or a JSON object.
func decodeVariables(raw []byte) (map[string]interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var vars map[string]interface{}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, fmt.Errorf("variables must be a JSON object: %w", err)
	}
	return vars, nil
}
