package gqlrequest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_GET(t *testing.T) {
	params := url.Values{}
	params.Set("query", "query Q($n: Int) { users(first: $n) { totalCount } }")
	params.Set("operationName", "Q")
	params.Set("variables", `{"n": 2}`)
	r := httptest.NewRequest(http.MethodGet, "/graphql?"+params.Encode(), nil)

	req, err := Decode(r)
	require.NoError(t, err)
	assert.Equal(t, "Q", req.OperationName)
	assert.Equal(t, map[string]interface{}{"n": float64(2)}, req.Variables)
	assert.Equal(t, len(req.Query), req.DocumentSizeBytes)
}

func TestDecode_GETInvalidVariables(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/graphql?query=%7Busers%7BtotalCount%7D%7D&variables=%5B1%5D", nil)
	_, err := Decode(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variables must be a JSON object")
}

func TestDecode_POSTJSON(t *testing.T) {
	body := `{"query":"{ users { totalCount } }","operationName":null,"variables":{"after":"abc"}}`
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	req, err := Decode(r)
	require.NoError(t, err)
	assert.Equal(t, "{ users { totalCount } }", req.Query)
	assert.Empty(t, req.OperationName)
	assert.Equal(t, "abc", req.Variables["after"])
}

func TestDecode_POSTNullVariables(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ a }","variables":null}`))
	req, err := Decode(r)
	require.NoError(t, err)
	assert.Nil(t, req.Variables)
}

func TestDecode_POSTGraphQLRewindsBody(t *testing.T) {
	body := "{ users { totalCount } }"
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/graphql")

	req, err := Decode(r)
	require.NoError(t, err)
	assert.Equal(t, body, req.Query)

	rewound, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rewound))
}

func TestDecode_POSTMalformedJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":`))
	_, err := Decode(r)
	assert.Error(t, err)
}

func TestDecode_MethodNotAllowed(t *testing.T) {
	r := httptest.NewRequest(http.MethodPut, "/graphql", nil)
	_, err := Decode(r)
	assert.ErrorIs(t, err, ErrMethodNotAllowed)
}

func TestAnalyzeHTTP_CarriesDecodeError(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`not json`))
	analysis := AnalyzeHTTP(r)
	assert.Error(t, analysis.DecodeErr)
	assert.NoError(t, analysis.DocumentErr)
}
