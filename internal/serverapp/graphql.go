package serverapp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/handler"

	"tablegraph/internal/executor"
	"tablegraph/internal/gqlrequest"
	"tablegraph/internal/logging"
	"tablegraph/internal/sdl"
)

const sdlSuffix = ".graphql"

// graphqlEndpoint serves /graphql and /graphql/{database}. A {database}
// ending in .graphql serves that database's SDL instead.
type graphqlEndpoint struct {
	exec     *executor.Executor
	graphiQL bool
}

// databasesFor returns the path-selected database, or nil for all.
func databasesFor(r *http.Request) []string {
	if db := r.PathValue("database"); db != "" {
		return []string{strings.TrimSuffix(db, sdlSuffix)}
	}
	return nil
}

func (e *graphqlEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	databases := databasesFor(r)
	for _, db := range databases {
		if !e.exec.HasDatabase(db) {
			writeErrors(w, http.StatusNotFound, "Database not found: "+db)
			return
		}
	}
	if strings.HasSuffix(r.PathValue("database"), sdlSuffix) {
		serveSDL(w, r, e.exec, databases)
		return
	}

	analysis := gqlrequest.AnalysisFromContext(r.Context())
	if analysis == nil {
		analysis = gqlrequest.AnalyzeHTTP(r)
	}
	if err := analysis.DecodeErr; err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, gqlrequest.ErrMethodNotAllowed) {
			status = http.StatusMethodNotAllowed
			w.Header().Set("Allow", "GET, POST")
		}
		writeErrors(w, status, err.Error())
		return
	}

	if e.graphiQL && r.Method == http.MethodGet && analysis.Request.Query == "" && acceptsHTML(r) {
		e.serveGraphiQL(w, r, databases)
		return
	}

	result := e.exec.Execute(r.Context(), executor.Request{
		Query:         analysis.Request.Query,
		Variables:     analysis.Request.Variables,
		OperationName: analysis.Request.OperationName,
		Databases:     databases,
	})
	status := http.StatusOK
	if result.HasErrors() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

// serveGraphiQL renders the GraphiQL page through graphql-go/handler. With
// no query in the request the handler executes nothing against the store.
func (e *graphqlEndpoint) serveGraphiQL(w http.ResponseWriter, r *http.Request, databases []string) {
	compiled, err := e.exec.Schema(r.Context(), databases, nil)
	if err != nil {
		logging.FromContext(r.Context()).Error("schema compile failed", slog.String("error", err.Error()))
		writeErrors(w, http.StatusInternalServerError, err.Error())
		return
	}
	handler.New(&handler.Config{
		Schema:   &compiled.Schema,
		Pretty:   true,
		GraphiQL: true,
	}).ServeHTTP(w, r)
}

// serveSDL prints the compiled schema for databases.
func serveSDL(w http.ResponseWriter, r *http.Request, exec *executor.Executor, databases []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodOptions {
		w.Header().Set("Allow", "GET, OPTIONS")
		writeErrors(w, http.StatusMethodNotAllowed, "schema definition supports GET and OPTIONS")
		return
	}
	compiled, err := exec.Schema(r.Context(), databases, nil)
	if err != nil {
		logging.FromContext(r.Context()).Error("schema compile failed", slog.String("error", err.Error()))
		writeErrors(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	sdl.Print(w, compiled.Plan)
}

func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrors writes a GraphQL-shaped error response with null data.
func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	result := executor.Result{}
	for _, msg := range messages {
		result.Errors = append(result.Errors, gqlerrors.FormattedError{Message: msg})
	}
	writeJSON(w, status, result)
}
