package middleware

import (
	"net/http"

	"tablegraph/internal/gqlrequest"
	"tablegraph/internal/logging"
	"tablegraph/internal/observability"
)

// GraphQLRequestAnalysisMiddleware decodes and analyzes the GraphQL request
// once, storing the analysis and execution metadata in the context and
// adding operation fields to the request logger. meta may be nil.
func GraphQLRequestAnalysisMiddleware(meta func(*http.Request) gqlrequest.ExecMeta) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalyzeHTTP(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			var execMeta gqlrequest.ExecMeta
			if meta != nil {
				execMeta = meta(r)
			}
			ctx = gqlrequest.WithExecMeta(ctx, execMeta)

			if fields := observability.GraphQLLogFields(ctx, analysis, execMeta); len(fields) > 0 {
				logger := logging.FromContext(ctx).WithFields(fields...)
				ctx = logging.WithLogger(ctx, logger)
				setRequestLogger(w, logger)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
