package serverapp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tablegraph/internal/config"
	"tablegraph/internal/executor"
	"tablegraph/internal/gqlrequest"
	"tablegraph/internal/logging"
	"tablegraph/internal/middleware"
	"tablegraph/internal/observability"
)

const reloadTimeout = 15 * time.Second

func (a *App) buildRouter(exec *executor.Executor) *http.ServeMux {
	fingerprint := a.cfg.ExecutorConfig().Fingerprint()
	meta := func(r *http.Request) gqlrequest.ExecMeta {
		return gqlrequest.ExecMeta{Databases: databasesFor(r), Fingerprint: fingerprint}
	}

	graphql := middleware.GraphQLRequestAnalysisMiddleware(meta)(
		middleware.GraphQLTracingMiddleware()(
			&graphqlEndpoint{exec: exec, graphiQL: a.cfg.Server.GraphiQLEnabled},
		),
	)

	mux := http.NewServeMux()
	mux.Handle("/graphql", graphql)
	mux.Handle("/graphql/{database}", graphql)
	mux.HandleFunc("/graphql.graphql", func(w http.ResponseWriter, r *http.Request) {
		serveSDL(w, r, exec, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/health", healthHandler(a.ping, a.cfg.Server.HealthCheckTimeout))

	if a.cfg.Server.Admin.SchemaReloadEnabled {
		mux.HandleFunc("/admin/reload-schema", schemaReloadHandler(exec, a.watchMetrics))
		a.logger.Warn("admin schema reload endpoint enabled without authentication",
			slog.String("path", "/admin/reload-schema"))
	}
	if a.meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		a.logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

// wrapHTTPHandler applies, from the outside in: rate limiting, CORS,
// otelhttp and request logging.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
	}

	handler = middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.Server.CORSEnabled,
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   cfg.Server.CORSAllowedMethods,
		AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
		ExposeHeaders:    cfg.Server.CORSExposeHeaders,
		AllowCredentials: cfg.Server.CORSAllowCredentials,
		MaxAge:           cfg.Server.CORSMaxAge,
	})(handler)

	return middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Enabled: cfg.Server.RateLimitEnabled,
		RPS:     cfg.Server.RateLimitRPS,
		Burst:   cfg.Server.RateLimitBurst,
	})(handler)
}

func httpRootSpanName(r *http.Request) string {
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(path string) string {
	switch {
	case path == "/", path == "/graphql", path == "/graphql.graphql",
		path == "/health", path == "/metrics", path == "/admin/reload-schema":
		return path
	case strings.HasPrefix(path, "/graphql/") && !strings.Contains(path[len("/graphql/"):], "/"):
		return "/graphql/{database}"
	default:
		return "/*"
	}
}

func healthHandler(ping func(context.Context) error, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if ping != nil {
			if err := ping(ctx); err != nil {
				reqLogger.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unhealthy","database":"failed"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","database":"ok"}`))
	}
}

// schemaReloadHandler drops every compiled schema and recompiles the default
// one so failures surface in the response.
func schemaReloadHandler(exec *executor.Executor, metrics *observability.SchemaWatchMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = w.Write([]byte(`{"error":"method not allowed"}`))
			return
		}

		reqLogger.Info("schema reload requested", slog.String("remote_addr", r.RemoteAddr))
		exec.InvalidateSchema()
		metrics.RecordInvalidation(r.Context(), observability.InvalidationTriggerAdmin)

		ctx, cancel := context.WithTimeout(r.Context(), reloadTimeout)
		defer cancel()
		if _, err := exec.Schema(ctx, nil, nil); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error","message":"schema reload failed"}`))
			return
		}

		reqLogger.Info("schema reloaded")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
