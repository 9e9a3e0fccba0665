// Package serverapp wires configuration, storage, the executor and the HTTP
// surface into a runnable server with an ordered shutdown.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"tablegraph/internal/config"
	"tablegraph/internal/executor"
	"tablegraph/internal/logging"
	"tablegraph/internal/observability"
	"tablegraph/internal/schemacache"
	"tablegraph/internal/store"
	"tablegraph/internal/tlscert"
)

// App owns runtime resources for the server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	graphqlMetrics *observability.GraphQLMetrics
	watchMetrics   *observability.SchemaWatchMetrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB // nil for the memory driver
	tableStore store.TableStore
	databases  []string
	ping       func(context.Context) error

	executor *executor.Executor
	watcher  *schemacache.Watcher

	handler    http.Handler
	serverAddr string
	srv        *http.Server
	certs      tlscert.Source // nil serves plain HTTP

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// Executor returns the request executor. It is nil before Init.
func (a *App) Executor() *executor.Executor {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.executor
}
