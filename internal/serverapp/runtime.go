package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// Start launches the HTTP server goroutine. It requires Init to have completed.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	serverErrors := make(chan error, 1)
	srv := a.srv
	secure := a.certs != nil
	a.logger.Info("server starting",
		slog.String("address", a.serverAddr),
		slog.Bool("tls", secure),
		slog.String("graphql_endpoint", "/graphql"),
		slog.Any("databases", a.databases),
		slog.Bool("graphiql", a.cfg.Server.GraphiQLEnabled),
		slog.Bool("schema_watch", a.cfg.Server.SchemaWatch.Enabled),
		slog.Bool("rate_limit", a.cfg.Server.RateLimitEnabled),
	)
	go func() {
		var err error
		if secure {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	a.serverErrors = serverErrors
	a.started = true
	return serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the server fails.
// Either channel may be nil, but not both.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		if a.serverErrors != nil {
			serverErrors = a.serverErrors
		}
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel never becomes ready, so one select covers every case.
	select {
	case err := <-serverErrors:
		if err == nil {
			return "server_error", fmt.Errorf("server stopped unexpectedly")
		}
		return "server_error", fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return "signal", nil
	}
}
