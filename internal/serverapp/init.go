package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tablegraph/internal/executor"
	"tablegraph/internal/schemacache"
	"tablegraph/internal/tlscert"
)

// warmupTimeout bounds the startup schema compile.
const warmupTimeout = 30 * time.Second

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	if err := a.initTelemetry(&cleanup); err != nil {
		return err
	}

	if err := a.openStore(ctx, &cleanup); err != nil {
		return err
	}

	exec := executor.New(a.tableStore, a.databases, a.cfg.ExecutorConfig(),
		executor.WithLogger(a.logger),
		executor.WithMetrics(a.graphqlMetrics),
	)

	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	compiled, err := exec.Schema(warmCtx, nil, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	a.logger.Info("schema compiled",
		slog.Any("databases", compiled.Databases),
		slog.Int("tables", len(compiled.Plan.Types)),
	)

	if a.cfg.Server.SchemaWatch.Enabled {
		watcher, err := schemacache.NewWatcher(schemacache.WatcherConfig{
			Cache:       exec.Cache(),
			Store:       a.tableStore,
			Databases:   a.databases,
			MinInterval: a.cfg.Server.SchemaWatch.MinInterval,
			MaxInterval: a.cfg.Server.SchemaWatch.MaxInterval,
			Logger:      a.logger,
			Metrics:     a.watchMetrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize schema watcher: %w", err)
		}
		watchCtx, watchCancel := context.WithCancel(context.Background())
		watcher.Start(watchCtx)
		cleanup.push("schema watcher", func(shutdownCtx context.Context) error {
			watchCancel()
			return watcher.Wait(shutdownCtx)
		})
		a.watcher = watcher
	}

	mux := a.buildRouter(exec)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := ":" + strconv.Itoa(a.cfg.Server.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}
	certs, err := tlscert.New(tlscert.Config{
		Mode:     tlscert.Mode(a.cfg.Server.TLS.Mode),
		CertFile: a.cfg.Server.TLS.CertFile,
		KeyFile:  a.cfg.Server.TLS.KeyFile,
		Dir:      a.cfg.Server.TLS.SelfSignedDir,
		Hosts:    a.cfg.Server.TLS.SelfSignedHosts,
	}, a.logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize TLS: %w", err)
	}
	if certs != nil {
		srv.TLSConfig = certs.TLSConfig()
		a.logger.Info("HTTPS enabled", slog.String("certificates", certs.Describe()))
	}
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.executor = exec
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.certs = certs
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
