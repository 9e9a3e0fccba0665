package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"tablegraph/internal/config"
	"tablegraph/internal/dbexec"
	"tablegraph/internal/logging"
	"tablegraph/internal/memstore"
	"tablegraph/internal/sqlstore"
)

const maxRetryInterval = 30 * time.Second

// openStore builds the table store for the configured driver and resolves
// the attached databases.
func (a *App) openStore(ctx context.Context, cleanup *cleanupStack) error {
	if a.cfg.Database.Driver == config.DriverMemory {
		st, err := memstore.LoadFixtureFile(a.cfg.Database.FixtureFile)
		if err != nil {
			return fmt.Errorf("failed to load fixture: %w", err)
		}
		a.databases = a.cfg.Database.Databases
		if len(a.databases) == 0 {
			a.databases = st.Databases()
		}
		a.tableStore = st
		a.ping = func(context.Context) error { return nil }
		a.logger.Info("serving in-memory fixture",
			slog.String("fixture", a.cfg.Database.FixtureFile),
			slog.Any("databases", a.databases),
		)
		return nil
	}

	databases, err := a.cfg.Database.EffectiveDatabases()
	if err != nil {
		return err
	}
	a.logger.Info("connecting to database",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.Any("databases", databases),
	)

	db, statsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(context.Context) error {
		if statsReg != nil {
			if err := statsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	pool := a.cfg.Database.Pool
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := waitForDatabase(ctx, a.cfg.Database.ConnectionTimeout, a.cfg.Database.ConnectionRetryInterval, a.logger, db.PingContext); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	a.logger.Info("connected to database",
		slog.Int("pool_max_open", pool.MaxOpen),
		slog.Int("pool_max_idle", pool.MaxIdle),
		slog.Duration("pool_max_lifetime", pool.MaxLifetime),
	)

	a.db = db
	a.databases = databases
	a.tableStore = sqlstore.New(dbexec.NewStandardExecutor(db))
	a.ping = db.PingContext
	return nil
}

// connectDB opens the MySQL handle, instrumented with otelsql when metrics
// or tracing are on.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	obs := cfg.Observability
	if !obs.MetricsEnabled && !obs.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		return db, nil, err
	}

	opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if obs.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
		if obs.SQLCommenterEnabled {
			opts = append(opts, otelsql.WithSQLCommenter(true))
		}
	} else if obs.SQLCommenterEnabled {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var statsReg interface{ Unregister() error }
	if obs.MetricsEnabled {
		statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}
	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", obs.MetricsEnabled),
		slog.Bool("tracing", obs.TracingEnabled),
		slog.Bool("sqlcommenter", obs.SQLCommenterEnabled && obs.TracingEnabled),
	)
	return db, statsReg, nil
}

// waitForDatabase calls ping until it succeeds or timeout passes, doubling
// the retry interval up to maxRetryInterval. A zero timeout tries once.
func waitForDatabase(ctx context.Context, timeout, interval time.Duration, logger *logging.Logger, ping func(context.Context) error) error {
	if timeout == 0 {
		return ping(ctx)
	}
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := ping(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, maxRetryInterval)
	}
}
