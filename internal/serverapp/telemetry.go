package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"tablegraph/internal/config"
	"tablegraph/internal/logging"
	"tablegraph/internal/observability"
)

func observabilityConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

// InitLogger builds the process logger, adding OTLP export when enabled, and
// installs it as the slog default.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsOTLP()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
	)
	loggerProvider, err := observability.InitLoggerProvider(observabilityConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	return logger, loggerProvider, nil
}

// initTelemetry starts metrics and tracing as configured.
func (a *App) initTelemetry(cleanup *cleanupStack) error {
	cfg := a.cfg
	if cfg.Observability.MetricsEnabled {
		meterProvider, err := observability.InitMeterProvider(observabilityConfig(cfg, cfg.Observability.MetricsOTLP()))
		if err != nil {
			return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
		}
		cleanup.push("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		})

		graphqlMetrics, err := observability.InitMetrics(a.logger.Logger)
		if err != nil {
			return err
		}
		watchMetrics, err := observability.InitSchemaWatchMetrics(a.logger.Logger)
		if err != nil {
			return err
		}
		a.meterProvider = meterProvider
		a.graphqlMetrics = graphqlMetrics
		a.watchMetrics = watchMetrics
	}

	if cfg.Observability.TracingEnabled {
		tracesConfig := cfg.Observability.TracesOTLP()
		a.logger.Info("initializing OpenTelemetry tracing",
			slog.String("otlp_endpoint", tracesConfig.Endpoint),
			slog.String("otlp_protocol", tracesConfig.Protocol),
			slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
		)
		tracerProvider, err := observability.InitTracerProvider(observabilityConfig(cfg, tracesConfig))
		if err != nil {
			return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
		}
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
		a.tracerProvider = tracerProvider
	}
	return nil
}
