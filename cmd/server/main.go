package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"tablegraph/internal/config"
	"tablegraph/internal/logging"
	"tablegraph/internal/sdl"
	"tablegraph/internal/serverapp"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("tablegraph", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.DefineFlags(fs)
	showVersion := fs.Bool("version", false, "Print version and exit")
	printSDL := fs.Bool("print-sdl", false, "Print the schema definition for all databases and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		_, err := fmt.Fprintf(stdout, "tablegraph %s (%s)\n", Version, Commit)
		return err
	}

	cfg, err := config.LoadFlags(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	if err := validate(cfg); err != nil {
		return err
	}

	if *printSDL {
		return writeSDL(cfg, stdout, stderr)
	}
	return serve(cfg)
}

func validate(cfg *config.Config) error {
	result := cfg.Validate()
	for _, warn := range result.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, err := range result.Errors {
		slog.Error("configuration error",
			slog.String("field", err.Field),
			slog.String("message", err.Message),
			slog.String("hint", err.Hint),
		)
	}
	return fmt.Errorf("configuration validation failed")
}

// writeSDL compiles the schema once and prints it. Logs go to stderr so the
// output can be redirected to a file.
func writeSDL(cfg *config.Config, stdout, stderr io.Writer) error {
	cfg.Observability.MetricsEnabled = false
	cfg.Observability.TracingEnabled = false
	cfg.Server.SchemaWatch.Enabled = false

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: stderr,
	})
	app, err := serverapp.New(cfg, logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer func() {
		_ = app.Shutdown(ctx)
	}()
	if err := app.Init(ctx); err != nil {
		return err
	}

	compiled, err := app.Executor().Schema(ctx, nil, nil)
	if err != nil {
		return err
	}
	sdl.Print(stdout, compiled.Plan)
	return nil
}

func serve(cfg *config.Config) error {
	logger, loggerProvider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	if err := app.Init(context.Background()); err != nil {
		return err
	}

	serverErrors, err := app.Start()
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	_, waitErr := app.WaitForStop(stop, serverErrors)

	logger.Info("shutting down server gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	shutdownErr := app.Shutdown(shutdownCtx)
	shutdownCancel()

	if waitErr != nil {
		return waitErr
	}
	if shutdownErr != nil {
		return shutdownErr
	}

	logger.Info("server stopped gracefully")
	return nil
}
