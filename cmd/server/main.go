package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/granton/logtrace/internal/api"
	"github.com/granton/logtrace/internal/config"
	"github.com/granton/logtrace/internal/httpclient"
	"github.com/granton/logtrace/internal/logger"
	"github.com/granton/logtrace/internal/sentry"
	"github.com/granton/logtrace/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	logFormat string
	logLevel  string
	logOutput string
	port      string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the health endpoint with logging and tracing configured",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, f)
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "log format: standard or json (overrides LOG_FORMAT)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "minimum log level (overrides LOG_LEVEL)")
	cmd.Flags().StringVar(&f.logOutput, "log-output", "", "stdout, stderr or a file path (overrides LOG_OUTPUT)")
	cmd.Flags().StringVar(&f.port, "port", "", "listen port (overrides PORT)")

	return cmd
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) {
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("log-output") {
		cfg.LogOutput = f.logOutput
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	defer sentry.Recover()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	log, err := logger.Setup(logger.Format(cfg.LogFormat), level, logger.ParseDestination(cfg.LogOutput), cfg.LoggerName)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer logger.Default().Close()
	slog.SetDefault(log)

	enabled, err := sentry.Init(cfg)
	if err != nil {
		slog.Warn("Failed to init Sentry", "error", err)
	} else if enabled {
		defer sentry.Flush(2 * time.Second)
	}

	httpclient.SetTimeout(cfg.HTTPClientTimeout())
	httpclient.ConfigureRetryable(cfg.HTTPRetryMax, log)

	opts := []telemetry.Option{
		telemetry.WithService(cfg.ServiceName, cfg.ServiceVersion, cfg.Env),
		telemetry.WithServerInstrumentor(telemetry.NewServerInstrumentor(cfg.ServiceName)),
		telemetry.WithLogger(log),
	}
	if cfg.OtelExporterOTLPEndpoint != "" {
		opts = append(opts, telemetry.WithEndpointOverride(cfg.OtelExporterOTLPEndpoint))
	}
	if cfg.TraceConsole {
		opts = append(opts, telemetry.WithConsole(os.Stderr))
	}
	if cfg.LogExport {
		opts = append(opts, telemetry.WithLogExport())
	}
	if cfg.Env != "prod" {
		opts = append(opts, telemetry.WithSpanHook(telemetry.LogSpans(log)))
	}

	tracing, err := telemetry.New(ctx, cfg.AppInsightConnectionString, opts...)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	router, err := api.NewServer(cfg, log).Router(tracing)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env, "tracing", tracing.State().String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
