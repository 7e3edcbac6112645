package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/granton/logtrace/internal/config"
)

// Init initializes Sentry from the service configuration.
// If SENTRY_DSN is empty, Sentry initialization is skipped and false is returned.
func Init(cfg *config.Config) (bool, error) {
	if cfg.SentryDSN == "" {
		return false, nil
	}

	options := sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Env,
		ServerName:       cfg.ServiceName,
		Release:          cfg.ServiceVersion,
		AttachStacktrace: true,
		TracesSampleRate: 0.0, // Disable Sentry tracing, use OpenTelemetry instead
	}

	if err := sentry.Init(options); err != nil {
		return false, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return true, nil
}

// Flush waits for all pending Sentry events to be sent.
// Call this during graceful shutdown.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Recover captures a panic and forwards it to Sentry.
func Recover() {
	if err := recover(); err != nil {
		sentry.CurrentHub().Recover(err)
		sentry.Flush(2 * time.Second)
		panic(err)
	}
}
