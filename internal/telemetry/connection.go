package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultIngestionEndpoint = "https://dc.services.visualstudio.com"

// ConnectionString is a parsed Application Insights connection string.
type ConnectionString struct {
	InstrumentationKey string
	IngestionEndpoint  string
	LiveEndpoint       string
	ApplicationID      string
}

// ParseConnectionString parses "Key=Value;Key=Value" pairs. Keys are case-insensitive.
// InstrumentationKey is required; the ingestion endpoint falls back to EndpointSuffix
// and then to the public default.
func ParseConnectionString(s string) (ConnectionString, error) {
	values := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionString{}, fmt.Errorf("malformed connection string segment %q", part)
		}
		values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	cs := ConnectionString{
		InstrumentationKey: values["instrumentationkey"],
		IngestionEndpoint:  values["ingestionendpoint"],
		LiveEndpoint:       values["liveendpoint"],
		ApplicationID:      values["applicationid"],
	}
	if cs.InstrumentationKey == "" {
		return ConnectionString{}, errors.New("connection string has no InstrumentationKey")
	}
	if cs.IngestionEndpoint == "" {
		if suffix := values["endpointsuffix"]; suffix != "" {
			cs.IngestionEndpoint = "https://dc." + strings.TrimPrefix(suffix, ".")
		} else {
			cs.IngestionEndpoint = defaultIngestionEndpoint
		}
	}
	return cs, nil
}

// DefaultCollectorEndpoint is the OTLP/HTTP receiver used when no endpoint is configured.
// Application Insights does not accept OTLP directly, so spans and logs go through a
// collector running the azuremonitor exporter with the same connection string.
const DefaultCollectorEndpoint = "http://localhost:4318"

// exportTarget is the OTLP/HTTP host, path and transport security derived from an endpoint URL.
type exportTarget struct {
	host     string
	urlPath  string
	insecure bool
}

// parseExportTarget resolves endpoint for one signal ("traces" or "logs").
// A signal path already present on endpoint is replaced.
func parseExportTarget(endpoint, signal string) (exportTarget, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return exportTarget{}, fmt.Errorf("invalid export endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return exportTarget{}, fmt.Errorf("invalid export endpoint %q: no host", endpoint)
	}

	basePath := strings.TrimSuffix(u.Path, "/")
	for _, known := range []string{"/v1/traces", "/v1/logs"} {
		basePath = strings.TrimSuffix(basePath, known)
	}

	return exportTarget{
		host:     u.Host,
		urlPath:  basePath + "/v1/" + signal,
		insecure: u.Scheme == "http",
	}, nil
}

// resolveTarget validates the connection string and resolves the collector endpoint.
func resolveTarget(connectionString, endpoint, signal string) (exportTarget, error) {
	if _, err := ParseConnectionString(connectionString); err != nil {
		return exportTarget{}, err
	}
	if endpoint == "" {
		endpoint = DefaultCollectorEndpoint
	}
	return parseExportTarget(endpoint, signal)
}

// ExporterFactory builds the span exporter for a connection string.
type ExporterFactory func(ctx context.Context, connectionString string) (sdktrace.SpanExporter, error)

// LogExporterFactory builds the log record exporter for a connection string.
type LogExporterFactory func(ctx context.Context, connectionString string) (sdklog.Exporter, error)

// OTLPExporterFactory exports spans over OTLP/HTTP to endpoint, or to
// DefaultCollectorEndpoint when endpoint is empty.
func OTLPExporterFactory(endpoint string) ExporterFactory {
	return func(ctx context.Context, connectionString string) (sdktrace.SpanExporter, error) {
		target, err := resolveTarget(connectionString, endpoint, "traces")
		if err != nil {
			return nil, err
		}

		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(target.host),
			otlptracehttp.WithURLPath(target.urlPath),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if target.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
}

// OTLPLogExporterFactory exports log records over OTLP/HTTP to the same target
// OTLPExporterFactory would use for spans.
func OTLPLogExporterFactory(endpoint string) LogExporterFactory {
	return func(ctx context.Context, connectionString string) (sdklog.Exporter, error) {
		target, err := resolveTarget(connectionString, endpoint, "logs")
		if err != nil {
			return nil, err
		}

		opts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(target.host),
			otlploghttp.WithURLPath(target.urlPath),
			otlploghttp.WithCompression(otlploghttp.GzipCompression),
		}
		if target.insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		return otlploghttp.New(ctx, opts...)
	}
}
