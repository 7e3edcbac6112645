// Package logger configures named slog loggers for the service.
//
// A Registry owns one sink per logger name. Each sink renders records either
// as a bracketed text line or as one JSON object per line, and every rendered
// record carries the record_id and request_id correlation fields, taken from
// the record's attributes or from the context and rendered as absent when
// neither provides them.
//
// Rendered records are also forwarded to the global OpenTelemetry logger
// provider, scoped by logger name. That provider is a no-op unless telemetry
// installs a log pipeline.
package logger
