package logger

import "context"

type contextKey string

const (
	recordIDKey  contextKey = "logger.record_id"
	requestIDKey contextKey = "logger.request_id"
)

// WithRecordID stores the record correlation id used by loggers for records logged with ctx.
func WithRecordID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, recordIDKey, id)
}

// WithRequestID stores the request correlation id used by loggers for records logged with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RecordID returns the record id stored in ctx.
func RecordID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(recordIDKey).(string)
	return id, ok
}

// RequestID returns the request id stored in ctx.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
