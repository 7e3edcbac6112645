package logger

import (
	"context"
	"log/slog"
	"strings"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// emit forwards a rendered record to the global OpenTelemetry logger provider.
// Until a provider is installed the global one is a no-op and nothing is built.
func emit(ctx context.Context, name string, f *fields) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := global.GetLoggerProvider().Logger(name)

	severity := severityOf(f.level)
	if !l.Enabled(ctx, otellog.EnabledParameters{Severity: severity}) {
		return
	}

	var rec otellog.Record
	rec.SetTimestamp(f.time)
	rec.SetObservedTimestamp(f.time)
	rec.SetSeverity(severity)
	rec.SetSeverityText(levelName(f.level))
	rec.SetBody(otellog.StringValue(f.message))

	if f.recordID.set {
		rec.AddAttributes(otellog.String(RecordIDKey, f.recordID.value.String()))
	}
	if f.requestID.set {
		rec.AddAttributes(otellog.String(RequestIDKey, f.requestID.value.String()))
	}
	for _, ga := range f.extras {
		rec.AddAttributes(otelKeyValue(ga.groups, ga.attr))
	}

	l.Emit(ctx, rec)
}

func severityOf(l slog.Level) otellog.Severity {
	switch {
	case l >= LevelCritical:
		return otellog.SeverityFatal
	case l >= slog.LevelError:
		return otellog.SeverityError
	case l >= slog.LevelWarn:
		return otellog.SeverityWarn
	case l >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}

// otelKeyValue flattens the group path into a dotted key.
func otelKeyValue(groups []string, attr slog.Attr) otellog.KeyValue {
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return otellog.KeyValue{Key: key, Value: otelValue(attr.Value)}
}

func otelValue(v slog.Value) otellog.Value {
	switch v.Kind() {
	case slog.KindString:
		return otellog.StringValue(v.String())
	case slog.KindInt64:
		return otellog.Int64Value(v.Int64())
	case slog.KindUint64:
		return otellog.Int64Value(int64(v.Uint64()))
	case slog.KindFloat64:
		return otellog.Float64Value(v.Float64())
	case slog.KindBool:
		return otellog.BoolValue(v.Bool())
	case slog.KindGroup:
		group := v.Group()
		kvs := make([]otellog.KeyValue, 0, len(group))
		for _, a := range group {
			a.Value = a.Value.Resolve()
			kvs = append(kvs, otellog.KeyValue{Key: a.Key, Value: otelValue(a.Value)})
		}
		return otellog.MapValue(kvs...)
	default:
		return otellog.StringValue(v.String())
	}
}
