package telemetry

import (
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanHook is called with every span that ends, after it is handed to the batcher.
type SpanHook func(span sdktrace.ReadOnlySpan)

// SpanProcessor is a batch span processor with an optional per-span hook.
type SpanProcessor struct {
	sdktrace.SpanProcessor
	hook SpanHook
}

// NewSpanProcessor batches spans into exporter and calls hook for each ended span.
// hook may be nil.
func NewSpanProcessor(exporter sdktrace.SpanExporter, hook SpanHook, opts ...sdktrace.BatchSpanProcessorOption) *SpanProcessor {
	return &SpanProcessor{
		SpanProcessor: sdktrace.NewBatchSpanProcessor(exporter, opts...),
		hook:          hook,
	}
}

func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	p.SpanProcessor.OnEnd(s)
	if p.hook != nil {
		p.hook(s)
	}
}

// LogSpans returns a hook that logs each ended span at debug level.
func LogSpans(logger *slog.Logger) SpanHook {
	return func(s sdktrace.ReadOnlySpan) {
		logger.Debug("span ended",
			"name", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		)
	}
}
