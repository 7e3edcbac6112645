package sentry

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/granton/logtrace/internal/logger"
)

// HTTPMiddleware captures panics in HTTP handlers, tagging the event with the
// request correlation id and the trace id when present.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		hub.ConfigureScope(func(scope *sentry.Scope) {
			if id, ok := logger.RequestID(r.Context()); ok {
				scope.SetTag("request_id", id)
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				scope.SetTag("trace_id", sc.TraceID().String())
			}
		})

		wrapped := &responseWriter{ResponseWriter: w}
		ctx := sentry.SetHubOnContext(r.Context(), hub)

		defer func() {
			if err := recover(); err != nil {
				hub.RecoverWithContext(ctx, err)
				if !wrapped.wroteHeader {
					wrapped.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(wrapped, r.WithContext(ctx))
	})
}

type responseWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
