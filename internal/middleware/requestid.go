package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/granton/logtrace/internal/logger"
)

// RequestIDHeader is read from incoming requests and echoed on every response.
const RequestIDHeader = "X-Request-Id"

// validRequestID bounds incoming ids to characters that cannot break a log line.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID puts a request correlation id into the request context, where the
// configured loggers pick it up as request_id. An incoming X-Request-Id made of
// letters, digits, '.', '_' and '-' (at most 128) is kept; anything else is
// replaced by a new UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
