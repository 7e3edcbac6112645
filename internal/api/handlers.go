package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	otelchimetric "github.com/riandyrn/otelchi/metric"
	"go.opentelemetry.io/otel"

	"github.com/granton/logtrace/internal/config"
	"github.com/granton/logtrace/internal/middleware"
	"github.com/granton/logtrace/internal/sentry"
)

// AppInstrumentor attaches request tracing to a router.
type AppInstrumentor interface {
	Enabled() bool
	InstrumentApp(r chi.Router) error
}

type Server struct {
	cfg *config.Config
	log *slog.Logger
}

func NewServer(cfg *config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg: cfg,
		log: log,
	}
}

type HealthResponse struct {
	Status string `json:"status"`
}

// HandleHealth always reports OK.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "OK"})
}

// Router builds the HTTP surface. Tracing middleware goes first so that every
// other middleware runs inside the request span; tracing may be nil.
func (s *Server) Router(tracing AppInstrumentor) (chi.Router, error) {
	r := chi.NewRouter()

	if tracing != nil && tracing.Enabled() {
		if err := tracing.InstrumentApp(r); err != nil {
			return nil, err
		}
	}

	// HTTP metrics
	metricCfg := otelchimetric.NewBaseConfig(s.cfg.ServiceName, otelchimetric.WithMeterProvider(otel.GetMeterProvider()))
	r.Use(otelchimetric.NewRequestDurationMillis(metricCfg))
	r.Use(otelchimetric.NewRequestInFlight(metricCfg))
	r.Use(otelchimetric.NewResponseSizeBytes(metricCfg))

	r.Use(middleware.RequestID)
	r.Use(sentry.HTTPMiddleware)
	r.Use(s.logRequests)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	r.Get("/health", s.HandleHealth)

	return r, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.DebugContext(r.Context(), "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
