package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/riandyrn/otelchi"

	"github.com/granton/logtrace/internal/httpclient"
)

// Instrumentor is a process-wide switch that makes a library emit spans.
// Instrument is idempotent.
type Instrumentor interface {
	Name() string
	Instrument() error
	IsInstrumented() bool
}

// ErrNotInstrumented is returned by InstrumentApp before Instrument was called.
var ErrNotInstrumented = errors.New("application is not instrumented")

// ServerInstrumentor enables span creation for chi routers.
// Instrument turns it on for the process; InstrumentApp then attaches the
// otelchi middleware to a specific router.
type ServerInstrumentor struct {
	serverName string
	opts       []otelchi.Option

	mu      sync.Mutex
	enabled bool
}

// NewServerInstrumentor returns a disabled instrumentor whose spans are named after serverName.
// Requests to /health are never traced.
func NewServerInstrumentor(serverName string, opts ...otelchi.Option) *ServerInstrumentor {
	return &ServerInstrumentor{
		serverName: serverName,
		opts:       opts,
	}
}

func (s *ServerInstrumentor) Name() string {
	return "chi"
}

func (s *ServerInstrumentor) Instrument() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	return nil
}

func (s *ServerInstrumentor) IsInstrumented() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// InstrumentApp attaches request spans to r. It must run before any route is
// registered on r, chi rejects middleware added afterwards.
func (s *ServerInstrumentor) InstrumentApp(r chi.Router) (err error) {
	if !s.IsInstrumented() {
		return ErrNotInstrumented
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cannot attach tracing middleware: %v", p)
		}
	}()

	opts := append([]otelchi.Option{
		otelchi.WithChiRoutes(r),
		otelchi.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}, s.opts...)
	r.Use(otelchi.Middleware(s.serverName, opts...))
	return nil
}

// DefaultServerInstrumentor is the process-wide server instrumentor.
var DefaultServerInstrumentor = NewServerInstrumentor("logtrace")

// DefaultClientInstrumentors are the process-wide client instrumentors, in setup order:
// the net/http default transport, the shared client and the retrying client.
func DefaultClientInstrumentors() []Instrumentor {
	return []Instrumentor{
		httpclient.DefaultTransportInstrumentor,
		httpclient.SharedInstrumentor,
		httpclient.RetryableInstrumentor,
	}
}
