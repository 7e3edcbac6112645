package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTransport is the uninstrumented base transport, captured before any
// instrumentor replaces http.DefaultTransport.
var DefaultTransport = http.DefaultTransport

// DefaultTimeout applies to Shared until SetTimeout is called.
const DefaultTimeout = 30 * time.Second

type contextKey string

const peerServiceKey contextKey = "httpclient.peer_service"

// WithPeerService names the remote service for spans of requests made with ctx.
func WithPeerService(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, peerServiceKey, name)
}

// PeerService returns the remote service name set by WithPeerService, if any.
func PeerService(ctx context.Context) string {
	peer, _ := ctx.Value(peerServiceKey).(string)
	return peer
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// tagPeer runs inside the otelhttp client span and adds peer.service to it.
func tagPeer(base http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if peer := PeerService(req.Context()); peer != "" {
			trace.SpanFromContext(req.Context()).SetAttributes(semconv.PeerService(peer))
		}
		return base.RoundTrip(req)
	})
}

// spanName is "<peer>: METHOD /path", or "METHOD /path" without a peer service.
func spanName(_ string, r *http.Request) string {
	if peer := PeerService(r.Context()); peer != "" {
		return peer + ": " + r.Method + " " + r.URL.Path
	}
	return r.Method + " " + r.URL.Path
}

// NewOtelTransport wraps base so every request produces a client span. Error
// status for failed round trips and 4xx/5xx responses is set by otelhttp.
func NewOtelTransport(base http.RoundTripper, opts ...otelhttp.Option) http.RoundTripper {
	if base == nil {
		base = DefaultTransport
	}
	opts = append([]otelhttp.Option{otelhttp.WithSpanNameFormatter(spanName)}, opts...)
	return otelhttp.NewTransport(tagPeer(base), opts...)
}

// Shared is the process-wide client for outbound API calls.
var Shared = &http.Client{
	Transport: DefaultTransport,
	Timeout:   DefaultTimeout,
}

// Retryable is the process-wide retrying client.
var Retryable = newRetryable()

func newRetryable() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	return c
}

// SetTimeout changes the timeout of Shared.
func SetTimeout(d time.Duration) {
	Shared.Timeout = d
}

// ConfigureRetryable sets the retry budget and logger of Retryable.
// logger may be nil to silence the client; *slog.Logger satisfies retryablehttp.LeveledLogger.
func ConfigureRetryable(retryMax int, logger retryablehttp.LeveledLogger) {
	Retryable.RetryMax = retryMax
	Retryable.Logger = nil
	if logger != nil {
		Retryable.Logger = logger
	}
}

// WrapClient wraps an existing http.Client's transport with OpenTelemetry instrumentation.
func WrapClient(client *http.Client) *http.Client {
	client.Transport = NewOtelTransport(client.Transport)
	return client
}
