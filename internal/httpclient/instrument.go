package httpclient

import (
	"errors"
	"net/http"
	"sync"
)

// Instrumentor applies client span instrumentation once per process.
type Instrumentor struct {
	name  string
	apply func() error

	mu   sync.Mutex
	done bool
}

// NewInstrumentor returns an Instrumentor that runs apply on the first successful Instrument call.
func NewInstrumentor(name string, apply func() error) *Instrumentor {
	return &Instrumentor{name: name, apply: apply}
}

// NewClientInstrumentor instruments the transport of client.
func NewClientInstrumentor(name string, client *http.Client) *Instrumentor {
	return NewInstrumentor(name, func() error {
		if client == nil {
			return errors.New(name + ": client is nil")
		}
		WrapClient(client)
		return nil
	})
}

func (i *Instrumentor) Name() string {
	return i.name
}

// Instrument applies the instrumentation. Calls after the first success are no-ops.
func (i *Instrumentor) Instrument() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.done {
		return nil
	}
	if err := i.apply(); err != nil {
		return err
	}
	i.done = true
	return nil
}

func (i *Instrumentor) IsInstrumented() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.done
}

var (
	// DefaultTransportInstrumentor instruments http.DefaultTransport, and so
	// http.Get, http.DefaultClient and every client without its own transport.
	DefaultTransportInstrumentor = NewInstrumentor("net/http", func() error {
		http.DefaultTransport = NewOtelTransport(DefaultTransport)
		return nil
	})

	// SharedInstrumentor instruments Shared.
	SharedInstrumentor = NewClientInstrumentor("httpclient", Shared)

	// RetryableInstrumentor instruments the HTTP client underneath Retryable.
	RetryableInstrumentor = NewInstrumentor("retryablehttp", func() error {
		if Retryable.HTTPClient == nil {
			Retryable.HTTPClient = &http.Client{}
		}
		WrapClient(Retryable.HTTPClient)
		return nil
	})
)
