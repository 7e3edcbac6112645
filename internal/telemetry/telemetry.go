package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	apperrors "github.com/granton/logtrace/internal/errors"
)

// EnvConnectionString is read when no connection string is passed to New.
const EnvConnectionString = "APP_INSIGHT_CONNECTION_STRING"

// State is the setup progress of a Tracing.
type State int

const (
	StateUninitialized State = iota
	StateNoOp
	StateProviderConfigured
	StateExporterAttached
	StateClientsInstrumented
)

func (s State) String() string {
	switch s {
	case StateNoOp:
		return "noop"
	case StateProviderConfigured:
		return "provider_configured"
	case StateExporterAttached:
		return "exporter_attached"
	case StateClientsInstrumented:
		return "clients_instrumented"
	default:
		return "uninitialized"
	}
}

type options struct {
	serviceName    string
	serviceVersion string
	environment    string
	hook           SpanHook
	endpoint       string
	exporter       ExporterFactory
	logs           bool
	logExporter    LogExporterFactory
	console        io.Writer
	server         *ServerInstrumentor
	clients        []Instrumentor
	logger         *slog.Logger
}

// Option customizes New.
type Option func(*options)

// WithService sets the resource attributes attached to every span.
func WithService(name, version, environment string) Option {
	return func(o *options) {
		o.serviceName = name
		o.serviceVersion = version
		o.environment = environment
	}
}

// WithSpanHook runs hook on every span that ends.
func WithSpanHook(hook SpanHook) Option {
	return func(o *options) { o.hook = hook }
}

// WithExporterFactory replaces the OTLP span exporter.
func WithExporterFactory(f ExporterFactory) Option {
	return func(o *options) { o.exporter = f }
}

// WithEndpointOverride sends spans, and logs when enabled, to endpoint instead of
// DefaultCollectorEndpoint.
func WithEndpointOverride(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithLogExport installs a global OpenTelemetry logger provider exporting over
// OTLP next to the span pipeline.
func WithLogExport() Option {
	return func(o *options) { o.logs = true }
}

// WithLogExporterFactory enables log export with f in place of the OTLP exporter.
func WithLogExporterFactory(f LogExporterFactory) Option {
	return func(o *options) {
		o.logs = true
		o.logExporter = f
	}
}

// WithConsole adds a second pipeline that writes spans to w.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithServerInstrumentor replaces DefaultServerInstrumentor.
func WithServerInstrumentor(s *ServerInstrumentor) Option {
	return func(o *options) { o.server = s }
}

// WithClientInstrumentors replaces DefaultClientInstrumentors.
func WithClientInstrumentors(clients ...Instrumentor) Option {
	return func(o *options) { o.clients = clients }
}

// WithLogger sets the logger used for setup diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Tracing owns the trace export pipeline of the process.
//
// New installs a global tracer provider. It must be called at most once per
// process: every call replaces the global provider, and pipelines attached to
// the previous one stop receiving spans.
type Tracing struct {
	connectionString string
	opts             options
	provider         *sdktrace.TracerProvider
	logProvider      *sdklog.LoggerProvider
	state            State
}

// New resolves the connection string, falling back to APP_INSIGHT_CONNECTION_STRING,
// and sets up tracing when one is found. Without a connection string the returned
// Tracing is a no-op and no error is reported.
//
// Any setup failure is returned as a TRACING_SETUP_ERROR. Instrumentation
// applied before the failure stays applied.
func New(ctx context.Context, connectionString string, opts ...Option) (*Tracing, error) {
	o := options{
		serviceName: "logtrace",
		server:      DefaultServerInstrumentor,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clients == nil {
		o.clients = DefaultClientInstrumentors()
	}

	t := &Tracing{
		connectionString: connectionString,
		opts:             o,
	}
	if t.connectionString == "" {
		t.connectionString = os.Getenv(EnvConnectionString)
	}

	if t.connectionString == "" {
		t.state = StateNoOp
		o.logger.Debug("Tracing disabled, no connection string")
		return t, nil
	}

	if err := t.setup(ctx); err != nil {
		return nil, apperrors.NewTracingSetupError(fmt.Sprintf("cannot set up tracing instrumentation: %v", err))
	}

	o.logger.Info("Tracing initialized",
		"service", o.serviceName,
		"environment", o.environment,
		"endpoint", t.endpoint(),
		"logs", o.logs,
		"console", o.console != nil,
	)
	return t, nil
}

func (t *Tracing) endpoint() string {
	if t.opts.endpoint != "" {
		return t.opts.endpoint
	}
	return DefaultCollectorEndpoint
}

func (t *Tracing) setup(ctx context.Context) error {
	if t.opts.endpoint == "" && (t.opts.exporter == nil || (t.opts.logs && t.opts.logExporter == nil)) {
		t.opts.logger.Warn("No OTLP endpoint configured, exporting to the local collector",
			"endpoint", DefaultCollectorEndpoint,
			"hint", "run an OpenTelemetry Collector with the azuremonitor exporter and "+EnvConnectionString,
		)
	}

	if err := t.ConfigureExporter(ctx, t.connectionString); err != nil {
		return err
	}

	if err := t.opts.server.Instrument(); err != nil {
		return fmt.Errorf("%s: %w", t.opts.server.Name(), err)
	}
	for _, c := range t.opts.clients {
		if err := c.Instrument(); err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
	}
	t.state = StateClientsInstrumented
	return nil
}

func (t *Tracing) resource() *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(t.opts.serviceName)}
	if t.opts.serviceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(t.opts.serviceVersion))
	}
	if t.opts.environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(t.opts.environment))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// ConfigureProvider creates a tracer provider and installs it as the global one.
func (t *Tracing) ConfigureProvider() *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(t.resource()))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.provider = tp
	t.state = StateProviderConfigured
	return tp
}

// ConfigureExporter builds the exporter for connectionString, configures a fresh
// global provider and registers the batching processor with it. With log export
// enabled it also installs the global logger provider.
func (t *Tracing) ConfigureExporter(ctx context.Context, connectionString string) error {
	factory := t.opts.exporter
	if factory == nil {
		factory = OTLPExporterFactory(t.opts.endpoint)
	}
	exporter, err := factory(ctx, connectionString)
	if err != nil {
		return err
	}

	tp := t.ConfigureProvider()
	tp.RegisterSpanProcessor(NewSpanProcessor(exporter, t.opts.hook))

	if t.opts.console != nil {
		console, err := stdouttrace.New(stdouttrace.WithWriter(t.opts.console))
		if err != nil {
			return err
		}
		tp.RegisterSpanProcessor(sdktrace.NewSimpleSpanProcessor(console))
	}

	if t.opts.logs {
		if err := t.configureLogs(ctx, connectionString); err != nil {
			return err
		}
	}

	t.state = StateExporterAttached
	return nil
}

func (t *Tracing) configureLogs(ctx context.Context, connectionString string) error {
	factory := t.opts.logExporter
	if factory == nil {
		factory = OTLPLogExporterFactory(t.opts.endpoint)
	}
	exporter, err := factory(ctx, connectionString)
	if err != nil {
		return fmt.Errorf("log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(t.resource()),
	)
	global.SetLoggerProvider(lp)
	t.logProvider = lp
	return nil
}

// InstrumentApp attaches request spans to the router. It fails unless server
// instrumentation was enabled first, which New only does when a connection
// string is available.
func (t *Tracing) InstrumentApp(r chi.Router) error {
	if err := t.opts.server.InstrumentApp(r); err != nil {
		if errors.Is(err, ErrNotInstrumented) {
			return apperrors.NewTracingSetupError(err.Error())
		}
		return apperrors.NewTracingSetupError(fmt.Sprintf("cannot instrument application: %v", err))
	}
	return nil
}

// Enabled reports whether a connection string was found.
func (t *Tracing) Enabled() bool {
	return t.state != StateNoOp && t.state != StateUninitialized
}

func (t *Tracing) State() State {
	return t.state
}

// ConnectionString returns the resolved connection string.
func (t *Tracing) ConnectionString() string {
	return t.connectionString
}

// Provider returns the provider installed by this Tracing, or nil.
func (t *Tracing) Provider() *sdktrace.TracerProvider {
	return t.provider
}

// LoggerProvider returns the logger provider installed by this Tracing, or nil
// when log export is off.
func (t *Tracing) LoggerProvider() *sdklog.LoggerProvider {
	return t.logProvider
}

// Shutdown flushes pending spans and log records and stops both providers.
func (t *Tracing) Shutdown(ctx context.Context) error {
	var errs []error
	if t.provider != nil {
		errs = append(errs, t.provider.Shutdown(ctx))
	}
	if t.logProvider != nil {
		errs = append(errs, t.logProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
