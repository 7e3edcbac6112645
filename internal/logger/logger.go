package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	apperrors "github.com/granton/logtrace/internal/errors"
)

// Format selects how records are rendered.
type Format string

const (
	FormatStandard Format = "standard"
	FormatJSON     Format = "json"
)

// LevelCritical sits above slog.LevelError and renders as CRITICAL.
const LevelCritical = slog.Level(12)

// Destination is where a configured logger writes: an open stream or a file path.
type Destination struct {
	w    io.Writer
	path string
}

// Stream writes to an already open writer. The writer is never closed by the registry.
func Stream(w io.Writer) Destination {
	return Destination{w: w}
}

// File appends to the file at path, creating it when missing.
func File(path string) Destination {
	return Destination{path: path}
}

// ParseDestination maps "", "stdout" and "stderr" to the process streams
// and treats anything else as a file path.
func ParseDestination(s string) Destination {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stdout":
		return Stream(os.Stdout)
	case "stderr":
		return Stream(os.Stderr)
	default:
		return File(s)
	}
}

func (d Destination) String() string {
	switch {
	case d.path != "":
		return d.path
	case d.w == os.Stderr:
		return "stderr"
	default:
		return "stdout"
	}
}

func (d Destination) open() (io.Writer, io.Closer, error) {
	if d.path != "" {
		f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, apperrors.NewFileAccessError(d.path, err)
		}
		return f, f, nil
	}
	if d.w == nil {
		return os.Stdout, nil, nil
	}
	return d.w, nil, nil
}

// ParseLevel accepts level names (DEBUG, INFO, WARNING/WARN, ERROR, CRITICAL/FATAL)
// and numeric levels on the 10/20/30/40/50 scale.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL", "FATAL":
		return LevelCritical, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperrors.NewConfigurationError(fmt.Sprintf("unknown log level %q", s))
	}
	switch {
	case n >= 50:
		return LevelCritical, nil
	case n >= 40:
		return slog.LevelError, nil
	case n >= 30:
		return slog.LevelWarn, nil
	case n >= 20:
		return slog.LevelInfo, nil
	default:
		return slog.LevelDebug, nil
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

type sink struct {
	format Format
	level  slog.Level

	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

func (s *sink) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

func (s *sink) close() error {
	if s.closer == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closer.Close()
}

type entry struct {
	name string
	sink atomic.Pointer[sink]
}

// Registry maps logger names to their current output. Reconfiguring a name
// replaces its sink, and loggers handed out earlier for that name follow it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Configure attaches a single sink with the given format, level and destination
// to the named logger, dropping whatever was attached before, and returns a
// logger bound to that name.
//
// An unknown format returns a nil logger and leaves the name untouched.
// A destination file that cannot be opened returns a FILE_ACCESS_ERROR.
func (r *Registry) Configure(format Format, level slog.Leveler, dest Destination, name string) (*slog.Logger, error) {
	if format != FormatStandard && format != FormatJSON {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("unknown log format %q", format))
	}
	if level == nil {
		level = slog.LevelDebug
	}

	w, closer, err := dest.open()
	if err != nil {
		return nil, err
	}

	s := &sink{format: format, level: level.Level(), w: w, closer: closer}

	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		e = &entry{name: name}
		r.entries[name] = e
	}
	old := e.sink.Swap(s)
	r.mu.Unlock()

	if old != nil {
		_ = old.close()
	}

	return slog.New(&handler{entry: e}), nil
}

// Sinks reports how many outputs are attached to the named logger.
func (r *Registry) Sinks(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok || e.sink.Load() == nil {
		return 0
	}
	return 1
}

// Close detaches every sink and closes the files the registry opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, e := range r.entries {
		if s := e.sink.Swap(nil); s != nil {
			if err := s.close(); err != nil {
				errs = append(errs, fmt.Errorf("close logger %q: %w", e.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by Setup.
func Default() *Registry {
	return defaultRegistry
}

// Setup configures the named logger on the process-wide registry.
// It is meant to be called once at startup, before requests are served.
func Setup(format Format, level slog.Leveler, dest Destination, name string) (*slog.Logger, error) {
	return defaultRegistry.Configure(format, level, dest, name)
}
