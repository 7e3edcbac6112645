package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/granton/logtrace/internal/errors"
)

var standardLine = regexp.MustCompile(`^(DEBUG|INFO|WARNING|ERROR|CRITICAL) \[(.*) \| (.*) \| (\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})\]: (.*)$`)

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
}

func TestConfigure_StandardWithoutCorrelation(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewRegistry().Configure(FormatStandard, slog.LevelDebug, Stream(&buf), "svc")
	require.NoError(t, err)

	l.Debug("hello")

	got := lines(&buf)
	require.Len(t, got, 1)
	m := standardLine.FindStringSubmatch(got[0])
	require.NotNil(t, m, "line %q does not match the standard template", got[0])
	assert.Equal(t, "DEBUG", m[1])
	assert.Equal(t, "None", m[2])
	assert.Equal(t, "None", m[3])
	assert.Equal(t, "hello", m[5])
}

func TestConfigure_StandardWithCorrelation(t *testing.T) {
	tests := []struct {
		name    string
		log     func(l *slog.Logger)
		record  string
		request string
	}{
		{
			name: "record attributes",
			log: func(l *slog.Logger) {
				l.Info("msg", RecordIDKey, "rec-1", RequestIDKey, "req-1")
			},
			record:  "rec-1",
			request: "req-1",
		},
		{
			name: "bound attributes",
			log: func(l *slog.Logger) {
				l.With(RequestIDKey, "req-2").Info("msg")
			},
			record:  "None",
			request: "req-2",
		},
		{
			name: "context",
			log: func(l *slog.Logger) {
				ctx := WithRecordID(context.Background(), "rec-3")
				ctx = WithRequestID(ctx, "req-3")
				l.InfoContext(ctx, "msg")
			},
			record:  "rec-3",
			request: "req-3",
		},
		{
			name: "attribute wins over context",
			log: func(l *slog.Logger) {
				ctx := WithRecordID(context.Background(), "from-ctx")
				l.InfoContext(ctx, "msg", RecordIDKey, "from-attr")
			},
			record:  "from-attr",
			request: "None",
		},
		{
			name: "non string id",
			log: func(l *slog.Logger) {
				l.Info("msg", RecordIDKey, 42)
			},
			record:  "42",
			request: "None",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := NewRegistry().Configure(FormatStandard, slog.LevelDebug, Stream(&buf), "svc")
			require.NoError(t, err)

			tt.log(l)

			m := standardLine.FindStringSubmatch(lines(&buf)[0])
			require.NotNil(t, m)
			assert.Equal(t, "INFO", m[1])
			assert.Equal(t, tt.record, m[2])
			assert.Equal(t, tt.request, m[3])
			assert.Equal(t, "msg", m[5])
		})
	}
}

func TestConfigure_StandardDropsExtras(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewRegistry().Configure(FormatStandard, slog.LevelDebug, Stream(&buf), "svc")
	require.NoError(t, err)

	l.Warn("careful", "user", "bob")

	m := standardLine.FindStringSubmatch(lines(&buf)[0])
	require.NotNil(t, m)
	assert.Equal(t, "WARNING", m[1])
	assert.Equal(t, "careful", m[5])
}

func TestConfigure_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewRegistry().Configure(FormatJSON, slog.LevelDebug, Stream(&buf), "svc")
	require.NoError(t, err)

	l.Error("failed", RequestIDKey, "req-9", "attempt", 3, slog.Group("http", "method", "GET"))

	v, err := fastjson.Parse(lines(&buf)[0])
	require.NoError(t, err)

	for _, key := range []string{"levelname", "record_id", "request_id", "asctime", "message"} {
		assert.True(t, v.Exists(key), "missing key %q", key)
	}
	assert.Equal(t, "ERROR", string(v.GetStringBytes("levelname")))
	assert.Equal(t, fastjson.TypeNull, v.Get("record_id").Type())
	assert.Equal(t, "req-9", string(v.GetStringBytes("request_id")))
	assert.Equal(t, "failed", string(v.GetStringBytes("message")))
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`, string(v.GetStringBytes("asctime")))
	assert.Equal(t, 3, v.GetInt("attempt"))
	assert.Equal(t, "GET", string(v.GetStringBytes("http", "method")))
	assert.False(t, v.Exists("trace_id"))
}

func TestConfigure_JSONKeyOrder(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewRegistry().Configure(FormatJSON, slog.LevelDebug, Stream(&buf), "svc")
	require.NoError(t, err)

	l.Info("ordered")

	v, err := fastjson.Parse(lines(&buf)[0])
	require.NoError(t, err)

	var keys []string
	v.GetObject().Visit(func(key []byte, _ *fastjson.Value) {
		keys = append(keys, string(key))
	})
	assert.Equal(t, []string{"levelname", "record_id", "request_id", "asctime", "message"}, keys)
}

func TestConfigure_JSONGroupsAndTrace(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewRegistry().Configure(FormatJSON, slog.LevelDebug, Stream(&buf), "svc")
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	// record_id inside a group is an ordinary attribute, not the correlation field.
	l.WithGroup("job").InfoContext(ctx, "grouped", RecordIDKey, "nested")

	v, err := fastjson.Parse(lines(&buf)[0])
	require.NoError(t, err)
	assert.Equal(t, fastjson.TypeNull, v.Get("record_id").Type())
	assert.Equal(t, "nested", string(v.GetStringBytes("job", "record_id")))
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", string(v.GetStringBytes("trace_id")))
	assert.Equal(t, "0102030405060708", string(v.GetStringBytes("span_id")))
}

func TestConfigure_Level(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewRegistry().Configure(FormatStandard, slog.LevelWarn, Stream(&buf), "svc")
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("kept")
	l.Log(context.Background(), LevelCritical, "fatal")

	got := lines(&buf)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "]: kept")
	assert.True(t, strings.HasPrefix(got[1], "CRITICAL ["))
}

func TestConfigure_UnknownFormat(t *testing.T) {
	r := NewRegistry()
	var buf bytes.Buffer
	l, err := r.Configure(Format("xml"), slog.LevelDebug, Stream(&buf), "svc")

	assert.Nil(t, l)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
	assert.Equal(t, 0, r.Sinks("svc"))
}

func TestConfigure_Reconfigure(t *testing.T) {
	r := NewRegistry()
	var first, second bytes.Buffer

	old, err := r.Configure(FormatStandard, slog.LevelDebug, Stream(&first), "svc")
	require.NoError(t, err)
	l, err := r.Configure(FormatJSON, slog.LevelDebug, Stream(&second), "svc")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sinks("svc"))

	l.Info("new")
	old.Info("old handle")

	assert.Empty(t, first.String())
	got := lines(&second)
	require.Len(t, got, 2)
	for _, line := range got {
		_, err := fastjson.Parse(line)
		assert.NoError(t, err)
	}
}

func TestConfigure_NamesAreIndependent(t *testing.T) {
	r := NewRegistry()
	var a, b bytes.Buffer

	la, err := r.Configure(FormatStandard, slog.LevelDebug, Stream(&a), "a")
	require.NoError(t, err)
	_, err = r.Configure(FormatStandard, slog.LevelDebug, Stream(&b), "b")
	require.NoError(t, err)

	la.Info("only a")

	assert.NotEmpty(t, a.String())
	assert.Empty(t, b.String())
}

func TestConfigure_File(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "app.log")

	l, err := r.Configure(FormatStandard, slog.LevelDebug, File(path), "svc")
	require.NoError(t, err)
	l.Info("first")

	// Reconfiguring appends to the same file.
	l, err = r.Configure(FormatStandard, slog.LevelDebug, File(path), "svc")
	require.NoError(t, err)
	l.Info("second")

	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "]: first")
	assert.Contains(t, got[1], "]: second")
	assert.Equal(t, 0, r.Sinks("svc"))
}

func TestConfigure_FileAccessError(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "missing", "dir", "app.log")

	l, err := r.Configure(FormatJSON, slog.LevelDebug, File(path), "svc")

	assert.Nil(t, l)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFileAccess))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "WARNING", want: slog.LevelWarn},
		{in: "warn", want: slog.LevelWarn},
		{in: "ERROR", want: slog.LevelError},
		{in: "CRITICAL", want: LevelCritical},
		{in: "10", want: slog.LevelDebug},
		{in: "20", want: slog.LevelInfo},
		{in: "30", want: slog.LevelWarn},
		{in: "40", want: slog.LevelError},
		{in: "50", want: LevelCritical},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDestination(t *testing.T) {
	assert.Equal(t, "stdout", ParseDestination("").String())
	assert.Equal(t, "stdout", ParseDestination("STDOUT").String())
	assert.Equal(t, "stderr", ParseDestination("stderr").String())
	assert.Equal(t, "/var/log/app.log", ParseDestination("/var/log/app.log").String())
}

func TestSetup_DefaultRegistry(t *testing.T) {
	var buf bytes.Buffer
	l, err := Setup(FormatStandard, slog.LevelInfo, Stream(&buf), "setup-test")
	require.NoError(t, err)

	l.Info("via default")

	assert.Equal(t, 1, Default().Sinks("setup-test"))
	assert.Contains(t, buf.String(), "INFO [None | None | ")
}

func TestConfigure_JSONReservedKeys(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewRegistry().Configure(FormatJSON, slog.LevelDebug, Stream(&buf), "svc")
	require.NoError(t, err)

	l.Info("real message", "message", "spoofed", "levelname", 7, "asctime", "yesterday")

	v, err := fastjson.Parse(lines(&buf)[0])
	require.NoError(t, err)
	assert.Equal(t, "real message", string(v.GetStringBytes("message")))
	assert.Equal(t, "INFO", string(v.GetStringBytes("levelname")))
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`, string(v.GetStringBytes("asctime")))

	assert.Equal(t, "spoofed", string(v.GetStringBytes("attr.message")))
	assert.Equal(t, 7, v.GetInt("attr.levelname"))
	assert.Equal(t, "yesterday", string(v.GetStringBytes("attr.asctime")))
}

func TestConfigure_FileAccessErrorKeepsPreviousSink(t *testing.T) {
	r := NewRegistry()
	var buf bytes.Buffer

	l, err := r.Configure(FormatStandard, slog.LevelDebug, Stream(&buf), "svc")
	require.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "missing", "app.log")
	failed, err := r.Configure(FormatJSON, slog.LevelDebug, File(bad), "svc")
	require.Error(t, err)
	assert.Nil(t, failed)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFileAccess))

	assert.Equal(t, 1, r.Sinks("svc"))
	l.Info("still here")

	m := standardLine.FindStringSubmatch(lines(&buf)[0])
	require.NotNil(t, m, "previous standard sink should still render")
	assert.Equal(t, "still here", m[5])
}
