package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/valyala/fastjson"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys carrying the correlation ids.
const (
	RecordIDKey  = "record_id"
	RequestIDKey = "request_id"
)

const timeLayout = "2006-01-02T15:04:05"

var arenas fastjson.ArenaPool

// correlationID is always present on a rendered record, set or not.
type correlationID struct {
	value slog.Value
	set   bool
}

func (c correlationID) text() string {
	if !c.set {
		return "None"
	}
	return c.value.String()
}

func (c correlationID) json(a *fastjson.Arena) *fastjson.Value {
	if !c.set {
		return a.NewNull()
	}
	return jsonValue(a, c.value)
}

type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

type fields struct {
	level     slog.Level
	time      time.Time
	message   string
	recordID  correlationID
	requestID correlationID
	extras    []groupedAttr
	span      trace.SpanContext
}

type handler struct {
	entry  *entry
	attrs  []groupedAttr
	groups []string
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	s := h.entry.sink.Load()
	return s != nil && l >= s.level
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	s := h.entry.sink.Load()
	if s == nil {
		return nil
	}

	f := h.collect(ctx, r)

	var buf []byte
	if s.format == FormatJSON {
		buf = appendJSON(buf, f)
	} else {
		buf = appendStandard(buf, f)
	}
	if err := s.write(buf); err != nil {
		return err
	}

	emit(ctx, h.entry.name, f)
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return h2
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *handler) clone() *handler {
	return &handler{
		entry:  h.entry,
		attrs:  slices.Clip(h.attrs),
		groups: slices.Clip(h.groups),
	}
}

func (h *handler) collect(ctx context.Context, r slog.Record) *fields {
	f := &fields{
		level:   r.Level,
		time:    r.Time,
		message: r.Message,
	}
	if f.time.IsZero() {
		f.time = time.Now()
	}

	add := func(ga groupedAttr) {
		ga.attr.Value = ga.attr.Value.Resolve()
		if ga.attr.Equal(slog.Attr{}) {
			return
		}
		if len(ga.groups) == 0 {
			switch ga.attr.Key {
			case RecordIDKey:
				f.recordID = correlationID{value: ga.attr.Value, set: true}
				return
			case RequestIDKey:
				f.requestID = correlationID{value: ga.attr.Value, set: true}
				return
			}
		}
		f.extras = append(f.extras, ga)
	}

	for _, ga := range h.attrs {
		add(ga)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(groupedAttr{groups: h.groups, attr: a})
		return true
	})

	if ctx != nil {
		if id, ok := RecordID(ctx); ok && !f.recordID.set {
			f.recordID = correlationID{value: slog.StringValue(id), set: true}
		}
		if id, ok := RequestID(ctx); ok && !f.requestID.set {
			f.requestID = correlationID{value: slog.StringValue(id), set: true}
		}
		f.span = trace.SpanContextFromContext(ctx)
	}

	return f
}

func appendStandard(buf []byte, f *fields) []byte {
	buf = append(buf, levelName(f.level)...)
	buf = append(buf, " ["...)
	buf = append(buf, f.recordID.text()...)
	buf = append(buf, " | "...)
	buf = append(buf, f.requestID.text()...)
	buf = append(buf, " | "...)
	buf = f.time.AppendFormat(buf, timeLayout)
	buf = append(buf, "]: "...)
	buf = append(buf, f.message...)
	return append(buf, '\n')
}

func appendJSON(buf []byte, f *fields) []byte {
	a := arenas.Get()
	defer arenas.Put(a)

	o := a.NewObject()
	o.Set("levelname", a.NewString(levelName(f.level)))
	o.Set(RecordIDKey, f.recordID.json(a))
	o.Set(RequestIDKey, f.requestID.json(a))
	o.Set("asctime", a.NewString(f.time.Format(timeLayout)))
	o.Set("message", a.NewString(f.message))

	for _, ga := range f.extras {
		setAttr(a, o, ga.groups, ga.attr, true)
	}

	if f.span.IsValid() {
		o.Set("trace_id", a.NewString(f.span.TraceID().String()))
		o.Set("span_id", a.NewString(f.span.SpanID().String()))
	}

	buf = o.MarshalTo(buf)
	return append(buf, '\n')
}

// reservedKeys are the fields appendJSON writes itself. Top-level attributes
// with these names are moved under an "attr." prefix.
var reservedKeys = map[string]bool{
	"levelname":  true,
	RecordIDKey:  true,
	RequestIDKey: true,
	"asctime":    true,
	"message":    true,
	"trace_id":   true,
	"span_id":    true,
}

// setAttr places attr under the nested objects named by groups, creating them as needed.
// top reports whether o is the record object itself.
func setAttr(a *fastjson.Arena, o *fastjson.Value, groups []string, attr slog.Attr, top bool) {
	for _, g := range groups {
		if top && reservedKeys[g] {
			g = "attr." + g
		}
		top = false
		child := o.Get(g)
		if child == nil || child.Type() != fastjson.TypeObject {
			child = a.NewObject()
			o.Set(g, child)
		}
		o = child
	}

	if attr.Value.Kind() == slog.KindGroup {
		var sub []string
		if attr.Key != "" {
			sub = []string{attr.Key}
		}
		for _, ga := range attr.Value.Group() {
			ga.Value = ga.Value.Resolve()
			setAttr(a, o, sub, ga, top)
		}
		return
	}

	key := attr.Key
	if top && reservedKeys[key] {
		key = "attr." + key
	}
	o.Set(key, jsonValue(a, attr.Value))
}

func jsonValue(a *fastjson.Arena, v slog.Value) *fastjson.Value {
	switch v.Kind() {
	case slog.KindString:
		return a.NewString(v.String())
	case slog.KindInt64:
		return a.NewNumberString(strconv.FormatInt(v.Int64(), 10))
	case slog.KindUint64:
		return a.NewNumberString(strconv.FormatUint(v.Uint64(), 10))
	case slog.KindFloat64:
		fv := v.Float64()
		if math.IsNaN(fv) || math.IsInf(fv, 0) {
			return a.NewString(strconv.FormatFloat(fv, 'g', -1, 64))
		}
		return a.NewNumberFloat64(fv)
	case slog.KindBool:
		if v.Bool() {
			return a.NewTrue()
		}
		return a.NewFalse()
	case slog.KindDuration:
		return a.NewString(v.Duration().String())
	case slog.KindTime:
		return a.NewString(v.Time().Format(time.RFC3339Nano))
	case slog.KindGroup:
		o := a.NewObject()
		for _, ga := range v.Group() {
			ga.Value = ga.Value.Resolve()
			setAttr(a, o, nil, ga, false)
		}
		return o
	}

	switch x := v.Any().(type) {
	case nil:
		return a.NewNull()
	case error:
		return a.NewString(x.Error())
	case fmt.Stringer:
		return a.NewString(x.String())
	default:
		return a.NewString(fmt.Sprintf("%+v", x))
	}
}
