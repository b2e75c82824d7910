// Package span manages the lifecycle of the single span that describes one
// instrumented GenAI call.
//
// A Span moves Created → Active → Ended. Attribute writes are accepted only
// while Active and are mirrored into an in-memory set so that the metrics
// recorder can read finalized values back without separate bookkeeping.
// Backend failures never escape: a span that cannot be started is replaced
// by a non-recording one, and panics from the tracing backend are logged and
// swallowed.
package span

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/openlit/openlit-sub000/observe"
	"github.com/openlit/openlit-sub000/semconv"
)

// State is the lifecycle state of a Span.
type State int

const (
	// StateCreated is the state before the backend span exists.
	StateCreated State = iota
	// StateActive accepts attribute writes.
	StateActive
	// StateEnded is terminal.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Manager starts spans on an OpenTelemetry tracer.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: Start never fails; a non-recording span is substituted.
type Manager struct {
	tracer trace.Tracer
	logger observe.Logger
}

// NewManager creates a Manager. A nil tracer yields non-recording spans and a
// nil logger discards anomalies.
func NewManager(tracer trace.Tracer, logger observe.Logger) *Manager {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Manager{tracer: tracer, logger: logger}
}

// Start creates an Active span named name. The returned context carries the
// span so that nested calls become children.
func (m *Manager) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	s := &Span{
		name:   name,
		state:  StateCreated,
		attrs:  make(map[attribute.Key]attribute.Value, 32),
		logger: m.logger,
	}

	valid := make([]attribute.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		if validValue(kv) {
			valid = append(valid, kv)
			s.attrs[kv.Key] = kv.Value
		}
	}

	spanCtx, otelSpan, err := m.start(ctx, name, valid)
	if err != nil {
		m.logger.Warn(ctx, "span backend unavailable, using non-recording span",
			observe.Field{Key: "span.name", Value: name},
			observe.Field{Key: "error", Value: err},
		)
		otelSpan = trace.SpanFromContext(context.Background())
		spanCtx = ctx
	}

	s.span = otelSpan
	s.state = StateActive
	return spanCtx, s
}

func (m *Manager) start(ctx context.Context, name string, attrs []attribute.KeyValue) (_ context.Context, _ trace.Span, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tracer panicked: %v", r)
		}
	}()
	spanCtx, s := m.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	if s == nil {
		return ctx, nil, errors.New("tracer returned nil span")
	}
	return spanCtx, s, nil
}

// Span is the handle for one logical call.
type Span struct {
	name   string
	logger observe.Logger

	mu     sync.Mutex
	span   trace.Span
	state  State
	attrs  map[attribute.Key]attribute.Value
	err    error
	failed bool
}

// Name returns the span name.
func (s *Span) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Span) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SpanContext returns the backend span context.
func (s *Span) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

// SetAttribute records key=value. Accepted value types are string, bool, the
// integer types, float32/float64 and slices of string, bool, int, int64 and
// float64. NaN and ±Inf are rejected. It reports whether the value was
// recorded.
func (s *Span) SetAttribute(key string, value any) bool {
	kv, ok := KeyValue(key, value)
	if !ok {
		return false
	}
	return s.SetAttributes(kv) == 1
}

// SetAttributes records every valid key/value while the span is Active and
// returns how many were recorded.
func (s *Span) SetAttributes(kvs ...attribute.KeyValue) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return 0
	}

	valid := make([]attribute.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		if !validValue(kv) {
			continue
		}
		valid = append(valid, kv)
		s.attrs[kv.Key] = kv.Value
	}
	if len(valid) > 0 {
		s.guard("set_attributes", func() { s.span.SetAttributes(valid...) })
	}
	return len(valid)
}

// SetError marks the span failed and records the error kind. It does not end
// the span.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return
	}

	kind := ErrorType(err)
	s.err = err
	s.failed = true
	s.attrs[semconv.ErrorType] = attribute.StringValue(kind)
	s.guard("set_error", func() {
		s.span.SetAttributes(semconv.ErrorType.String(kind))
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	})
}

// Failed reports whether SetError was called.
func (s *Span) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Err returns the error passed to SetError, if any.
func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// End ends the span. Only the first call has an effect; later calls are
// logged as anomalies.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		s.logger.Debug(context.Background(), "span ended more than once",
			observe.Field{Key: "span.name", Value: s.name},
		)
		return
	}
	s.state = StateEnded

	s.guard("end", func() {
		if !s.failed {
			s.span.SetStatus(codes.Ok, "")
		}
		s.span.End()
	})
}

// Attributes returns a copy of the recorded attributes.
func (s *Span) Attributes() map[attribute.Key]attribute.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[attribute.Key]attribute.Value, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// Value returns the recorded value for key.
func (s *Span) Value(key attribute.Key) (attribute.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Int64 returns an integer attribute.
func (s *Span) Int64(key attribute.Key) (int64, bool) {
	v, ok := s.Value(key)
	if !ok || v.Type() != attribute.INT64 {
		return 0, false
	}
	return v.AsInt64(), true
}

// Float64 returns a numeric attribute as float64. Integer attributes are
// converted; non-finite values are never stored.
func (s *Span) Float64(key attribute.Key) (float64, bool) {
	v, ok := s.Value(key)
	if !ok {
		return 0, false
	}
	switch v.Type() {
	case attribute.FLOAT64:
		return v.AsFloat64(), true
	case attribute.INT64:
		return float64(v.AsInt64()), true
	default:
		return 0, false
	}
}

// String returns a string attribute.
func (s *Span) String(key attribute.Key) (string, bool) {
	v, ok := s.Value(key)
	if !ok || v.Type() != attribute.STRING {
		return "", false
	}
	return v.AsString(), true
}

// guard runs a backend call and swallows panics. Caller holds s.mu.
func (s *Span) guard(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn(context.Background(), "span backend call panicked",
				observe.Field{Key: "span.name", Value: s.name},
				observe.Field{Key: "op", Value: op},
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()
	fn()
}

// ErrorType classifies err for the error.type attribute.
func ErrorType(err error) string {
	var typed interface{ ErrorType() string }
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &typed) && typed.ErrorType() != "":
		return typed.ErrorType()
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	}
}
