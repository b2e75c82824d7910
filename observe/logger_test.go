package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, buf.String())
	}
	return entry
}

// TestLogger_WithFields verifies bound fields appear on every entry.
func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(
		Field{Key: "gen_ai.system", Value: "openai"},
		Field{Key: "call.id", Value: "abc"},
	)

	logger.Info(context.Background(), "call finalized", Field{Key: "duration_ms", Value: 50.5})

	entry := decodeEntry(t, &buf)
	if entry["gen_ai.system"] != "openai" {
		t.Errorf("expected gen_ai.system=openai, got %v", entry["gen_ai.system"])
	}
	if entry["call.id"] != "abc" {
		t.Errorf("expected call.id=abc, got %v", entry["call.id"])
	}
	if v, ok := entry["duration_ms"].(float64); !ok || v != 50.5 {
		t.Errorf("expected duration_ms=50.5, got %v", entry["duration_ms"])
	}
	if entry["msg"] != "call finalized" {
		t.Errorf("expected msg, got %v", entry["msg"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name string
		log  func(Logger)
		want string
	}{
		{"debug", func(l Logger) { l.Debug(context.Background(), "m") }, "debug"},
		{"info", func(l Logger) { l.Info(context.Background(), "m") }, "info"},
		{"warn", func(l Logger) { l.Warn(context.Background(), "m") }, "warn"},
		{"error", func(l Logger) { l.Error(context.Background(), "m") }, "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.log(NewLoggerWithWriter("debug", &buf))
			if got := decodeEntry(t, &buf)["level"]; got != tc.want {
				t.Errorf("expected level %q, got %v", tc.want, got)
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)

	logger.Info(context.Background(), "info message")
	if strings.Contains(buf.String(), "info message") {
		t.Error("info message should be filtered when level is warn")
	}

	logger.Warn(context.Background(), "warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("warn message should pass through when level is warn")
	}
}

func TestLogger_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "pricing fetch",
		Field{Key: "api_key", Value: "sk-secret-123"},
		Field{Key: "authorization", Value: "Bearer abc"},
	)

	out := buf.String()
	if strings.Contains(out, "sk-secret-123") || strings.Contains(out, "Bearer abc") {
		t.Fatalf("credentials leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker, got %s", out)
	}
}

func TestLogger_ErrorValuesAsStrings(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Error(context.Background(), "refresh failed", Field{Key: "error", Value: errors.New("connection timeout")})

	if v := decodeEntry(t, &buf)["error"]; v != "connection timeout" {
		t.Errorf("expected error='connection timeout', got %v", v)
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Info(ctx, "inside span")

	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), entry["trace_id"])
	}
	if entry["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("expected span_id %s, got %v", span.SpanContext().SpanID(), entry["span_id"])
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Info(context.Background(), "x")
	l.Error(context.TODO(), "y")
	if l.With(Field{Key: "k", Value: 1}) == nil {
		t.Fatal("With should return a logger")
	}
	if NewZapLogger(nil) == nil {
		t.Fatal("NewZapLogger(nil) should return a logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug": LevelDebug, "info": LevelInfo, "warn": LevelWarn, "error": LevelError, "bogus": LevelInfo,
	} {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
