package instrument

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/metrics"
	"github.com/openlit/openlit-sub000/observe"
	"github.com/openlit/openlit-sub000/pricing"
	"github.com/openlit/openlit-sub000/semconv"
	"github.com/openlit/openlit-sub000/stream"
)

type harness struct {
	in     *Instrumentor
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	base := []Option{WithEstimator(genai.ApproxEstimator{})}
	in, err := New(tp.Tracer("test"), mp.Meter("test"), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{in: in, spans: spans, reader: reader}
}

func (h *harness) ended(t *testing.T) []sdktrace.ReadOnlySpan {
	t.Helper()
	return h.spans.Ended()
}

func (h *harness) metric(t *testing.T, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

type chatReq struct {
	Model  string
	Prompt string
}

type chatResp struct {
	ID         string
	Text       string
	Prompt     int64
	Completion int64
	HasUsage   bool
}

type chatChunk struct {
	Text  string
	Usage *genai.Usage
}

var chatOp = Operation[chatReq, *chatResp]{
	System: "openai",
	Name:   semconv.OperationChat,
	Request: func(r chatReq) genai.Request {
		return genai.Request{Model: r.Model, Messages: []genai.Message{{Role: "user", Content: r.Prompt}}}
	},
	Result: func(r *chatResp) *genai.Result {
		res := &genai.Result{ID: r.ID}
		res.AppendContent(r.Text)
		res.SetFinishReason(0, "stop")
		if r.HasUsage {
			res.Usage = genai.Usage{PromptTokens: genai.Int64(r.Prompt), CompletionTokens: genai.Int64(r.Completion)}
		}
		return res
	},
}

var chatStreamOp = StreamOperation[chatReq, chatChunk]{
	System:  chatOp.System,
	Name:    chatOp.Name,
	Request: chatOp.Request,
	Merge:   mergeChatChunk,
}

func mergeChatChunk(res *genai.Result, c chatChunk) {
	res.AppendContent(c.Text)
	if c.Usage != nil {
		res.Usage.Merge(*c.Usage)
	}
}

func gptxStore(t *testing.T) *pricing.Store {
	t.Helper()
	store, err := pricing.NewStore(pricing.StoreConfig{Source: pricing.StaticSource{Table: &pricing.Table{
		Chat: map[string]pricing.ChatPrice{"gpt-x": {PromptPrice: 0.01, CompletionPrice: 0.02}},
	}}})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// TestWrap_PricedChatScenario verifies cost, single span end and one token usage observation.
func TestWrap_PricedChatScenario(t *testing.T) {
	h := newHarness(t, WithPricing(gptxStore(t)))

	want := &chatResp{ID: "r1", Text: "hi", Prompt: 10, Completion: 20, HasUsage: true}
	call := Wrap(h.in, chatOp, func(context.Context, chatReq) (*chatResp, error) { return want, nil })

	got, err := call(context.Background(), chatReq{Model: "gpt-x", Prompt: "hello"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != want {
		t.Error("response identity changed")
	}

	spans := h.ended(t)
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "chat gpt-x" {
		t.Errorf("span name = %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindClient {
		t.Errorf("span kind = %v", s.SpanKind())
	}
	cost, ok := spanAttr(s, semconv.GenAIUsageCost)
	if !ok || math.Abs(cost.AsFloat64()-0.0005) > 1e-12 {
		t.Errorf("cost = %v, %v; want 0.0005", cost.AsFloat64(), ok)
	}
	if v, _ := spanAttr(s, semconv.GenAIUsageTotalTokens); v.AsInt64() != 30 {
		t.Errorf("total tokens = %d", v.AsInt64())
	}
	if v, _ := spanAttr(s, semconv.GenAIEndpoint); v.AsString() != "openai.chat" {
		t.Errorf("endpoint = %q, want system.operation default", v.AsString())
	}

	usage := h.metric(t, metrics.GenAIClientTokenUsage)
	if usage == nil {
		t.Fatal("token usage histogram missing")
	}
	dps := usage.Data.(metricdata.Histogram[int64]).DataPoints
	if len(dps) != 1 || dps[0].Count != 1 || dps[0].Sum != 30 {
		t.Errorf("token usage = %+v, want one observation of 30", dps)
	}
}

type apiError struct{ Status int }

func (e *apiError) Error() string { return "api error" }

// TestWrap_ErrorIdentity verifies the original error is returned and no metrics are recorded.
func TestWrap_ErrorIdentity(t *testing.T) {
	h := newHarness(t)

	orig := &apiError{Status: 429}
	call := Wrap(h.in, chatOp, func(context.Context, chatReq) (*chatResp, error) { return nil, orig })

	_, err := call(context.Background(), chatReq{Model: "gpt-x"})
	if err != orig {
		t.Fatalf("err = %v, want identical error", err)
	}
	var target *apiError
	if !errors.As(err, &target) || target.Status != 429 {
		t.Error("errors.As failed on returned error")
	}

	spans := h.ended(t)
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v", spans[0].Status())
	}
	if v, _ := spanAttr(spans[0], semconv.ErrorType); v.AsString() != "instrument.apiError" {
		t.Errorf("error.type = %q", v.AsString())
	}
	if h.metric(t, metrics.GenAIRequests) != nil {
		t.Error("metrics recorded for a failed call")
	}
}

// TestWrap_ContextErrors verifies timeout and cancellation classification.
func TestWrap_ContextErrors(t *testing.T) {
	for err, want := range map[error]string{
		context.DeadlineExceeded: "timeout",
		context.Canceled:         "cancelled",
	} {
		h := newHarness(t)
		call := Wrap(h.in, chatOp, func(context.Context, chatReq) (*chatResp, error) { return nil, err })
		if _, got := call(context.Background(), chatReq{}); got != err {
			t.Errorf("err = %v", got)
		}
		if v, _ := spanAttr(h.ended(t)[0], semconv.ErrorType); v.AsString() != want {
			t.Errorf("error.type = %q, want %q", v.AsString(), want)
		}
	}
}

// TestWrap_PanicRepanics verifies panics end the span and propagate unchanged.
func TestWrap_PanicRepanics(t *testing.T) {
	h := newHarness(t)
	type sentinel struct{ msg string }
	value := &sentinel{msg: "boom"}

	call := Wrap(h.in, chatOp, func(context.Context, chatReq) (*chatResp, error) { panic(value) })

	func() {
		defer func() {
			if r := recover(); r != value {
				t.Errorf("recovered %v, want original value", r)
			}
		}()
		_, _ = call(context.Background(), chatReq{})
	}()

	spans := h.ended(t)
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if v, _ := spanAttr(spans[0], semconv.ErrorType); v.AsString() != "panic" {
		t.Errorf("error.type = %q", v.AsString())
	}
}

// TestWrap_SpanInContext verifies the original sees the call span as its parent.
func TestWrap_SpanInContext(t *testing.T) {
	h := newHarness(t)
	var inner trace.SpanContext
	call := Wrap(h.in, chatOp, func(ctx context.Context, _ chatReq) (*chatResp, error) {
		inner = trace.SpanContextFromContext(ctx)
		return &chatResp{}, nil
	})
	_, _ = call(context.Background(), chatReq{})

	if !inner.Equal(h.ended(t)[0].SpanContext()) {
		t.Error("wrapped call did not receive the span context")
	}
}

// TestWrap_EstimatesMissingUsage verifies estimation when the provider reports none.
func TestWrap_EstimatesMissingUsage(t *testing.T) {
	h := newHarness(t, WithPricing(gptxStore(t)))
	call := Wrap(h.in, chatOp, func(context.Context, chatReq) (*chatResp, error) {
		return &chatResp{Text: "abcdefgh"}, nil
	})
	_, _ = call(context.Background(), chatReq{Model: "gpt-x", Prompt: "hi"})

	s := h.ended(t)[0]
	if v, ok := spanAttr(s, semconv.GenAIUsageEstimated); !ok || !v.AsBool() {
		t.Error("estimated flag missing")
	}
	if v, _ := spanAttr(s, semconv.GenAIUsageOutputTokens); v.AsInt64() != 2 {
		t.Errorf("output tokens = %d, want 2", v.AsInt64())
	}
	if _, ok := spanAttr(s, semconv.GenAIUsageCost); !ok {
		t.Error("estimated usage should still be priced")
	}
}

// TestWrap_UnknownCostOmitted verifies unpriced models get no cost attribute.
func TestWrap_UnknownCostOmitted(t *testing.T) {
	h := newHarness(t, WithPricing(gptxStore(t)))
	call := Wrap(h.in, chatOp, func(context.Context, chatReq) (*chatResp, error) {
		return &chatResp{Prompt: 1, Completion: 1, HasUsage: true}, nil
	})
	_, _ = call(context.Background(), chatReq{Model: "unpriced"})

	if _, ok := spanAttr(h.ended(t)[0], semconv.GenAIUsageCost); ok {
		t.Error("unknown cost must not be written")
	}
	if h.metric(t, metrics.GenAICost) != nil {
		t.Error("unknown cost must not be observed")
	}
}

type failingPricing struct{}

func (failingPricing) Refresh(context.Context) (*pricing.Table, error) {
	panic("pricing backend exploded")
}

// TestWrap_TelemetryFailureInvisible verifies telemetry panics never reach the caller.
func TestWrap_TelemetryFailureInvisible(t *testing.T) {
	h := newHarness(t, WithPricing(failingPricing{}))
	call := Wrap(h.in, Operation[chatReq, *chatResp]{
		Name:    semconv.OperationChat,
		Request: func(chatReq) genai.Request { panic("bad mapping") },
		Result:  func(*chatResp) *genai.Result { panic("bad result") },
	}, func(context.Context, chatReq) (*chatResp, error) { return &chatResp{ID: "ok"}, nil })

	resp, err := call(context.Background(), chatReq{})
	if err != nil || resp.ID != "ok" {
		t.Fatalf("call = %+v, %v", resp, err)
	}
	if len(h.ended(t)) != 1 {
		t.Errorf("span not ended exactly once")
	}
}

// TestWrap_NilInstrumentor verifies a nil Instrumentor leaves fn untouched.
func TestWrap_NilInstrumentor(t *testing.T) {
	calls := 0
	fn := CallFunc[chatReq, *chatResp](func(context.Context, chatReq) (*chatResp, error) {
		calls++
		return nil, nil
	})
	_, _ = Wrap(nil, chatOp, fn)(context.Background(), chatReq{})
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

// TestWrap_ConcurrentCalls verifies overlapping calls have independent spans.
func TestWrap_ConcurrentCalls(t *testing.T) {
	h := newHarness(t, WithPricing(gptxStore(t)))
	call := Wrap(h.in, chatOp, func(_ context.Context, r chatReq) (*chatResp, error) {
		return &chatResp{Text: r.Prompt, Prompt: 1, Completion: 1, HasUsage: true}, nil
	})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = call(context.Background(), chatReq{Model: "gpt-x", Prompt: "p"})
		}()
	}
	wg.Wait()

	if got := len(h.ended(t)); got != n {
		t.Errorf("ended spans = %d, want %d", got, n)
	}
	sum := h.metric(t, metrics.GenAIRequests).Data.(metricdata.Sum[int64])
	if sum.DataPoints[0].Value != n {
		t.Errorf("requests = %d, want %d", sum.DataPoints[0].Value, n)
	}
}

// TestWrapStream_Exhausted verifies finalization after the last chunk.
func TestWrapStream_Exhausted(t *testing.T) {
	h := newHarness(t, WithPricing(gptxStore(t)))
	chunks := []chatChunk{
		{Text: "hel"},
		{Text: "lo"},
		{Usage: &genai.Usage{PromptTokens: genai.Int64(10), CompletionTokens: genai.Int64(20)}},
	}
	call := WrapStream(h.in, chatStreamOp, func(context.Context, chatReq) (stream.Stream[chatChunk], error) {
		return stream.Slice(chunks...), nil
	})

	s, err := call(context.Background(), chatReq{Model: "gpt-x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(h.ended(t)) != 0 {
		t.Fatal("span ended before the stream was consumed")
	}

	got, err := stream.Collect(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(chunks) || got[0].Text != "hel" || got[2].Usage == nil {
		t.Errorf("chunks = %+v", got)
	}

	spans := h.ended(t)
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	sp := spans[0]
	if v, _ := spanAttr(sp, semconv.GenAIRequestIsStream); !v.AsBool() {
		t.Error("is_stream not set")
	}
	if _, ok := spanAttr(sp, semconv.GenAIServerTTFT); !ok {
		t.Error("TTFT missing")
	}
	if _, ok := spanAttr(sp, semconv.GenAIServerTBT); !ok {
		t.Error("TBT missing")
	}
	if v, _ := spanAttr(sp, semconv.GenAIUsageCost); math.Abs(v.AsFloat64()-0.0005) > 1e-12 {
		t.Errorf("cost = %v", v.AsFloat64())
	}
	if _, ok := spanAttr(sp, semconv.GenAIUsageEstimated); ok {
		t.Error("reported usage marked as estimated")
	}
}

// TestWrapStream_EarlyClose verifies closing mid-stream ends the span once.
func TestWrapStream_EarlyClose(t *testing.T) {
	h := newHarness(t)
	call := WrapStream(h.in, chatStreamOp, func(context.Context, chatReq) (stream.Stream[chatChunk], error) {
		return stream.Slice(chatChunk{Text: "a"}, chatChunk{Text: "b"}), nil
	})

	s, _ := call(context.Background(), chatReq{Model: "gpt-x"})
	if _, err := s.Recv(); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	_ = s.Close()

	spans := h.ended(t)
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if v, _ := spanAttr(spans[0], semconv.GenAIStreamChunks); v.AsInt64() != 1 {
		t.Errorf("chunks = %d", v.AsInt64())
	}
	if _, ok := spanAttr(spans[0], semconv.GenAIServerTBT); ok {
		t.Error("TBT set with one chunk")
	}
}

// TestWrapStream_MidStreamError verifies stream errors fail the span without metrics.
func TestWrapStream_MidStreamError(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("reset")
	call := WrapStream(h.in, chatStreamOp, func(context.Context, chatReq) (stream.Stream[chatChunk], error) {
		return stream.SliceWithError(boom, chatChunk{Text: "a"}), nil
	})

	s, _ := call(context.Background(), chatReq{})
	_, err := stream.Collect(s)
	if err != boom {
		t.Fatalf("err = %v", err)
	}

	spans := h.ended(t)
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("spans = %d, status = %v", len(spans), spans[0].Status())
	}
	if h.metric(t, metrics.GenAIRequests) != nil {
		t.Error("metrics recorded for a failed stream")
	}
}

// TestWrapStream_CallError verifies an error opening the stream is returned unchanged.
func TestWrapStream_CallError(t *testing.T) {
	h := newHarness(t)
	orig := &apiError{Status: 500}
	call := WrapStream(h.in, chatStreamOp, func(context.Context, chatReq) (stream.Stream[chatChunk], error) {
		return nil, orig
	})
	if _, err := call(context.Background(), chatReq{}); err != orig {
		t.Fatalf("err = %v", err)
	}
	if len(h.ended(t)) != 1 {
		t.Error("span not ended")
	}
}

// TestWrapStream_Abandoned verifies an unclosed stream keeps its span open.
func TestWrapStream_Abandoned(t *testing.T) {
	h := newHarness(t)
	call := WrapStream(h.in, chatStreamOp, func(context.Context, chatReq) (stream.Stream[chatChunk], error) {
		return stream.Slice(chatChunk{Text: "a"}, chatChunk{Text: "b"}), nil
	})
	s, _ := call(context.Background(), chatReq{})
	_, _ = s.Recv()

	if len(h.spans.Started()) != 1 || len(h.ended(t)) != 0 {
		t.Error("abandoned stream should leave its span open")
	}
}

// TestWrapAuto verifies dynamic dispatch between plain and streamed results.
func TestWrapAuto(t *testing.T) {
	op := Operation[chatReq, any]{
		System:  "openai",
		Name:    semconv.OperationChat,
		Request: chatOp.Request,
		Result: func(r any) *genai.Result {
			return chatOp.Result(r.(*chatResp))
		},
	}

	t.Run("plain", func(t *testing.T) {
		h := newHarness(t)
		want := &chatResp{Text: "x"}
		call := WrapAuto(h.in, op, mergeChatChunk, func(context.Context, chatReq) (any, error) { return want, nil })
		got, err := call(context.Background(), chatReq{})
		if err != nil || got != any(want) {
			t.Fatalf("got %v, %v", got, err)
		}
		if len(h.ended(t)) != 1 {
			t.Error("plain result should finalize immediately")
		}
	})

	t.Run("stream", func(t *testing.T) {
		h := newHarness(t)
		call := WrapAuto(h.in, op, mergeChatChunk, func(context.Context, chatReq) (any, error) {
			return stream.Slice(chatChunk{Text: "a"}, chatChunk{Text: "b"}), nil
		})
		got, err := call(context.Background(), chatReq{})
		if err != nil {
			t.Fatal(err)
		}
		s, ok := got.(stream.Stream[chatChunk])
		if !ok {
			t.Fatalf("result %T is not a stream", got)
		}
		if len(h.ended(t)) != 0 {
			t.Fatal("stream finalized before consumption")
		}
		for {
			if _, err := s.Recv(); err == io.EOF {
				break
			}
		}
		spans := h.ended(t)
		if len(spans) != 1 {
			t.Fatalf("ended spans = %d", len(spans))
		}
		if v, _ := spanAttr(spans[0], semconv.GenAIRequestIsStream); !v.AsBool() {
			t.Error("is_stream not set")
		}
	})
}

type fakeObserver struct {
	tracer trace.Tracer
	meter  metric.Meter
}

func (o fakeObserver) Tracer() trace.Tracer           { return o.tracer }
func (o fakeObserver) Meter() metric.Meter            { return o.meter }
func (o fakeObserver) Logger() observe.Logger         { return observe.NopLogger() }
func (o fakeObserver) Shutdown(context.Context) error { return nil }

// TestFromObserver verifies config-derived environment and nil handling.
func TestFromObserver(t *testing.T) {
	if _, err := FromObserver(nil, observe.Config{}); !errors.Is(err, ErrNilObserver) {
		t.Errorf("nil observer: %v", err)
	}

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	in, err := FromObserver(fakeObserver{tracer: tp.Tracer("t")}, observe.Config{
		ServiceName: "svc",
		Environment: "staging",
	}, WithEstimator(genai.ApproxEstimator{}))
	if err != nil {
		t.Fatal(err)
	}
	if env := in.Environment(); env.ApplicationName != "svc" || env.Environment != "staging" {
		t.Errorf("environment = %+v", env)
	}

	call := Wrap(in, chatOp, func(context.Context, chatReq) (*chatResp, error) { return &chatResp{}, nil })
	_, _ = call(context.Background(), chatReq{})
	if v, _ := spanAttr(spans.Ended()[0], semconv.ServiceName); v.AsString() != "svc" {
		t.Errorf("service.name = %q", v.AsString())
	}
}
