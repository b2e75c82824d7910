package genai

import (
	"errors"
	"testing"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openlit/openlit-sub000/semconv"
)

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

// TestToolCalls_Reconstruction verifies argument fragments join into one call.
func TestToolCalls_Reconstruction(t *testing.T) {
	var tc ToolCalls
	tc.Apply(ToolCallDelta{Index: 0, ID: "a", Name: "f", Arguments: `{"x":`})
	tc.Apply(ToolCallDelta{Index: 0, Arguments: `1}`})

	calls := tc.List()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	want := ToolCall{ID: "a", Type: "function", Name: "f", Arguments: `{"x":1}`}
	if calls[0] != want {
		t.Errorf("got %+v, want %+v", calls[0], want)
	}
}

// TestToolCalls_SparseIndexes verifies placeholders are created up to the index.
func TestToolCalls_SparseIndexes(t *testing.T) {
	var tc ToolCalls
	tc.Apply(ToolCallDelta{Index: 2, ID: "c", Name: "g"})
	tc.Apply(ToolCallDelta{Index: 0, ID: "a", Name: "f"})
	tc.Apply(ToolCallDelta{Index: 2, Arguments: "{}"})

	calls := tc.List()
	if len(calls) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(calls))
	}
	if calls[1] != (ToolCall{}) {
		t.Errorf("slot 1 should be a placeholder, got %+v", calls[1])
	}
	if calls[0].ID != "a" || calls[2].Arguments != "{}" {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

// TestToolCalls_OutOfRange verifies out-of-range indexes are ignored.
func TestToolCalls_OutOfRange(t *testing.T) {
	var tc ToolCalls
	tc.Apply(ToolCallDelta{Index: -1, ID: "x"})
	tc.Apply(ToolCallDelta{Index: MaxToolCalls, ID: "y"})
	if tc.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tc.Len())
	}
}

// TestToolCalls_NewIDRestarts verifies a second id at the same index starts a new call.
func TestToolCalls_NewIDRestarts(t *testing.T) {
	var tc ToolCalls
	tc.Apply(ToolCallDelta{Index: 0, ID: "a", Name: "f", Arguments: "old"})
	tc.Apply(ToolCallDelta{Index: 0, ID: "b", Name: "g", Arguments: "new"})
	got := tc.List()[0]
	if got.ID != "b" || got.Arguments != "new" {
		t.Errorf("got %+v", got)
	}
}

// TestUsage_Precedence verifies later reported values win and absent ones never clear.
func TestUsage_Precedence(t *testing.T) {
	var u Usage
	u.Merge(Usage{})
	if u.Reported() {
		t.Fatal("empty merge should report nothing")
	}

	u.Merge(Usage{PromptTokens: Int64(10), CompletionTokens: Int64(5)})
	u.Merge(Usage{})

	if u.Prompt() != 10 || u.Completion() != 5 {
		t.Errorf("usage = %d/%d, want 10/5", u.Prompt(), u.Completion())
	}
	total, ok := u.Total()
	if !ok || total != 15 {
		t.Errorf("Total() = %d, %v, want 15", total, ok)
	}

	u.Merge(Usage{TotalTokens: Int64(16)})
	if total, _ := u.Total(); total != 16 {
		t.Errorf("reported total should win, got %d", total)
	}
}

// TestUsage_MergeCopies verifies merged values do not alias the source.
func TestUsage_MergeCopies(t *testing.T) {
	src := Usage{PromptTokens: Int64(1)}
	var u Usage
	u.Merge(src)
	*src.PromptTokens = 99
	if u.Prompt() != 1 {
		t.Errorf("merged value aliased source: %d", u.Prompt())
	}
}

// TestResult_FinishReasons verifies last non-empty value wins per choice.
func TestResult_FinishReasons(t *testing.T) {
	var r Result
	r.SetFinishReason(0, "length")
	r.SetFinishReason(0, "stop")
	r.SetFinishReason(0, "")
	r.SetFinishReason(1, "tool_calls")

	got := r.FinishReasons()
	if len(got) != 2 || got[0] != "stop" || got[1] != "tool_calls" {
		t.Errorf("FinishReasons() = %v", got)
	}

	r.SetModel("m1")
	r.SetModel("")
	if r.Model != "m1" {
		t.Errorf("empty model cleared value: %q", r.Model)
	}
}

// TestNormalize_OmitsAbsent verifies absent fields produce no attributes.
func TestNormalize_OmitsAbsent(t *testing.T) {
	attrs := attrMap(Normalize(Request{Operation: semconv.OperationChat, Model: "gpt-4o"}, &Result{}, Environment{}))

	for _, k := range []attribute.Key{
		semconv.GenAIUsageInputTokens,
		semconv.GenAIUsageTotalTokens,
		semconv.GenAIResponseFinishReasons,
		semconv.GenAIToolNames,
		semconv.GenAIServerTTFT,
		semconv.GenAIServerTBT,
		semconv.GenAIRequestTemperature,
		semconv.GenAIContentCompletion,
		semconv.ServiceName,
		semconv.GenAIEndpoint,
	} {
		if _, ok := attrs[k]; ok {
			t.Errorf("attribute %s should be omitted", k)
		}
	}
	if attrs[semconv.GenAIResponseModel].AsString() != "gpt-4o" {
		t.Error("response model should fall back to the request model")
	}
	if attrs[semconv.GenAIOutputType].AsString() != "text" {
		t.Errorf("output type = %q", attrs[semconv.GenAIOutputType].AsString())
	}
}

// TestNormalize_FullResult verifies list shapes, usage, timing and tool calls.
func TestNormalize_FullResult(t *testing.T) {
	req := Request{
		System:      "openai",
		Operation:   semconv.OperationChat,
		Model:       "gpt-4o",
		Endpoint:    "openai.chat.completions",
		Stream:      true,
		Temperature: Float64(0.2),
		MaxTokens:   Int64(100),
		Stop:        []string{"\n", "END"},
		Messages:    []Message{{Role: "user", Content: "hi"}},
	}
	res := &Result{ID: "resp-1", Model: "gpt-4o-2024-08-06"}
	res.AppendContent("hel")
	res.AppendContent("lo")
	res.SetFinishReason(0, "stop")
	res.SetFinishReason(1, "length")
	res.Usage = Usage{PromptTokens: Int64(10), CompletionTokens: Int64(5)}
	res.ToolCalls.Apply(ToolCallDelta{Index: 0, ID: "c1", Name: "lookup", Arguments: "{}"})
	res.Timing = Timing{Duration: 2 * time.Second, TTFT: 500 * time.Millisecond, TBT: 100 * time.Millisecond, Chunks: 3}

	env := Environment{ApplicationName: "app", Environment: "prod", CaptureContent: true}
	attrs := attrMap(Normalize(req, res, env))

	if got := attrs[semconv.GenAIResponseFinishReasons].AsStringSlice(); len(got) != 2 || got[1] != "length" {
		t.Errorf("finish reasons = %v", got)
	}
	if got := attrs[semconv.GenAIRequestStopSequences].AsStringSlice(); len(got) != 2 {
		t.Errorf("stop sequences = %v", got)
	}
	if attrs[semconv.GenAIUsageTotalTokens].AsInt64() != 15 {
		t.Errorf("total tokens = %d", attrs[semconv.GenAIUsageTotalTokens].AsInt64())
	}
	if attrs[semconv.GenAIResponseModel].AsString() != "gpt-4o-2024-08-06" {
		t.Error("response model should come from the result")
	}
	if attrs[semconv.GenAIServerTTFT].AsFloat64() != 0.5 {
		t.Errorf("ttft = %v", attrs[semconv.GenAIServerTTFT].AsFloat64())
	}
	if attrs[semconv.GenAIServerTBT].AsFloat64() != 0.1 {
		t.Errorf("tbt = %v", attrs[semconv.GenAIServerTBT].AsFloat64())
	}
	if attrs[semconv.GenAIClientDuration].AsFloat64() != 2 {
		t.Errorf("duration = %v", attrs[semconv.GenAIClientDuration].AsFloat64())
	}
	if got := attrs[semconv.GenAIToolNames].AsStringSlice(); len(got) != 1 || got[0] != "lookup" {
		t.Errorf("tool names = %v", got)
	}
	if attrs[semconv.GenAIContentCompletion].AsString() != "hello" {
		t.Errorf("completion = %q", attrs[semconv.GenAIContentCompletion].AsString())
	}
	if attrs[semconv.GenAIContentPrompt].AsString() != "user: hi" {
		t.Errorf("prompt = %q", attrs[semconv.GenAIContentPrompt].AsString())
	}
	if attrs[semconv.ServiceName].AsString() != "app" || attrs[semconv.DeploymentEnvironment].AsString() != "prod" {
		t.Error("environment metadata missing")
	}
	if _, ok := attrs[semconv.GenAIUsageEstimated]; ok {
		t.Error("reported usage must not be flagged as estimated")
	}
	if attrs[semconv.GenAIEndpoint].AsString() != "openai.chat.completions" {
		t.Errorf("endpoint = %q", attrs[semconv.GenAIEndpoint].AsString())
	}
}

// TestNormalize_ContentCaptureDisabled verifies content stays off spans by default.
func TestNormalize_ContentCaptureDisabled(t *testing.T) {
	res := &Result{}
	res.AppendContent("secret answer")
	res.ToolCalls.Apply(ToolCallDelta{Index: 0, ID: "c1", Name: "f", Arguments: `{"q":1}`})

	attrs := attrMap(Normalize(Request{Messages: []Message{{Content: "q"}}}, res, Environment{}))
	for _, k := range []attribute.Key{semconv.GenAIContentPrompt, semconv.GenAIContentCompletion, semconv.GenAIToolArgs} {
		if _, ok := attrs[k]; ok {
			t.Errorf("%s written without content capture", k)
		}
	}
	if _, ok := attrs[semconv.GenAIToolNames]; !ok {
		t.Error("tool metadata should still be written")
	}
}

// TestEstimate verifies estimation runs only without reported usage.
func TestEstimate(t *testing.T) {
	req := Request{Model: "gpt-4o", Messages: []Message{{Role: "user", Content: "12345678"}}}

	t.Run("no usage", func(t *testing.T) {
		res := &Result{}
		res.AppendContent("abcd")
		if !Estimate(ApproxEstimator{}, req, res) {
			t.Fatal("expected an estimate")
		}
		// "user: 12345678" is 14 runes.
		if res.Usage.Prompt() != 4 || res.Usage.Completion() != 1 {
			t.Errorf("usage = %d/%d", res.Usage.Prompt(), res.Usage.Completion())
		}
		if !res.Estimated {
			t.Error("Estimated not set")
		}
		attrs := attrMap(Normalize(req, res, Environment{}))
		if !attrs[semconv.GenAIUsageEstimated].AsBool() {
			t.Error("estimated flag missing")
		}
	})

	t.Run("reported usage", func(t *testing.T) {
		res := &Result{Usage: Usage{PromptTokens: Int64(10), CompletionTokens: Int64(5)}}
		res.AppendContent("abcd")
		if Estimate(ApproxEstimator{}, req, res) {
			t.Fatal("reported usage must not be estimated")
		}
		if res.Usage.Prompt() != 10 {
			t.Errorf("prompt = %d", res.Usage.Prompt())
		}
	})

	t.Run("nothing to count", func(t *testing.T) {
		res := &Result{}
		if Estimate(ApproxEstimator{}, Request{}, res) {
			t.Error("empty text should not be estimated")
		}
	})
}

// TestEncodingForModel verifies model families map to the right encoding.
func TestEncodingForModel(t *testing.T) {
	tests := map[string]string{
		"gpt-4o-mini":            "o200k_base",
		"openai/gpt-4o":          "o200k_base",
		"o3-mini":                "o200k_base",
		"gpt-3.5-turbo":          "cl100k_base",
		"text-embedding-3-small": "cl100k_base",
		"":                       "cl100k_base",
	}
	for model, want := range tests {
		if got := EncodingForModel(model); got != want {
			t.Errorf("EncodingForModel(%q) = %q, want %q", model, got, want)
		}
	}
}

type failingEstimator struct{ calls int }

func (f *failingEstimator) CountTokens(string, string) int {
	f.calls++
	return 7
}

// TestTiktokenEstimator_EmptyText verifies empty text never loads an encoding.
func TestTiktokenEstimator_EmptyText(t *testing.T) {
	fb := &failingEstimator{}
	e := NewTiktokenEstimator(fb)
	if n := e.CountTokens("gpt-4o", ""); n != 0 {
		t.Errorf("CountTokens(\"\") = %d", n)
	}
	if fb.calls != 0 {
		t.Error("fallback should not be consulted for empty text")
	}
}

// TestTiktokenEstimator_LoadsInBackground verifies a slow encoding load never
// delays CountTokens.
func TestTiktokenEstimator_LoadsInBackground(t *testing.T) {
	fb := &failingEstimator{}
	e := NewTiktokenEstimator(fb)
	started := make(chan struct{})
	release := make(chan struct{})
	e.get = func(string) (*tiktoken.Tiktoken, error) {
		close(started)
		<-release
		return nil, errors.New("offline")
	}
	defer close(release)

	done := make(chan int, 1)
	go func() { done <- e.CountTokens("gpt-4o", "hello") }()

	select {
	case n := <-done:
		if n != 7 {
			t.Errorf("CountTokens = %d, want fallback 7", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CountTokens waited for the encoding load")
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("background load never started")
	}
}

// TestTiktokenEstimator_RetriesFailedLoad verifies a failed load is not
// cached for the life of the process.
func TestTiktokenEstimator_RetriesFailedLoad(t *testing.T) {
	now := time.Unix(1000, 0)
	attempts := make(chan string, 4)
	e := NewTiktokenEstimator(&failingEstimator{})
	e.now = func() time.Time { return now }
	e.get = func(name string) (*tiktoken.Tiktoken, error) {
		attempts <- name
		return nil, errors.New("offline")
	}

	if err := e.Load(tiktoken.MODEL_CL100K_BASE); err == nil {
		t.Fatal("Load should report the failure")
	}
	<-attempts

	e.CountTokens("gpt-4", "hello")
	e.mu.Lock()
	loading := e.encs[tiktoken.MODEL_CL100K_BASE].loading
	e.mu.Unlock()
	if loading {
		t.Fatal("load retried before the retry delay")
	}

	now = now.Add(DefaultEncodingRetry)
	e.CountTokens("gpt-4", "hello")
	select {
	case name := <-attempts:
		if name != tiktoken.MODEL_CL100K_BASE {
			t.Errorf("retried %q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("load not retried after the retry delay")
	}
}
