package genai

import (
	"strings"
	"time"
)

// Result is the provider-independent outcome of one call. It is built
// incrementally by a single owner and must not be copied after first use.
type Result struct {
	ID    string
	Model string
	Usage Usage

	// Estimated is set when Usage was filled by an Estimator.
	Estimated bool

	ToolCalls ToolCalls
	Timing    Timing

	EmbeddingCount      int
	EmbeddingDimensions int
	ImageCount          int
	RevisedPrompts      []string
	AudioCharacters     int
	ReturnedRows        *int64

	content       strings.Builder
	finishReasons []string
}

// Timing holds call latency. TTFT is meaningful only when Chunks >= 1 and TBT
// only when Chunks >= 2.
type Timing struct {
	Duration time.Duration
	TTFT     time.Duration
	TBT      time.Duration
	Chunks   int
}

// HasTTFT reports whether TTFT was observed.
func (t Timing) HasTTFT() bool { return t.Chunks >= 1 }

// HasTBT reports whether TBT was observed.
func (t Timing) HasTBT() bool { return t.Chunks >= 2 }

// SetID records the response id. Empty values are ignored.
func (r *Result) SetID(id string) {
	if id != "" {
		r.ID = id
	}
}

// SetModel records the response model. Empty values are ignored.
func (r *Result) SetModel(model string) {
	if model != "" {
		r.Model = model
	}
}

// AppendContent appends a content delta.
func (r *Result) AppendContent(s string) {
	r.content.WriteString(s)
}

// Content returns the accumulated content.
func (r *Result) Content() string {
	return r.content.String()
}

// SetFinishReason records the finish reason of choice. Later non-empty
// values win; an empty value never clears an earlier one.
func (r *Result) SetFinishReason(choice int, reason string) {
	if reason == "" || choice < 0 || choice >= MaxToolCalls {
		return
	}
	for len(r.finishReasons) <= choice {
		r.finishReasons = append(r.finishReasons, "")
	}
	r.finishReasons[choice] = reason
}

// FinishReasons returns the non-empty finish reasons in choice order.
func (r *Result) FinishReasons() []string {
	out := make([]string, 0, len(r.finishReasons))
	for _, fr := range r.finishReasons {
		if fr != "" {
			out = append(out, fr)
		}
	}
	return out
}
