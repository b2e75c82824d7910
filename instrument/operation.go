package instrument

import (
	"context"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/pricing"
	"github.com/openlit/openlit-sub000/semconv"
	"github.com/openlit/openlit-sub000/stream"
)

// CallFunc is a call returning a plain result.
type CallFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// StreamFunc is a call returning a stream of chunks.
type StreamFunc[Req, C any] func(ctx context.Context, req Req) (stream.Stream[C], error)

// CostFunc prices a finalized call. table may be nil.
type CostFunc func(req genai.Request, res *genai.Result, table *pricing.Table) pricing.Cost

// Operation describes a call site returning a plain result.
type Operation[Req, Resp any] struct {
	// System is the provider, e.g. "openai". Written as gen_ai.system.
	System string
	// Name is the operation, one of the semconv Operation* values.
	Name string

	// Request maps call arguments to their canonical view.
	Request func(req Req) genai.Request
	// Result maps the response to a finalized result.
	Result func(resp Resp) *genai.Result

	// Normalize overrides genai.Normalize.
	Normalize genai.NormalizeFunc
	// Cost overrides DefaultCost.
	Cost CostFunc
}

// StreamOperation describes a call site returning a stream.
type StreamOperation[Req, C any] struct {
	System string
	Name   string

	Request func(req Req) genai.Request
	// Merge folds one chunk into the in-progress result.
	Merge stream.MergeFunc[C]

	Normalize genai.NormalizeFunc
	Cost      CostFunc
}

// DefaultCost prices a call by its operation. The request model is looked up
// first, then the response model.
func DefaultCost(req genai.Request, res *genai.Result, table *pricing.Table) pricing.Cost {
	if table == nil || res == nil {
		return pricing.Unknown
	}

	model := req.Model
	if model == "" {
		model = res.Model
	}

	switch req.Operation {
	case semconv.OperationChat, semconv.OperationCompletion:
		if !res.Usage.Reported() {
			return pricing.Unknown
		}
		c := pricing.ChatCost(model, table, res.Usage.Prompt(), res.Usage.Completion())
		if !c.Known && res.Model != "" && res.Model != model {
			c = pricing.ChatCost(res.Model, table, res.Usage.Prompt(), res.Usage.Completion())
		}
		return c
	case semconv.OperationEmbedding:
		if !res.Usage.Reported() {
			return pricing.Unknown
		}
		return pricing.EmbeddingCost(model, table, res.Usage.Prompt())
	case semconv.OperationImage:
		n := res.ImageCount
		if n == 0 {
			n = req.ImageCount
		}
		return pricing.ImageCost(model, table, req.ImageQuality, req.ImageSize, n)
	case semconv.OperationAudio:
		chars := res.AudioCharacters
		if chars == 0 {
			for _, in := range req.Input {
				chars += len([]rune(in))
			}
		}
		return pricing.AudioCost(model, table, chars)
	default:
		return pricing.Unknown
	}
}

func estimable(operation string) bool {
	switch operation {
	case semconv.OperationChat, semconv.OperationCompletion, semconv.OperationEmbedding:
		return true
	default:
		return false
	}
}
