// Package openaisdk instruments chat completions made with the official
// github.com/openai/openai-go SDK.
package openaisdk

import (
	"context"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/instrument"
	"github.com/openlit/openlit-sub000/semconv"
	"github.com/openlit/openlit-sub000/stream"
)

// System is written as gen_ai.system.
const System = "openai"

// ChatAPI is the subset of openai.ChatCompletionService that Chat wraps.
type ChatAPI interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk]
}

var _ ChatAPI = (*oai.ChatCompletionService)(nil)

// Chat is an instrumented chat completion service.
type Chat struct {
	in     *instrument.Instrumentor
	api    ChatAPI
	op     instrument.Operation[oai.ChatCompletionNewParams, *oai.ChatCompletion]
	stream instrument.StreamOperation[oai.ChatCompletionNewParams, oai.ChatCompletionChunk]
}

// Instrument wraps a chat completion service, typically &client.Chat.Completions.
// host and port are reported as server.address and server.port; an empty
// host omits them.
func Instrument(in *instrument.Instrumentor, api ChatAPI, host string, port int) *Chat {
	c := &Chat{in: in, api: api, op: ChatOperation(), stream: ChatStreamOperation()}
	if host != "" {
		at := func(build func(oai.ChatCompletionNewParams) genai.Request) func(oai.ChatCompletionNewParams) genai.Request {
			return func(p oai.ChatCompletionNewParams) genai.Request {
				r := build(p)
				r.ServerAddress, r.ServerPort = host, port
				return r
			}
		}
		c.op.Request = at(c.op.Request)
		c.stream.Request = at(c.stream.Request)
	}
	return c
}

// New creates a chat completion.
func (c *Chat) New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error) {
	call := instrument.Wrap(c.in, c.op, func(ctx context.Context, p oai.ChatCompletionNewParams) (*oai.ChatCompletion, error) {
		return c.api.New(ctx, p, opts...)
	})
	return call(ctx, body)
}

// NewStreaming creates a streamed chat completion. Errors opening the stream
// are returned directly instead of being deferred to the first Recv.
func (c *Chat) NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (stream.Stream[oai.ChatCompletionChunk], error) {
	call := instrument.WrapStream(c.in, c.stream, func(ctx context.Context, p oai.ChatCompletionNewParams) (stream.Stream[oai.ChatCompletionChunk], error) {
		s := c.api.NewStreaming(ctx, p, opts...)
		if s == nil {
			return nil, nil
		}
		if err := s.Err(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return FromSSE(s), nil
	})
	return call(ctx, body)
}

// FromSSE adapts an SDK event stream to stream.Stream.
func FromSSE[T any](s *ssestream.Stream[T]) stream.Stream[T] {
	return stream.FromCursor[T](s)
}

// ChatOperation describes ChatCompletionService.New.
func ChatOperation() instrument.Operation[oai.ChatCompletionNewParams, *oai.ChatCompletion] {
	return instrument.Operation[oai.ChatCompletionNewParams, *oai.ChatCompletion]{
		System:  System,
		Name:    semconv.OperationChat,
		Request: ChatRequest,
		Result:  ChatResult,
	}
}

// ChatStreamOperation describes ChatCompletionService.NewStreaming.
func ChatStreamOperation() instrument.StreamOperation[oai.ChatCompletionNewParams, oai.ChatCompletionChunk] {
	return instrument.StreamOperation[oai.ChatCompletionNewParams, oai.ChatCompletionChunk]{
		System:  System,
		Name:    semconv.OperationChat,
		Request: ChatRequest,
		Merge:   MergeChatChunk,
	}
}

// ChatRequest maps chat completion parameters.
func ChatRequest(p oai.ChatCompletionNewParams) genai.Request {
	req := genai.Request{
		Model:            p.Model,
		Endpoint:         "openai.chat.completions",
		Temperature:      optFloat(p.Temperature.Valid(), p.Temperature.Value),
		TopP:             optFloat(p.TopP.Valid(), p.TopP.Value),
		FrequencyPenalty: optFloat(p.FrequencyPenalty.Valid(), p.FrequencyPenalty.Value),
		PresencePenalty:  optFloat(p.PresencePenalty.Valid(), p.PresencePenalty.Value),
		MaxTokens:        optInt(p.MaxTokens.Valid(), p.MaxTokens.Value),
		Seed:             optInt(p.Seed.Valid(), p.Seed.Value),
		User:             p.User.Or(""),
		ToolCount:        len(p.Tools),
	}
	if p.MaxCompletionTokens.Valid() {
		req.MaxTokens = genai.Int64(p.MaxCompletionTokens.Value)
	}
	if p.Stop.OfString.Valid() {
		req.Stop = []string{p.Stop.OfString.Value}
	} else if len(p.Stop.OfStringArray) > 0 {
		req.Stop = p.Stop.OfStringArray
	}
	for _, m := range p.Messages {
		req.Messages = append(req.Messages, genai.Message{Role: role(m), Content: content(m)})
	}
	return req
}

func role(m oai.ChatCompletionMessageParamUnion) string {
	switch {
	case m.OfDeveloper != nil:
		return "developer"
	case m.OfSystem != nil:
		return "system"
	case m.OfUser != nil:
		return "user"
	case m.OfAssistant != nil:
		return "assistant"
	case m.OfTool != nil:
		return "tool"
	case m.OfFunction != nil:
		return "function"
	default:
		return ""
	}
}

func content(m oai.ChatCompletionMessageParamUnion) string {
	switch c := m.GetContent().AsAny().(type) {
	case *string:
		return *c
	case *[]oai.ChatCompletionContentPartTextParam:
		parts := make([]string, 0, len(*c))
		for _, p := range *c {
			parts = append(parts, p.Text)
		}
		return strings.Join(parts, " ")
	case *[]oai.ChatCompletionContentPartUnionParam:
		var parts []string
		for _, p := range *c {
			if p.OfText != nil {
				parts = append(parts, p.OfText.Text)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// ChatResult maps a chat completion.
func ChatResult(r *oai.ChatCompletion) *genai.Result {
	if r == nil {
		return &genai.Result{}
	}
	res := &genai.Result{ID: r.ID, Model: r.Model}
	if r.JSON.Usage.Valid() || r.Usage.TotalTokens > 0 {
		res.Usage = usage(r.Usage)
	}
	for i, c := range r.Choices {
		res.SetFinishReason(int(c.Index), c.FinishReason)
		if i != 0 {
			continue
		}
		res.AppendContent(c.Message.Content)
		for j, tc := range c.Message.ToolCalls {
			res.ToolCalls.Set(j, genai.ToolCall{
				ID:        tc.ID,
				Type:      string(tc.Type.Default()),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return res
}

// MergeChatChunk folds one streamed chunk into res.
func MergeChatChunk(res *genai.Result, chunk oai.ChatCompletionChunk) {
	res.SetID(chunk.ID)
	res.SetModel(chunk.Model)
	for _, c := range chunk.Choices {
		res.SetFinishReason(int(c.Index), c.FinishReason)
		if c.Index != 0 {
			continue
		}
		res.AppendContent(c.Delta.Content)
		for _, tc := range c.Delta.ToolCalls {
			res.ToolCalls.Apply(genai.ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	if chunk.JSON.Usage.Valid() || chunk.Usage.TotalTokens > 0 {
		res.Usage.Merge(usage(chunk.Usage))
	}
}

func usage(u oai.CompletionUsage) genai.Usage {
	out := genai.Usage{
		PromptTokens:     genai.Int64(u.PromptTokens),
		CompletionTokens: genai.Int64(u.CompletionTokens),
		TotalTokens:      genai.Int64(u.TotalTokens),
	}
	if n := u.CompletionTokensDetails.ReasoningTokens; n > 0 {
		out.ReasoningTokens = genai.Int64(n)
	}
	if n := u.PromptTokensDetails.CachedTokens; n > 0 {
		out.CacheReadTokens = genai.Int64(n)
	}
	return out
}

func optFloat(ok bool, v float64) *float64 {
	if !ok {
		return nil
	}
	return genai.Float64(v)
}

func optInt(ok bool, v int64) *int64 {
	if !ok {
		return nil
	}
	return genai.Int64(v)
}
