// Package anthropic instruments the Messages API of the official
// github.com/anthropics/anthropic-sdk-go SDK.
//
// Messages wraps a MessageService so that every request is recorded through
// an instrument.Instrumentor. Streamed responses are proxied event by event
// and folded into the call result by MergeEvent.
package anthropic

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/instrument"
	"github.com/openlit/openlit-sub000/semconv"
	"github.com/openlit/openlit-sub000/stream"
)

// System is written as gen_ai.system.
const System = "anthropic"

// DefaultBaseURL is the endpoint assumed when no base URL is configured.
const DefaultBaseURL = "https://api.anthropic.com"

// API is the subset of anthropic.MessageService that Messages wraps.
type API interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

var _ API = (*sdk.MessageService)(nil)

// Messages is an instrumented Messages API.
type Messages struct {
	in     *instrument.Instrumentor
	api    API
	op     instrument.Operation[sdk.MessageNewParams, *sdk.Message]
	stream instrument.StreamOperation[sdk.MessageNewParams, sdk.MessageStreamEventUnion]
}

// Instrument wraps a message service, typically &client.Messages. baseURL is
// the URL passed to option.WithBaseURL, or "" for DefaultBaseURL; it is
// reported as server.address and server.port.
func Instrument(in *instrument.Instrumentor, api API, baseURL string) *Messages {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	host, port := endpoint(baseURL)
	m := &Messages{in: in, api: api, op: Operation(), stream: StreamOperation()}
	if host != "" {
		at := func(p sdk.MessageNewParams) genai.Request {
			r := MessageRequest(p)
			r.ServerAddress, r.ServerPort = host, port
			return r
		}
		m.op.Request = at
		m.stream.Request = at
	}
	return m
}

// New sends a non-streaming request.
func (m *Messages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	call := instrument.Wrap(m.in, m.op, func(ctx context.Context, p sdk.MessageNewParams) (*sdk.Message, error) {
		return m.api.New(ctx, p, opts...)
	})
	return call(ctx, body)
}

// NewStreaming sends a streaming request. Errors opening the stream are
// returned directly instead of being deferred to the first Recv. The span
// ends when the returned stream is exhausted, fails or is closed.
func (m *Messages) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (stream.Stream[sdk.MessageStreamEventUnion], error) {
	call := instrument.WrapStream(m.in, m.stream, func(ctx context.Context, p sdk.MessageNewParams) (stream.Stream[sdk.MessageStreamEventUnion], error) {
		s := m.api.NewStreaming(ctx, p, opts...)
		if s == nil {
			return nil, nil
		}
		if err := s.Err(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return stream.FromCursor[sdk.MessageStreamEventUnion](s), nil
	})
	return call(ctx, body)
}

// Operation describes MessageService.New.
func Operation() instrument.Operation[sdk.MessageNewParams, *sdk.Message] {
	return instrument.Operation[sdk.MessageNewParams, *sdk.Message]{
		System:  System,
		Name:    semconv.OperationChat,
		Request: MessageRequest,
		Result:  MessageResult,
	}
}

// StreamOperation describes MessageService.NewStreaming.
func StreamOperation() instrument.StreamOperation[sdk.MessageNewParams, sdk.MessageStreamEventUnion] {
	return instrument.StreamOperation[sdk.MessageNewParams, sdk.MessageStreamEventUnion]{
		System:  System,
		Name:    semconv.OperationChat,
		Request: MessageRequest,
		Merge:   MergeEvent,
	}
}

// MessageRequest maps request parameters. The system prompt becomes the
// first message.
func MessageRequest(p sdk.MessageNewParams) genai.Request {
	req := genai.Request{
		Model:     string(p.Model),
		Endpoint:  "anthropic.messages",
		Stop:      p.StopSequences,
		ToolCount: len(p.Tools),
		User:      p.Metadata.UserID.Or(""),
	}
	if p.Temperature.Valid() {
		req.Temperature = genai.Float64(p.Temperature.Value)
	}
	if p.TopP.Valid() {
		req.TopP = genai.Float64(p.TopP.Value)
	}
	if p.MaxTokens > 0 {
		req.MaxTokens = genai.Int64(p.MaxTokens)
	}
	if len(p.System) > 0 {
		parts := make([]string, 0, len(p.System))
		for _, b := range p.System {
			parts = append(parts, b.Text)
		}
		req.Messages = append(req.Messages, genai.Message{Role: "system", Content: strings.Join(parts, " ")})
	}
	for _, m := range p.Messages {
		req.Messages = append(req.Messages, genai.Message{Role: string(m.Role), Content: blockText(m.Content)})
	}
	return req
}

func blockText(blocks []sdk.ContentBlockParamUnion) string {
	var parts []string
	for _, b := range blocks {
		if b.OfText != nil {
			parts = append(parts, b.OfText.Text)
		}
	}
	return strings.Join(parts, " ")
}

// MessageResult maps a complete response. Tool calls are numbered in
// content order.
func MessageResult(r *sdk.Message) *genai.Result {
	if r == nil {
		return &genai.Result{}
	}
	res := &genai.Result{ID: r.ID, Model: string(r.Model), Usage: usage(r.Usage)}
	res.SetFinishReason(0, string(r.StopReason))
	tools := 0
	for _, b := range r.Content {
		switch v := b.AsAny().(type) {
		case sdk.TextBlock:
			res.AppendContent(v.Text)
		case sdk.ToolUseBlock:
			res.ToolCalls.Set(tools, genai.ToolCall{ID: v.ID, Type: "tool_use", Name: v.Name, Arguments: v.JSON.Input.Raw()})
			tools++
		}
	}
	return res
}

// MergeEvent folds one stream event into res.
//
// Tool calls are numbered in the order their blocks start. Content blocks
// are streamed one at a time, so an input_json_delta always extends the most
// recently started tool call.
func MergeEvent(res *genai.Result, ev sdk.MessageStreamEventUnion) {
	switch e := ev.AsAny().(type) {
	case sdk.MessageStartEvent:
		res.SetID(e.Message.ID)
		res.SetModel(string(e.Message.Model))
		res.Usage.Merge(usage(e.Message.Usage))
	case sdk.ContentBlockStartEvent:
		switch e.ContentBlock.Type {
		case "text":
			res.AppendContent(e.ContentBlock.Text)
		case "tool_use":
			res.ToolCalls.Apply(genai.ToolCallDelta{
				Index: res.ToolCalls.Len(),
				ID:    e.ContentBlock.ID,
				Type:  "tool_use",
				Name:  e.ContentBlock.Name,
			})
		}
	case sdk.ContentBlockDeltaEvent:
		switch d := e.Delta.AsAny().(type) {
		case sdk.TextDelta:
			res.AppendContent(d.Text)
		case sdk.InputJSONDelta:
			if n := res.ToolCalls.Len(); n > 0 {
				res.ToolCalls.Apply(genai.ToolCallDelta{Index: n - 1, Arguments: d.PartialJSON})
			}
		}
	case sdk.MessageDeltaEvent:
		res.SetFinishReason(0, string(e.Delta.StopReason))
		if e.Usage.OutputTokens > 0 {
			res.Usage.Merge(genai.Usage{CompletionTokens: genai.Int64(e.Usage.OutputTokens)})
		}
	}
}

// usage maps API usage. Input and output counts are always present in
// responses; the total is left for genai.Usage.Total to derive.
func usage(u sdk.Usage) genai.Usage {
	out := genai.Usage{
		PromptTokens:     genai.Int64(u.InputTokens),
		CompletionTokens: genai.Int64(u.OutputTokens),
	}
	if u.CacheReadInputTokens > 0 {
		out.CacheReadTokens = genai.Int64(u.CacheReadInputTokens)
	}
	if u.CacheCreationInputTokens > 0 {
		out.CacheWriteTokens = genai.Int64(u.CacheCreationInputTokens)
	}
	return out
}

func endpoint(base string) (string, int) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", 0
	}
	if p := u.Port(); p != "" {
		port, _ := strconv.Atoi(p)
		return u.Hostname(), port
	}
	if u.Scheme == "http" {
		return u.Hostname(), 80
	}
	return u.Hostname(), 443
}
