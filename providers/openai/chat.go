package openai

import (
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/instrument"
	"github.com/openlit/openlit-sub000/semconv"
)

// ChatOperation describes CreateChatCompletion.
func ChatOperation() instrument.Operation[gopenai.ChatCompletionRequest, gopenai.ChatCompletionResponse] {
	return instrument.Operation[gopenai.ChatCompletionRequest, gopenai.ChatCompletionResponse]{
		System:  System,
		Name:    semconv.OperationChat,
		Request: ChatRequest,
		Result:  ChatResult,
	}
}

// ChatStreamOperation describes CreateChatCompletionStream.
func ChatStreamOperation() instrument.StreamOperation[gopenai.ChatCompletionRequest, gopenai.ChatCompletionStreamResponse] {
	return instrument.StreamOperation[gopenai.ChatCompletionRequest, gopenai.ChatCompletionStreamResponse]{
		System:  System,
		Name:    semconv.OperationChat,
		Request: ChatRequest,
		Merge:   MergeChatChunk,
	}
}

// ChatRequest maps chat completion arguments.
func ChatRequest(r gopenai.ChatCompletionRequest) genai.Request {
	req := genai.Request{
		Model:            r.Model,
		Endpoint:         "openai.chat.completions",
		Stream:           r.Stream,
		Temperature:      nonZero32(r.Temperature),
		TopP:             nonZero32(r.TopP),
		FrequencyPenalty: nonZero32(r.FrequencyPenalty),
		PresencePenalty:  nonZero32(r.PresencePenalty),
		MaxTokens:        nonZeroInt(r.MaxTokens),
		Seed:             intPtr(r.Seed),
		Stop:             r.Stop,
		User:             r.User,
		ToolCount:        len(r.Tools),
	}
	if r.MaxCompletionTokens > 0 {
		req.MaxTokens = genai.Int64(int64(r.MaxCompletionTokens))
	}
	for _, m := range r.Messages {
		req.Messages = append(req.Messages, genai.Message{Role: m.Role, Content: messageText(m)})
	}
	return req
}

func messageText(m gopenai.ChatCompletionMessage) string {
	if len(m.MultiContent) == 0 {
		return m.Content
	}
	var parts []string
	for _, p := range m.MultiContent {
		if p.Type == gopenai.ChatMessagePartTypeText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ChatResult maps a chat completion. Only the first choice contributes
// content and tool calls; every choice contributes its finish reason.
func ChatResult(r gopenai.ChatCompletionResponse) *genai.Result {
	res := &genai.Result{ID: r.ID, Model: r.Model, Usage: usage(r.Usage)}
	for i, c := range r.Choices {
		res.SetFinishReason(c.Index, string(c.FinishReason))
		if i != 0 {
			continue
		}
		res.AppendContent(c.Message.Content)
		for j, tc := range c.Message.ToolCalls {
			res.ToolCalls.Set(j, genai.ToolCall{
				ID:        tc.ID,
				Type:      string(tc.Type),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return res
}

// MergeChatChunk folds one streamed chat chunk into res.
func MergeChatChunk(res *genai.Result, chunk gopenai.ChatCompletionStreamResponse) {
	res.SetID(chunk.ID)
	res.SetModel(chunk.Model)
	for _, c := range chunk.Choices {
		res.SetFinishReason(c.Index, string(c.FinishReason))
		if c.Index != 0 {
			continue
		}
		res.AppendContent(c.Delta.Content)
		for pos, tc := range c.Delta.ToolCalls {
			index := pos
			if tc.Index != nil {
				index = *tc.Index
			}
			res.ToolCalls.Apply(genai.ToolCallDelta{
				Index:     index,
				ID:        tc.ID,
				Type:      string(tc.Type),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	if chunk.Usage != nil {
		res.Usage.Merge(usage(*chunk.Usage))
	}
}

// usage converts go-openai usage. An all-zero value means the provider did
// not report usage.
func usage(u gopenai.Usage) genai.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return genai.Usage{}
	}
	out := genai.Usage{
		PromptTokens:     genai.Int64(int64(u.PromptTokens)),
		CompletionTokens: genai.Int64(int64(u.CompletionTokens)),
		TotalTokens:      genai.Int64(int64(u.TotalTokens)),
	}
	if d := u.CompletionTokensDetails; d != nil && d.ReasoningTokens > 0 {
		out.ReasoningTokens = genai.Int64(int64(d.ReasoningTokens))
	}
	if d := u.PromptTokensDetails; d != nil && d.CachedTokens > 0 {
		out.CacheReadTokens = genai.Int64(int64(d.CachedTokens))
	}
	return out
}

// CompletionOperation describes CreateCompletion.
func CompletionOperation() instrument.Operation[gopenai.CompletionRequest, gopenai.CompletionResponse] {
	return instrument.Operation[gopenai.CompletionRequest, gopenai.CompletionResponse]{
		System:  System,
		Name:    semconv.OperationCompletion,
		Request: CompletionRequest,
		Result:  CompletionResult,
	}
}

// CompletionRequest maps text completion arguments.
func CompletionRequest(r gopenai.CompletionRequest) genai.Request {
	return genai.Request{
		Model:            r.Model,
		Endpoint:         "openai.completions",
		Stream:           r.Stream,
		Input:            inputs(r.Prompt),
		Temperature:      nonZero32(r.Temperature),
		TopP:             nonZero32(r.TopP),
		FrequencyPenalty: nonZero32(r.FrequencyPenalty),
		PresencePenalty:  nonZero32(r.PresencePenalty),
		MaxTokens:        nonZeroInt(r.MaxTokens),
		Seed:             intPtr(r.Seed),
		Stop:             r.Stop,
		User:             r.User,
	}
}

// CompletionResult maps a text completion.
func CompletionResult(r gopenai.CompletionResponse) *genai.Result {
	res := &genai.Result{ID: r.ID, Model: r.Model}
	if r.Usage != nil {
		res.Usage = usage(*r.Usage)
	}
	for _, c := range r.Choices {
		res.SetFinishReason(c.Index, c.FinishReason)
		if c.Index == 0 {
			res.AppendContent(c.Text)
		}
	}
	return res
}
