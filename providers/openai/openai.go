// Package openai instruments a github.com/sashabaranov/go-openai client.
//
// Client exposes the same call shapes as *openai.Client for chat
// completions (plain and streamed), text completions, embeddings, image
// generation and speech. Each call is recorded through an
// instrument.Instrumentor; responses and errors are returned unchanged.
//
// One signature differs from *openai.Client: CreateChatCompletionStream
// returns a stream.Stream instead of *openai.ChatCompletionStream, because
// the chunks are proxied through an accumulator. Recv and Close behave as on
// the concrete stream. As a consequence *Client does not satisfy API.
package openai

import (
	"context"
	"net"
	"net/url"
	"strconv"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/instrument"
	"github.com/openlit/openlit-sub000/stream"
)

// System is written as gen_ai.system.
const System = "openai"

// DefaultBaseURL is the endpoint assumed when no base URL is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// API is the subset of *openai.Client that Client wraps.
type API interface {
	CreateChatCompletion(ctx context.Context, req gopenai.ChatCompletionRequest) (gopenai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req gopenai.ChatCompletionRequest) (*gopenai.ChatCompletionStream, error)
	CreateCompletion(ctx context.Context, req gopenai.CompletionRequest) (gopenai.CompletionResponse, error)
	CreateEmbeddings(ctx context.Context, conv gopenai.EmbeddingRequestConverter) (gopenai.EmbeddingResponse, error)
	CreateImage(ctx context.Context, req gopenai.ImageRequest) (gopenai.ImageResponse, error)
	CreateSpeech(ctx context.Context, req gopenai.CreateSpeechRequest) (gopenai.RawResponse, error)
}

var _ API = (*gopenai.Client)(nil)

// Option configures a Client.
type Option func(*config)

type config struct {
	baseURL string
}

// WithBaseURL sets the endpoint reported as server.address and server.port.
// It should match the BaseURL of the wrapped client's configuration.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// Client is an instrumented go-openai client.
type Client struct {
	chat       instrument.CallFunc[gopenai.ChatCompletionRequest, gopenai.ChatCompletionResponse]
	chatStream instrument.StreamFunc[gopenai.ChatCompletionRequest, gopenai.ChatCompletionStreamResponse]
	completion instrument.CallFunc[gopenai.CompletionRequest, gopenai.CompletionResponse]
	embeddings instrument.CallFunc[gopenai.EmbeddingRequestConverter, gopenai.EmbeddingResponse]
	image      instrument.CallFunc[gopenai.ImageRequest, gopenai.ImageResponse]
	speech     instrument.CallFunc[gopenai.CreateSpeechRequest, gopenai.RawResponse]
}

// Instrument wraps api. A nil Instrumentor yields a Client that forwards
// every call untouched.
func Instrument(in *instrument.Instrumentor, api API, opts ...Option) *Client {
	cfg := config{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	host, port := endpoint(cfg.baseURL)
	at := func(r genai.Request) genai.Request {
		r.ServerAddress, r.ServerPort = host, port
		return r
	}

	chat := ChatOperation()
	chat.Request = withEndpoint(chat.Request, at)
	chatStream := ChatStreamOperation()
	chatStream.Request = withEndpoint(chatStream.Request, at)
	completion := CompletionOperation()
	completion.Request = withEndpoint(completion.Request, at)
	embeddings := EmbeddingsOperation()
	embeddings.Request = withEndpoint(embeddings.Request, at)
	image := ImageOperation()
	image.Request = withEndpoint(image.Request, at)
	speech := SpeechOperation()
	speech.Request = withEndpoint(speech.Request, at)

	return &Client{
		chat:       instrument.Wrap(in, chat, api.CreateChatCompletion),
		chatStream: instrument.WrapStream(in, chatStream, openStream(api)),
		completion: instrument.Wrap(in, completion, api.CreateCompletion),
		embeddings: instrument.Wrap(in, embeddings, api.CreateEmbeddings),
		image:      instrument.Wrap(in, image, api.CreateImage),
		speech:     instrument.Wrap(in, speech, api.CreateSpeech),
	}
}

// openStream adapts CreateChatCompletionStream so a failed call never
// yields a non-nil interface holding a nil stream.
func openStream(api API) instrument.StreamFunc[gopenai.ChatCompletionRequest, gopenai.ChatCompletionStreamResponse] {
	return func(ctx context.Context, req gopenai.ChatCompletionRequest) (stream.Stream[gopenai.ChatCompletionStreamResponse], error) {
		s, err := api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, nil
		}
		return s, nil
	}
}

// CreateChatCompletion calls the wrapped client and records a chat span.
func (c *Client) CreateChatCompletion(ctx context.Context, req gopenai.ChatCompletionRequest) (gopenai.ChatCompletionResponse, error) {
	return c.chat(ctx, req)
}

// CreateChatCompletionStream opens a streamed chat completion. The span ends
// when the returned stream is exhausted, fails or is closed. The result is a
// stream.Stream rather than *openai.ChatCompletionStream.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req gopenai.ChatCompletionRequest) (stream.Stream[gopenai.ChatCompletionStreamResponse], error) {
	return c.chatStream(ctx, req)
}

// CreateCompletion calls the legacy completions endpoint.
func (c *Client) CreateCompletion(ctx context.Context, req gopenai.CompletionRequest) (gopenai.CompletionResponse, error) {
	return c.completion(ctx, req)
}

// CreateEmbeddings calls the embeddings endpoint.
func (c *Client) CreateEmbeddings(ctx context.Context, conv gopenai.EmbeddingRequestConverter) (gopenai.EmbeddingResponse, error) {
	return c.embeddings(ctx, conv)
}

// CreateImage calls the image generation endpoint.
func (c *Client) CreateImage(ctx context.Context, req gopenai.ImageRequest) (gopenai.ImageResponse, error) {
	return c.image(ctx, req)
}

// CreateSpeech calls the text-to-speech endpoint. The audio body is returned
// unread.
func (c *Client) CreateSpeech(ctx context.Context, req gopenai.CreateSpeechRequest) (gopenai.RawResponse, error) {
	return c.speech(ctx, req)
}

func withEndpoint[Req any](build func(Req) genai.Request, at func(genai.Request) genai.Request) func(Req) genai.Request {
	return func(r Req) genai.Request {
		return at(build(r))
	}
}

// endpoint splits a base URL into host and port, defaulting the port from
// the scheme.
func endpoint(base string) (string, int) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", 0
	}
	host, portText, err := net.SplitHostPort(u.Host)
	if err != nil {
		host = u.Hostname()
		if u.Scheme == "http" {
			return host, 80
		}
		return host, 443
	}
	port, _ := strconv.Atoi(portText)
	return host, port
}

func nonZero32(v float32) *float64 {
	if v == 0 {
		return nil
	}
	return genai.Float64(float64(v))
}

func nonZeroInt(v int) *int64 {
	if v == 0 {
		return nil
	}
	return genai.Int64(int64(v))
}

func intPtr(v *int) *int64 {
	if v == nil {
		return nil
	}
	return genai.Int64(int64(*v))
}

// inputs flattens the string forms of a prompt or embedding input.
func inputs(v any) []string {
	switch in := v.(type) {
	case string:
		if in == "" {
			return nil
		}
		return []string{in}
	case []string:
		return in
	case []any:
		var out []string
		for _, e := range in {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
