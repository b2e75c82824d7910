package openai

import (
	gopenai "github.com/sashabaranov/go-openai"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/instrument"
	"github.com/openlit/openlit-sub000/semconv"
)

// Defaults the API applies when the request leaves a field empty.
const (
	DefaultImageModel  = "dall-e-2"
	DefaultSpeechVoice = "alloy"
	DefaultAudioFormat = "mp3"
)

// EmbeddingsOperation describes CreateEmbeddings.
func EmbeddingsOperation() instrument.Operation[gopenai.EmbeddingRequestConverter, gopenai.EmbeddingResponse] {
	return instrument.Operation[gopenai.EmbeddingRequestConverter, gopenai.EmbeddingResponse]{
		System:  System,
		Name:    semconv.OperationEmbedding,
		Request: EmbeddingsRequest,
		Result:  EmbeddingsResult,
	}
}

// EmbeddingsRequest maps embedding arguments. Token-array inputs are not
// captured as text.
func EmbeddingsRequest(conv gopenai.EmbeddingRequestConverter) genai.Request {
	if conv == nil {
		return genai.Request{}
	}
	r := conv.Convert()
	return genai.Request{
		Model:          string(r.Model),
		Endpoint:       "openai.embeddings",
		Input:          inputs(r.Input),
		User:           r.User,
		EncodingFormat: string(r.EncodingFormat),
	}
}

// EmbeddingsResult maps an embedding response.
func EmbeddingsResult(r gopenai.EmbeddingResponse) *genai.Result {
	res := &genai.Result{Model: string(r.Model), EmbeddingCount: len(r.Data)}
	if len(r.Data) > 0 {
		res.EmbeddingDimensions = len(r.Data[0].Embedding)
	}
	if r.Usage.PromptTokens > 0 || r.Usage.TotalTokens > 0 {
		res.Usage.PromptTokens = genai.Int64(int64(r.Usage.PromptTokens))
		res.Usage.TotalTokens = genai.Int64(int64(r.Usage.TotalTokens))
	}
	return res
}

// ImageOperation describes CreateImage.
func ImageOperation() instrument.Operation[gopenai.ImageRequest, gopenai.ImageResponse] {
	return instrument.Operation[gopenai.ImageRequest, gopenai.ImageResponse]{
		System:  System,
		Name:    semconv.OperationImage,
		Request: ImageRequest,
		Result:  ImageResult,
	}
}

// ImageRequest maps image generation arguments.
func ImageRequest(r gopenai.ImageRequest) genai.Request {
	req := genai.Request{
		Model:        r.Model,
		Endpoint:     "openai.images.generate",
		Input:        inputs(r.Prompt),
		ImageSize:    r.Size,
		ImageQuality: r.Quality,
		ImageStyle:   r.Style,
		ImageCount:   r.N,
		User:         r.User,
	}
	if req.Model == "" {
		req.Model = DefaultImageModel
	}
	if req.ImageCount == 0 {
		req.ImageCount = 1
	}
	return req
}

// ImageResult maps an image response.
func ImageResult(r gopenai.ImageResponse) *genai.Result {
	res := &genai.Result{ImageCount: len(r.Data)}
	for _, d := range r.Data {
		if d.RevisedPrompt != "" {
			res.RevisedPrompts = append(res.RevisedPrompts, d.RevisedPrompt)
		}
	}
	if u := r.Usage; u.InputTokens > 0 || u.OutputTokens > 0 {
		res.Usage.PromptTokens = genai.Int64(int64(u.InputTokens))
		res.Usage.CompletionTokens = genai.Int64(int64(u.OutputTokens))
		if u.TotalTokens > 0 {
			res.Usage.TotalTokens = genai.Int64(int64(u.TotalTokens))
		}
	}
	return res
}

// SpeechOperation describes CreateSpeech.
func SpeechOperation() instrument.Operation[gopenai.CreateSpeechRequest, gopenai.RawResponse] {
	return instrument.Operation[gopenai.CreateSpeechRequest, gopenai.RawResponse]{
		System:  System,
		Name:    semconv.OperationAudio,
		Request: SpeechRequest,
		Result:  SpeechResult,
	}
}

// SpeechRequest maps text-to-speech arguments.
func SpeechRequest(r gopenai.CreateSpeechRequest) genai.Request {
	req := genai.Request{
		Model:       string(r.Model),
		Endpoint:    "openai.audio.speech",
		Input:       inputs(r.Input),
		Voice:       string(r.Voice),
		AudioFormat: string(r.ResponseFormat),
	}
	if req.Voice == "" {
		req.Voice = DefaultSpeechVoice
	}
	if req.AudioFormat == "" {
		req.AudioFormat = DefaultAudioFormat
	}
	if r.Speed != 0 {
		req.AudioSpeed = genai.Float64(r.Speed)
	}
	return req
}

// SpeechResult maps a speech response. The body is audio and is left
// untouched; billing is derived from the request input.
func SpeechResult(gopenai.RawResponse) *genai.Result {
	return &genai.Result{}
}
