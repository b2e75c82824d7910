package genai

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/openlit/openlit-sub000/semconv"
)

// NormalizeFunc maps call arguments and a finalized result to span
// attributes. Call sites may supply their own to override Normalize.
type NormalizeFunc func(req Request, res *Result, env Environment) []attribute.KeyValue

// Normalize produces the canonical attribute set for a call. Absent fields are
// omitted. Content attributes are written only when env.CaptureContent is set.
func Normalize(req Request, res *Result, env Environment) []attribute.KeyValue {
	if res == nil {
		res = &Result{}
	}
	attrs := make([]attribute.KeyValue, 0, 40)
	add := func(kv ...attribute.KeyValue) { attrs = append(attrs, kv...) }
	str := func(k attribute.Key, v string) {
		if v != "" {
			add(k.String(v))
		}
	}
	i64 := func(k attribute.Key, v *int64) {
		if v != nil {
			add(k.Int64(*v))
		}
	}
	f64 := func(k attribute.Key, v *float64) {
		if v != nil {
			add(k.Float64(*v))
		}
	}
	strs := func(k attribute.Key, v []string) {
		if len(v) > 0 {
			add(k.StringSlice(v))
		}
	}

	add(semconv.TelemetrySDKName.String(semconv.SDKName))
	str(semconv.ServiceName, env.ApplicationName)
	str(semconv.DeploymentEnvironment, env.Environment)

	str(semconv.GenAISystem, req.System)
	str(semconv.GenAIOperationName, req.Operation)
	str(semconv.ServerAddress, req.ServerAddress)
	if req.ServerPort > 0 {
		add(semconv.ServerPort.Int(req.ServerPort))
	}
	str(semconv.GenAIEndpoint, req.Endpoint)

	// Request.
	str(semconv.GenAIRequestModel, req.Model)
	add(semconv.GenAIRequestIsStream.Bool(req.Stream))
	f64(semconv.GenAIRequestTemperature, req.Temperature)
	f64(semconv.GenAIRequestTopP, req.TopP)
	i64(semconv.GenAIRequestMaxTokens, req.MaxTokens)
	i64(semconv.GenAIRequestSeed, req.Seed)
	f64(semconv.GenAIRequestFrequencyPenalty, req.FrequencyPenalty)
	f64(semconv.GenAIRequestPresencePenalty, req.PresencePenalty)
	strs(semconv.GenAIRequestStopSequences, req.Stop)
	str(semconv.GenAIRequestUser, req.User)
	if req.ToolCount > 0 {
		add(semconv.GenAIRequestToolCount.Int(req.ToolCount))
	}
	if req.EncodingFormat != "" {
		add(semconv.GenAIRequestEncodingFormats.StringSlice([]string{req.EncodingFormat}))
	}
	str(semconv.GenAIRequestImageSize, req.ImageSize)
	str(semconv.GenAIRequestImageQuality, req.ImageQuality)
	str(semconv.GenAIRequestImageStyle, req.ImageStyle)
	if req.ImageCount > 0 {
		add(semconv.GenAIRequestImageCount.Int(req.ImageCount))
	}
	str(semconv.GenAIRequestAudioVoice, req.Voice)
	str(semconv.GenAIRequestAudioFormat, req.AudioFormat)
	f64(semconv.GenAIRequestAudioSpeed, req.AudioSpeed)

	// Response.
	str(semconv.GenAIResponseID, res.ID)
	if res.Model != "" {
		add(semconv.GenAIResponseModel.String(res.Model))
	} else {
		str(semconv.GenAIResponseModel, req.Model)
	}
	strs(semconv.GenAIResponseFinishReasons, res.FinishReasons())
	str(semconv.GenAIOutputType, outputType(req.Operation))
	if res.EmbeddingCount > 0 {
		add(semconv.GenAIEmbeddingCount.Int(res.EmbeddingCount))
	}
	if res.EmbeddingDimensions > 0 {
		add(semconv.GenAIEmbeddingDimensions.Int(res.EmbeddingDimensions))
	}
	if res.ImageCount > 0 {
		add(semconv.GenAIImageCount.Int(res.ImageCount))
	}
	if res.AudioCharacters > 0 {
		add(semconv.GenAIAudioCharacters.Int(res.AudioCharacters))
	}

	// Usage.
	u := res.Usage
	i64(semconv.GenAIUsageInputTokens, u.PromptTokens)
	i64(semconv.GenAIUsageOutputTokens, u.CompletionTokens)
	if total, ok := u.Total(); ok {
		add(semconv.GenAIUsageTotalTokens.Int64(total))
	}
	i64(semconv.GenAIUsageReasoningTokens, u.ReasoningTokens)
	i64(semconv.GenAIUsageCacheReadTokens, u.CacheReadTokens)
	i64(semconv.GenAIUsageCacheWriteTokens, u.CacheWriteTokens)
	if res.Estimated {
		add(semconv.GenAIUsageEstimated.Bool(true))
	}

	// Timing.
	t := res.Timing
	if t.Duration > 0 {
		add(semconv.GenAIClientDuration.Float64(t.Duration.Seconds()))
	}
	if t.HasTTFT() {
		add(semconv.GenAIServerTTFT.Float64(t.TTFT.Seconds()))
		add(semconv.GenAIStreamChunks.Int(t.Chunks))
	}
	if t.HasTBT() {
		add(semconv.GenAIServerTBT.Float64(t.TBT.Seconds()))
	}

	// Tool calls.
	if calls := res.ToolCalls.List(); len(calls) > 0 {
		names := make([]string, len(calls))
		ids := make([]string, len(calls))
		types := make([]string, len(calls))
		args := make([]string, len(calls))
		for i, c := range calls {
			names[i], ids[i], types[i], args[i] = c.Name, c.ID, c.Type, c.Arguments
		}
		add(
			semconv.GenAIToolNames.StringSlice(names),
			semconv.GenAIToolIDs.StringSlice(ids),
			semconv.GenAIToolTypes.StringSlice(types),
		)
		if env.CaptureContent {
			add(semconv.GenAIToolArgs.StringSlice(args))
		}
	}

	// Vector store.
	str(semconv.DBSystem, req.DBSystem)
	str(semconv.DBOperation, req.DBOperation)
	str(semconv.DBCollection, req.DBCollection)
	i64(semconv.DBQueryNResult, req.DBNResults)
	i64(semconv.DBReturnedRows, res.ReturnedRows)

	if env.CaptureContent {
		str(semconv.GenAIContentPrompt, req.PromptText())
		str(semconv.GenAIContentCompletion, res.Content())
		strs(semconv.GenAIContentRevisedPrompts, res.RevisedPrompts)
	}

	return attrs
}

func outputType(operation string) string {
	switch operation {
	case semconv.OperationChat, semconv.OperationCompletion:
		return "text"
	case semconv.OperationImage:
		return "image"
	case semconv.OperationAudio:
		return "speech"
	default:
		return ""
	}
}
