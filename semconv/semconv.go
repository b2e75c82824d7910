// Package semconv defines the canonical attribute keys written onto GenAI call
// spans and used as metric dimensions.
//
// Keys follow the OpenTelemetry GenAI semantic conventions where one exists and
// fall back to the gen_ai.* namespace otherwise. Every provider adapter writes
// the same keys so downstream consumers get a provider-independent view.
package semconv

import "go.opentelemetry.io/otel/attribute"

// Operation names (gen_ai.operation.name values).
const (
	OperationChat       = "chat"
	OperationCompletion = "text_completion"
	OperationEmbedding  = "embeddings"
	OperationImage      = "image"
	OperationAudio      = "audio"
	OperationVectorDB   = "vectordb"
)

// Resource and deployment attributes.
const (
	ServiceName           = attribute.Key("service.name")
	DeploymentEnvironment = attribute.Key("deployment.environment")
	ServerAddress         = attribute.Key("server.address")
	ServerPort            = attribute.Key("server.port")
	ErrorType             = attribute.Key("error.type")
	TelemetrySDKName      = attribute.Key("telemetry.sdk.name")
)

// Request attributes.
const (
	GenAISystem                  = attribute.Key("gen_ai.system")
	GenAIOperationName           = attribute.Key("gen_ai.operation.name")
	GenAIEndpoint                = attribute.Key("gen_ai.endpoint")
	GenAIRequestModel            = attribute.Key("gen_ai.request.model")
	GenAIRequestIsStream         = attribute.Key("gen_ai.request.is_stream")
	GenAIRequestTemperature      = attribute.Key("gen_ai.request.temperature")
	GenAIRequestTopP             = attribute.Key("gen_ai.request.top_p")
	GenAIRequestMaxTokens        = attribute.Key("gen_ai.request.max_tokens")
	GenAIRequestSeed             = attribute.Key("gen_ai.request.seed")
	GenAIRequestFrequencyPenalty = attribute.Key("gen_ai.request.frequency_penalty")
	GenAIRequestPresencePenalty  = attribute.Key("gen_ai.request.presence_penalty")
	GenAIRequestStopSequences    = attribute.Key("gen_ai.request.stop_sequences")
	GenAIRequestUser             = attribute.Key("gen_ai.request.user")
	GenAIRequestToolCount        = attribute.Key("gen_ai.request.tool_count")
	GenAIRequestEncodingFormats  = attribute.Key("gen_ai.request.encoding_formats")
	GenAIRequestImageSize        = attribute.Key("gen_ai.request.image_size")
	GenAIRequestImageQuality     = attribute.Key("gen_ai.request.image_quality")
	GenAIRequestImageStyle       = attribute.Key("gen_ai.request.image_style")
	GenAIRequestImageCount       = attribute.Key("gen_ai.request.image_count")
	GenAIRequestAudioVoice       = attribute.Key("gen_ai.request.audio_voice")
	GenAIRequestAudioFormat      = attribute.Key("gen_ai.request.audio_response_format")
	GenAIRequestAudioSpeed       = attribute.Key("gen_ai.request.audio_speed")
)

// Response attributes.
const (
	GenAIResponseID            = attribute.Key("gen_ai.response.id")
	GenAIResponseModel         = attribute.Key("gen_ai.response.model")
	GenAIResponseFinishReasons = attribute.Key("gen_ai.response.finish_reasons")
	GenAIOutputType            = attribute.Key("gen_ai.output.type")
	GenAIEmbeddingCount        = attribute.Key("gen_ai.response.embedding_count")
	GenAIEmbeddingDimensions   = attribute.Key("gen_ai.response.embedding_dimension")
	GenAIImageCount            = attribute.Key("gen_ai.response.image_count")
	GenAIAudioCharacters       = attribute.Key("gen_ai.response.audio_characters")
)

// Usage, cost and timing attributes.
const (
	GenAIUsageInputTokens      = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens     = attribute.Key("gen_ai.usage.output_tokens")
	GenAIUsageTotalTokens      = attribute.Key("gen_ai.usage.total_tokens")
	GenAIUsageReasoningTokens  = attribute.Key("gen_ai.usage.reasoning_tokens")
	GenAIUsageCacheReadTokens  = attribute.Key("gen_ai.usage.cache_read_input_tokens")
	GenAIUsageCacheWriteTokens = attribute.Key("gen_ai.usage.cache_creation_input_tokens")
	GenAIUsageEstimated        = attribute.Key("gen_ai.usage.estimated")
	GenAIUsageCost             = attribute.Key("gen_ai.usage.cost")
	GenAIClientDuration        = attribute.Key("gen_ai.client.operation.duration")
	GenAIServerTTFT            = attribute.Key("gen_ai.server.ttft")
	GenAIServerTBT             = attribute.Key("gen_ai.server.tbt")
	GenAIStreamChunks          = attribute.Key("gen_ai.response.stream_chunks")
)

// Tool-call attributes.
const (
	GenAIToolNames = attribute.Key("gen_ai.tool.name")
	GenAIToolIDs   = attribute.Key("gen_ai.tool.call.id")
	GenAIToolTypes = attribute.Key("gen_ai.tool.type")
	GenAIToolArgs  = attribute.Key("gen_ai.tool.args")
)

// Content attributes. Only written when content capture is enabled.
const (
	GenAIContentPrompt         = attribute.Key("gen_ai.content.prompt")
	GenAIContentCompletion     = attribute.Key("gen_ai.content.completion")
	GenAIContentRevisedPrompts = attribute.Key("gen_ai.content.revised_prompt")
)

// Vector store attributes.
const (
	DBSystem       = attribute.Key("db.system.name")
	DBOperation    = attribute.Key("db.operation.name")
	DBCollection   = attribute.Key("db.collection.name")
	DBQueryNResult = attribute.Key("db.query.n_results")
	DBReturnedRows = attribute.Key("db.response.returned_rows")
)

// SDKName identifies this instrumentation in telemetry.sdk.name.
const SDKName = "openlit-go"
