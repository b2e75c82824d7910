// Package metrics aggregates finalized GenAI call spans into OpenTelemetry
// counters and histograms.
//
// The Recorder reads every value it emits off the span's recorded
// attributes, so a call's attributes must be fully written before Record is
// called. Record must run at most once per call; callers uphold that by
// invoking it from a single place on each success path.
package metrics

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openlit/openlit-sub000/semconv"
	"github.com/openlit/openlit-sub000/span"
)

// Instrument names.
const (
	GenAIRequests         = "gen_ai.total.requests"
	GenAIInputTokens      = "gen_ai.usage.input_tokens"
	GenAIOutputTokens     = "gen_ai.usage.output_tokens"
	GenAITotalTokens      = "gen_ai.usage.total_tokens"
	GenAICost             = "gen_ai.usage.cost"
	GenAIClientTokenUsage = "gen_ai.client.token.usage"
	GenAIClientDuration   = "gen_ai.client.operation.duration"
	GenAIServerTTFT       = "gen_ai.server.time_to_first_token"
	GenAIServerTBT        = "gen_ai.server.time_per_output_token"
	DBRequests            = "db.total.requests"
)

// dimensions are the span attributes copied onto every observation.
var dimensions = []attribute.Key{
	semconv.TelemetrySDKName,
	semconv.ServiceName,
	semconv.DeploymentEnvironment,
	semconv.GenAISystem,
	semconv.GenAIOperationName,
	semconv.GenAIRequestModel,
	semconv.GenAIResponseModel,
	semconv.ServerAddress,
	semconv.ServerPort,
}

var dbDimensions = []attribute.Key{
	semconv.TelemetrySDKName,
	semconv.ServiceName,
	semconv.DeploymentEnvironment,
	semconv.DBSystem,
	semconv.DBOperation,
	semconv.DBCollection,
}

// Recorder emits GenAI call metrics.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: Record never fails; absent or non-finite values are skipped.
type Recorder struct {
	requests    metric.Int64Counter
	inputTokens metric.Int64Counter
	outputTkns  metric.Int64Counter
	totalTokens metric.Int64Counter
	tokenUsage  metric.Int64Histogram
	cost        metric.Float64Histogram
	duration    metric.Float64Histogram
	ttft        metric.Float64Histogram
	tbt         metric.Float64Histogram
	dbRequests  metric.Int64Counter
}

// New creates the Recorder's instruments on meter.
func New(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.requests, err = meter.Int64Counter(GenAIRequests,
		metric.WithDescription("Number of GenAI requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if r.inputTokens, err = meter.Int64Counter(GenAIInputTokens,
		metric.WithDescription("Number of prompt tokens processed"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if r.outputTkns, err = meter.Int64Counter(GenAIOutputTokens,
		metric.WithDescription("Number of completion tokens processed"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if r.totalTokens, err = meter.Int64Counter(GenAITotalTokens,
		metric.WithDescription("Number of total tokens processed"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if r.tokenUsage, err = meter.Int64Histogram(GenAIClientTokenUsage,
		metric.WithDescription("Tokens used per call"),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(1, 4, 16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864),
	); err != nil {
		return nil, err
	}
	if r.cost, err = meter.Float64Histogram(GenAICost,
		metric.WithDescription("Cost of GenAI calls"),
		metric.WithUnit("USD"),
	); err != nil {
		return nil, err
	}
	if r.duration, err = meter.Float64Histogram(GenAIClientDuration,
		metric.WithDescription("GenAI operation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56, 5.12, 10.24, 20.48, 40.96, 81.92),
	); err != nil {
		return nil, err
	}
	if r.ttft, err = meter.Float64Histogram(GenAIServerTTFT,
		metric.WithDescription("Time to receive the first streamed chunk"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.02, 0.04, 0.06, 0.08, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0),
	); err != nil {
		return nil, err
	}
	if r.tbt, err = meter.Float64Histogram(GenAIServerTBT,
		metric.WithDescription("Mean time between streamed chunks"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.75, 1.0, 2.5),
	); err != nil {
		return nil, err
	}
	if r.dbRequests, err = meter.Int64Counter(DBRequests,
		metric.WithDescription("Number of vector store requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return r, nil
}

// Record emits one observation per present metric attribute of s.
func (r *Recorder) Record(ctx context.Context, s *span.Span) {
	if r == nil || s == nil {
		return
	}

	op, _ := s.String(semconv.GenAIOperationName)
	if op == semconv.OperationVectorDB {
		opt := metric.WithAttributes(collect(s, dbDimensions)...)
		r.dbRequests.Add(ctx, 1, opt)
		if d, ok := finiteFloat(s, semconv.GenAIClientDuration); ok {
			r.duration.Record(ctx, d, opt)
		}
		return
	}

	opt := metric.WithAttributes(collect(s, dimensions)...)
	r.requests.Add(ctx, 1, opt)

	if v, ok := count(s, semconv.GenAIUsageInputTokens); ok {
		r.inputTokens.Add(ctx, v, opt)
	}
	if v, ok := count(s, semconv.GenAIUsageOutputTokens); ok {
		r.outputTkns.Add(ctx, v, opt)
	}
	if v, ok := count(s, semconv.GenAIUsageTotalTokens); ok {
		r.totalTokens.Add(ctx, v, opt)
		r.tokenUsage.Record(ctx, v, opt)
	}
	if v, ok := finiteFloat(s, semconv.GenAIUsageCost); ok && v >= 0 {
		r.cost.Record(ctx, v, opt)
	}
	if v, ok := finiteFloat(s, semconv.GenAIClientDuration); ok && v >= 0 {
		r.duration.Record(ctx, v, opt)
	}
	if v, ok := finiteFloat(s, semconv.GenAIServerTTFT); ok && v >= 0 {
		r.ttft.Record(ctx, v, opt)
	}
	if v, ok := finiteFloat(s, semconv.GenAIServerTBT); ok && v >= 0 {
		r.tbt.Record(ctx, v, opt)
	}
}

func collect(s *span.Span, keys []attribute.Key) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.Value(k); ok {
			out = append(out, attribute.KeyValue{Key: k, Value: v})
		}
	}
	return out
}

func count(s *span.Span, key attribute.Key) (int64, bool) {
	v, ok := s.Int64(key)
	if !ok || v < 0 {
		return 0, false
	}
	return v, true
}

func finiteFloat(s *span.Span, key attribute.Key) (float64, bool) {
	v, ok := s.Float64(key)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
