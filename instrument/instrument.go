// Package instrument wraps GenAI client calls with telemetry.
//
// Wrap, WrapStream and WrapAuto take an original call and return a
// replacement with the same signature. The replacement starts one span per
// call, runs the original, and finalizes telemetry (token usage, cost,
// timing, canonical attributes and metrics) exactly once. Results, stream
// chunks and errors reach the caller unchanged; telemetry failures are
// logged and never surface.
//
// Installing a replacement onto a client (a struct field, an interface
// implementation, a function variable) is left to the caller.
package instrument

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/metrics"
	"github.com/openlit/openlit-sub000/observe"
	"github.com/openlit/openlit-sub000/pricing"
	"github.com/openlit/openlit-sub000/span"
)

// PricingSource supplies the pricing table at finalization time. On error
// the returned table, which may be nil, is still used.
type PricingSource interface {
	Refresh(ctx context.Context) (*pricing.Table, error)
}

var _ PricingSource = (*pricing.Store)(nil)

// Instrumentor holds the shared, read-only collaborators of every wrapped
// call.
//
// Contract:
// - Concurrency: safe for concurrent use by any number of wrapped calls.
type Instrumentor struct {
	spans     *span.Manager
	recorder  *metrics.Recorder
	pricing   PricingSource
	estimator genai.Estimator
	env       genai.Environment
	logger    observe.Logger
	now       func() time.Time
}

// Option configures an Instrumentor.
type Option func(*Instrumentor)

// WithLogger sets the logger for telemetry anomalies.
func WithLogger(l observe.Logger) Option {
	return func(in *Instrumentor) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithPricing sets the pricing source. Without one every cost is unknown.
func WithPricing(p PricingSource) Option {
	return func(in *Instrumentor) { in.pricing = p }
}

// WithEstimator sets the token estimator used when a provider reports no
// usage. A nil estimator disables estimation.
func WithEstimator(e genai.Estimator) Option {
	return func(in *Instrumentor) { in.estimator = e }
}

// WithEnvironment sets the deployment metadata attached to every span.
func WithEnvironment(env genai.Environment) Option {
	return func(in *Instrumentor) { in.env = env }
}

// WithClock overrides the clock used for durations.
func WithClock(now func() time.Time) Option {
	return func(in *Instrumentor) {
		if now != nil {
			in.now = now
		}
	}
}

// New creates an Instrumentor. A nil tracer or meter disables that signal.
func New(tracer trace.Tracer, meter metric.Meter, opts ...Option) (*Instrumentor, error) {
	in := &Instrumentor{
		logger: observe.NopLogger(),
		now:    time.Now,
	}
	in.estimator = genai.NewTiktokenEstimator(nil)
	for _, opt := range opts {
		opt(in)
	}

	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("noop")
	}
	rec, err := metrics.New(meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	in.recorder = rec
	in.spans = span.NewManager(tracer, in.logger)
	return in, nil
}

// FromObserver creates an Instrumentor from an Observer and the Config it
// was built from. A pricing store is created when cfg names a pricing URL
// or file; options override anything derived from cfg.
func FromObserver(obs observe.Observer, cfg observe.Config, opts ...Option) (*Instrumentor, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	base := []Option{
		WithLogger(obs.Logger()),
		WithEnvironment(genai.Environment{
			ApplicationName: cfg.ServiceName,
			Environment:     cfg.Environment,
			CaptureContent:  cfg.CaptureContent,
		}),
	}

	if src, err := pricing.SourceFromConfig(cfg.Pricing); err == nil {
		store, err := pricing.NewStore(pricing.StoreConfig{
			Source:          src,
			RefreshInterval: cfg.Pricing.RefreshInterval,
			Logger:          obs.Logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("create pricing store: %w", err)
		}
		base = append(base, WithPricing(store))
	}

	return New(obs.Tracer(), obs.Meter(), append(base, opts...)...)
}

// Environment returns the deployment metadata attached to spans.
func (in *Instrumentor) Environment() genai.Environment {
	return in.env
}
