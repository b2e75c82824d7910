package instrument

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/observe"
	"github.com/openlit/openlit-sub000/pricing"
	"github.com/openlit/openlit-sub000/semconv"
	"github.com/openlit/openlit-sub000/span"
	"github.com/openlit/openlit-sub000/stream"
)

// callContext is the state of one wrapped call. It is owned by that call
// and discarded when its span ends.
type callContext struct {
	in     *Instrumentor
	ctx    context.Context
	span   *span.Span
	start  time.Time
	req    genai.Request
	logger observe.Logger

	normalize genai.NormalizeFunc
	cost      CostFunc
}

type descriptor struct {
	system    string
	operation string
	normalize genai.NormalizeFunc
	cost      CostFunc
}

func begin[Req any](ctx context.Context, in *Instrumentor, d descriptor, toRequest func(Req) genai.Request, req Req) *callContext {
	id := uuid.NewString()
	logger := in.logger.With(observe.Field{Key: "call_id", Value: id})

	greq := safeRequest(ctx, logger, toRequest, req)
	if greq.System == "" {
		greq.System = d.system
	}
	if greq.Operation == "" {
		greq.Operation = d.operation
	}
	if greq.Endpoint == "" && greq.System != "" && greq.Operation != "" {
		greq.Endpoint = greq.System + "." + greq.Operation
	}

	cc := &callContext{
		in:        in,
		start:     in.now(),
		req:       greq,
		logger:    logger,
		normalize: d.normalize,
		cost:      d.cost,
	}
	if cc.normalize == nil {
		cc.normalize = genai.Normalize
	}
	if cc.cost == nil {
		cc.cost = DefaultCost
	}

	cc.ctx, cc.span = in.spans.Start(ctx, spanName(greq.Operation, greq.Model),
		semconv.GenAISystem.String(greq.System),
		semconv.GenAIOperationName.String(greq.Operation),
		semconv.GenAIRequestModel.String(greq.Model),
	)
	return cc
}

func spanName(operation, model string) string {
	return strings.TrimSpace(operation + " " + model)
}

func safeRequest[Req any](ctx context.Context, logger observe.Logger, toRequest func(Req) genai.Request, req Req) (out genai.Request) {
	if toRequest == nil {
		return genai.Request{}
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn(ctx, "request mapping panicked", observe.Field{Key: "panic", Value: fmt.Sprint(r)})
			out = genai.Request{}
		}
	}()
	return toRequest(req)
}

// invoke runs the original call. A panic ends the span in error state and is
// re-raised with its original value.
func invoke[T any](cc *callContext, call func() (T, error)) (T, error) {
	defer func() {
		if r := recover(); r != nil {
			cc.fail(&PanicError{Value: r})
			panic(r)
		}
	}()
	return call()
}

// fail ends the span in error state. Metrics are not recorded for failed
// calls.
func (cc *callContext) fail(err error) {
	defer cc.guard("fail")
	defer cc.span.End()

	cc.span.SetAttributes(semconv.GenAIClientDuration.Float64(cc.in.now().Sub(cc.start).Seconds()))
	cc.span.SetError(err)
}

// failStream ends a stream that broke mid-way. The partial result is still
// written to the span.
func (cc *callContext) failStream(res *genai.Result, err error) {
	defer cc.guard("fail_stream")
	defer cc.span.End()

	cc.span.SetAttributes(cc.normalize(cc.req, res, cc.in.env)...)
	cc.span.SetError(err)
}

// finalize writes the result onto the span, records metrics and ends the
// span, in that order.
func (cc *callContext) finalize(res *genai.Result) {
	defer cc.guard("finalize")
	defer cc.span.End()

	if res == nil {
		res = &genai.Result{}
	}

	table, err := refreshPricing(cc.ctx, cc.in.pricing)
	if err != nil {
		cc.logger.Debug(cc.ctx, "pricing unavailable", observe.Field{Key: "error", Value: err})
	}

	if estimable(cc.req.Operation) {
		genai.Estimate(cc.in.estimator, cc.req, res)
	}
	if res.Timing.Duration == 0 {
		res.Timing.Duration = cc.in.now().Sub(cc.start)
	}

	cost := cc.cost(cc.req, res, table)

	cc.span.SetAttributes(cc.normalize(cc.req, res, cc.in.env)...)
	if cost.Known {
		cc.span.SetAttributes(semconv.GenAIUsageCost.Float64(cost.Value))
	}

	cc.in.recorder.Record(cc.ctx, cc.span)

	cc.logger.Debug(cc.ctx, "genai call finalized",
		observe.Field{Key: "span", Value: cc.span.Name()},
		observe.Field{Key: "cost", Value: cost.String()},
		observe.Field{Key: "estimated", Value: res.Estimated},
	)
}

func refreshPricing(ctx context.Context, src PricingSource) (_ *pricing.Table, err error) {
	if src == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pricing source panicked: %v", r)
		}
	}()
	return src.Refresh(ctx)
}

// guard swallows telemetry panics. It must be deferred directly.
func (cc *callContext) guard(stage string) {
	if r := recover(); r != nil {
		cc.logger.Warn(cc.ctx, "telemetry panicked",
			observe.Field{Key: "stage", Value: stage},
			observe.Field{Key: "panic", Value: fmt.Sprint(r)},
		)
	}
}

func accumulate[C any](cc *callContext, s stream.Stream[C], merge stream.MergeFunc[C]) *stream.Accumulator[C] {
	return stream.NewAccumulator(s, stream.Hooks[C]{
		Merge:    merge,
		Finalize: cc.finalize,
		Fail:     cc.failStream,
		MergePanic: func(r any) {
			cc.logger.Warn(cc.ctx, "chunk merge panicked", observe.Field{Key: "panic", Value: fmt.Sprint(r)})
		},
		Start: cc.start,
		Now:   cc.in.now,
	})
}
