package instrument

import (
	"context"
	"fmt"

	"github.com/openlit/openlit-sub000/genai"
	"github.com/openlit/openlit-sub000/observe"
	"github.com/openlit/openlit-sub000/stream"
)

// Wrap returns a replacement for fn that records one span per call.
//
// The response and error of fn are returned unchanged. On error the span is
// marked failed and ended and no metrics are recorded. A panic in fn ends
// the span and is re-raised with the same value. A nil Instrumentor
// returns fn itself.
func Wrap[Req, Resp any](in *Instrumentor, op Operation[Req, Resp], fn CallFunc[Req, Resp]) CallFunc[Req, Resp] {
	if in == nil || fn == nil {
		return fn
	}
	d := descriptor{system: op.System, operation: op.Name, normalize: op.Normalize, cost: op.Cost}

	return func(ctx context.Context, req Req) (Resp, error) {
		cc := begin(ctx, in, d, op.Request, req)

		resp, err := invoke(cc, func() (Resp, error) { return fn(cc.ctx, req) })
		if err != nil {
			cc.fail(err)
			return resp, err
		}

		cc.finalize(buildResult(cc, op.Result, resp))
		return resp, nil
	}
}

// WrapStream returns a replacement for fn whose stream is proxied through a
// stream.Accumulator.
//
// The span stays open after the replacement returns and is ended when the
// caller exhausts the stream, closes it, or the stream fails. A stream that
// is neither exhausted nor closed leaves its span open.
func WrapStream[Req, C any](in *Instrumentor, op StreamOperation[Req, C], fn StreamFunc[Req, C]) StreamFunc[Req, C] {
	if in == nil || fn == nil {
		return fn
	}
	d := descriptor{system: op.System, operation: op.Name, normalize: op.Normalize, cost: op.Cost}

	return func(ctx context.Context, req Req) (stream.Stream[C], error) {
		cc := begin(ctx, in, d, op.Request, req)
		cc.req.Stream = true

		s, err := invoke(cc, func() (stream.Stream[C], error) { return fn(cc.ctx, req) })
		if err != nil {
			cc.fail(err)
			return s, err
		}
		if s == nil {
			cc.finalize(&genai.Result{})
			return s, nil
		}
		return accumulate(cc, s, op.Merge), nil
	}
}

// WrapAuto returns a replacement for a call whose result is sometimes a
// stream. A result that implements stream.Stream[C] is proxied like
// WrapStream; anything else is finalized like Wrap. The result is never
// consumed to decide.
//
// Resp must be an interface type that *stream.Accumulator[C] satisfies (for
// example any or stream.Stream[C]); otherwise stream results are returned
// unwrapped and finalized immediately without chunk data.
func WrapAuto[Req, Resp, C any](in *Instrumentor, op Operation[Req, Resp], merge stream.MergeFunc[C], fn CallFunc[Req, Resp]) CallFunc[Req, Resp] {
	if in == nil || fn == nil {
		return fn
	}
	d := descriptor{system: op.System, operation: op.Name, normalize: op.Normalize, cost: op.Cost}

	return func(ctx context.Context, req Req) (Resp, error) {
		cc := begin(ctx, in, d, op.Request, req)

		resp, err := invoke(cc, func() (Resp, error) { return fn(cc.ctx, req) })
		if err != nil {
			cc.fail(err)
			return resp, err
		}

		if s, ok := any(resp).(stream.Stream[C]); ok && s != nil {
			cc.req.Stream = true
			acc := accumulate(cc, s, merge)
			if wrapped, ok := any(acc).(Resp); ok {
				return wrapped, nil
			}
			cc.logger.Warn(cc.ctx, "stream result cannot be proxied through its declared type",
				observe.Field{Key: "type", Value: fmt.Sprintf("%T", resp)},
			)
			cc.finalize(&genai.Result{})
			return resp, nil
		}

		cc.finalize(buildResult(cc, op.Result, resp))
		return resp, nil
	}
}

func buildResult[Resp any](cc *callContext, build func(Resp) *genai.Result, resp Resp) (res *genai.Result) {
	if build == nil {
		return &genai.Result{}
	}
	defer func() {
		if r := recover(); r != nil {
			cc.logger.Warn(cc.ctx, "result mapping panicked", observe.Field{Key: "panic", Value: fmt.Sprint(r)})
			res = &genai.Result{}
		}
	}()
	return build(resp)
}
