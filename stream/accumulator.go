package stream

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/openlit/openlit-sub000/genai"
)

// MergeFunc folds one provider chunk into the in-progress result.
type MergeFunc[C any] func(res *genai.Result, chunk C)

// Hooks configures an Accumulator.
type Hooks[C any] struct {
	// Merge folds each chunk into the result. A panicking Merge is recovered;
	// the chunk is still passed through.
	Merge MergeFunc[C]

	// Finalize runs once when the stream is exhausted or closed.
	Finalize func(res *genai.Result)

	// Fail runs once, instead of Finalize, when the stream fails with a
	// non-EOF error.
	Fail func(res *genai.Result, err error)

	// MergePanic observes values recovered from Merge.
	MergePanic func(recovered any)

	// Start is the call start time used for TTFT. Default: creation time.
	Start time.Time

	// Now overrides the clock.
	Now func() time.Time
}

// Accumulator proxies a Stream and builds a genai.Result from its chunks.
//
// Contract:
// - Fidelity: Recv returns exactly what the wrapped stream returns.
// - Finalization: Finalize or Fail runs exactly once.
// - Concurrency: Close may race with Recv.
type Accumulator[C any] struct {
	inner Stream[C]
	hooks Hooks[C]
	now   func() time.Time
	start time.Time

	mu       sync.Mutex
	result   *genai.Result
	arrivals []time.Time
	done     bool

	once sync.Once
}

// NewAccumulator wraps inner.
func NewAccumulator[C any](inner Stream[C], hooks Hooks[C]) *Accumulator[C] {
	now := hooks.Now
	if now == nil {
		now = time.Now
	}
	start := hooks.Start
	if start.IsZero() {
		start = now()
	}
	return &Accumulator[C]{
		inner:  inner,
		hooks:  hooks,
		now:    now,
		start:  start,
		result: &genai.Result{},
	}
}

// Recv implements Stream.
func (a *Accumulator[C]) Recv() (C, error) {
	chunk, err := a.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			a.finish(nil)
		} else {
			a.finish(err)
		}
		return chunk, err
	}

	arrived := a.now()
	a.mu.Lock()
	if !a.done {
		a.arrivals = append(a.arrivals, arrived)
		a.merge(chunk)
	}
	a.mu.Unlock()

	return chunk, nil
}

// Close implements Stream. Closing before exhaustion finalizes with the
// chunks seen so far.
func (a *Accumulator[C]) Close() error {
	err := a.inner.Close()
	a.finish(nil)
	return err
}

// Finished reports whether finalization has run.
func (a *Accumulator[C]) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// merge runs the merge hook under a.mu.
func (a *Accumulator[C]) merge(chunk C) {
	if a.hooks.Merge == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && a.hooks.MergePanic != nil {
			a.hooks.MergePanic(r)
		}
	}()
	a.hooks.Merge(a.result, chunk)
}

func (a *Accumulator[C]) finish(err error) {
	a.once.Do(func() {
		a.mu.Lock()
		a.done = true
		a.result.Timing = Timing(a.start, a.arrivals, a.now())
		res := a.result
		a.mu.Unlock()

		if err != nil {
			if a.hooks.Fail != nil {
				a.hooks.Fail(res, err)
			}
			return
		}
		if a.hooks.Finalize != nil {
			a.hooks.Finalize(res)
		}
	})
}

// Timing derives call timing from the call start, chunk arrival times and
// the end time. TTFT is set from one chunk on, TBT (the mean gap between
// successive chunks) from two.
func Timing(start time.Time, arrivals []time.Time, end time.Time) genai.Timing {
	t := genai.Timing{
		Duration: end.Sub(start),
		Chunks:   len(arrivals),
	}
	if n := len(arrivals); n >= 1 {
		t.TTFT = arrivals[0].Sub(start)
		if n >= 2 {
			t.TBT = arrivals[n-1].Sub(arrivals[0]) / time.Duration(n-1)
		}
	}
	return t
}

var _ Stream[int] = (*Accumulator[int])(nil)
