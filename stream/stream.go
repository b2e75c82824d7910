// Package stream proxies streamed provider responses while reconstructing a
// single finalized result from their chunks.
//
// A Stream is pull-driven: nothing advances until the consumer calls Recv.
// The Accumulator returned by NewAccumulator yields every chunk of the
// wrapped stream unchanged and in order, and finalizes exactly once when the
// stream reports io.EOF, fails, or is closed by the consumer. A consumer that
// neither exhausts nor closes the stream never triggers finalization.
package stream

import (
	"errors"
	"io"
	"iter"
	"sync"
)

// Stream is a pull-based sequence of chunks. Recv returns io.EOF once the
// sequence is exhausted. Close releases the underlying response and may be
// called at any time, including concurrently with a blocked Recv.
//
// The shape matches go-openai's *ChatCompletionStream.
type Stream[C any] interface {
	Recv() (C, error)
	Close() error
}

// All adapts s to a range-over-func sequence. A non-EOF error is yielded
// once and ends the sequence. The stream is closed when the loop ends,
// including when the consumer breaks out early.
func All[C any](s Stream[C]) iter.Seq2[C, error] {
	return func(yield func(C, error) bool) {
		defer func() { _ = s.Close() }()
		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(chunk, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Collect drains s and closes it. It returns the chunks received before the
// first non-EOF error, and that error.
func Collect[C any](s Stream[C]) ([]C, error) {
	var out []C
	for chunk, err := range All(s) {
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

// Slice returns an in-memory stream over chunks.
func Slice[C any](chunks ...C) Stream[C] {
	return &sliceStream[C]{items: chunks}
}

// SliceWithError returns an in-memory stream that yields chunks and then
// fails with err.
func SliceWithError[C any](err error, chunks ...C) Stream[C] {
	return &sliceStream[C]{items: chunks, err: err}
}

type sliceStream[C any] struct {
	mu     sync.Mutex
	items  []C
	next   int
	err    error
	closed bool
}

func (s *sliceStream[C]) Recv() (C, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero C
	if s.closed {
		return zero, io.EOF
	}
	if s.next < len(s.items) {
		c := s.items[s.next]
		s.next++
		return c, nil
	}
	if s.err != nil {
		return zero, s.err
	}
	return zero, io.EOF
}

func (s *sliceStream[C]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
