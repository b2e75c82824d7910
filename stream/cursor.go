package stream

import "io"

// Cursor is the iteration shape of the SSE streams returned by the official
// OpenAI and Anthropic SDKs (ssestream.Stream). Errors, including a failure
// to open the stream, are held by the cursor and reported by Err.
type Cursor[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// FromCursor adapts c to Stream. Recv returns io.EOF once c is exhausted
// without error. No lock is held across Next, so Close may be called while a
// Recv is blocked on the network; closing the underlying response unblocks it.
func FromCursor[T any](c Cursor[T]) Stream[T] {
	return &cursorStream[T]{c: c}
}

type cursorStream[T any] struct {
	c Cursor[T]
}

func (s *cursorStream[T]) Recv() (T, error) {
	if s.c.Next() {
		return s.c.Current(), nil
	}
	var zero T
	if err := s.c.Err(); err != nil {
		return zero, err
	}
	return zero, io.EOF
}

func (s *cursorStream[T]) Close() error {
	return s.c.Close()
}
