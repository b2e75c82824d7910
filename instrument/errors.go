package instrument

import (
	"errors"
	"fmt"
)

// ErrNilObserver indicates FromObserver was given a nil Observer.
var ErrNilObserver = errors.New("instrument: observer is nil")

// PanicError records a panic raised by a wrapped call. It is only used to
// annotate the span; the original value is re-panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorType implements the error.type classification hook.
func (e *PanicError) ErrorType() string { return "panic" }
