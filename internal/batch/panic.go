package batch

import (
	"context"
	"fmt"
	"runtime/debug"
)

// PanicError is returned for an item whose function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func safeCall(ctx context.Context, id string, fn func(ctx context.Context, id string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, id)
}
