package migrate

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// PanicError is a panic caught at a per-item boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// StackError is an error returned across a per-item boundary together with
// the stack of that boundary.
type StackError struct {
	Err   error
	Stack []byte
}

func (e *StackError) Error() string {
	return e.Err.Error()
}

func (e *StackError) Unwrap() error {
	return e.Err
}

// protect runs fn, turning a panic into a *PanicError and attaching the
// current stack to a returned error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	if err = fn(); err != nil {
		return &StackError{Err: err, Stack: debug.Stack()}
	}
	return nil
}

// errorReport is the telemetry text of err: the message followed by the
// stack captured for it. A panic's own stack wins over a boundary stack.
func errorReport(err error) string {
	var p *PanicError
	if errors.As(err, &p) {
		return p.Error() + "\n" + string(p.Stack)
	}
	var s *StackError
	if errors.As(err, &s) {
		return err.Error() + "\n" + string(s.Stack)
	}
	return err.Error()
}
