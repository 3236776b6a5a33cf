package renderer

import (
	"errors"
	"fmt"
)

var (
	ErrDisposed       = errors.New("studio disposed")
	ErrNoPathTracer   = errors.New("no path tracer configured")
	ErrNotInitialized = errors.New("studio not initialized")
)

// PathTracerFault wraps a failure raised by the path tracer while ingesting
// the mirror or accumulating samples. Op is "ingest" or "sample".
type PathTracerFault struct {
	Op  string
	Err error
}

func (e *PathTracerFault) Error() string {
	return fmt.Sprintf("path tracer %s: %v", e.Op, e.Err)
}

func (e *PathTracerFault) Unwrap() error { return e.Err }

// ResourceDisposalError reports a resource that failed to release during
// teardown. It is logged, never returned from Dispose.
type ResourceDisposalError struct {
	Resource string
	Err      error
}

func (e *ResourceDisposalError) Error() string {
	return fmt.Sprintf("dispose %s: %v", e.Resource, e.Err)
}

func (e *ResourceDisposalError) Unwrap() error { return e.Err }

// recoverFault runs fn and turns a panic into an error.
func recoverFault(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", e)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
