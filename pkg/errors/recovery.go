package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PanicError is a panic recovered from a numeric or graph routine. gonum
// panics on malformed input (zero-length matrices, dimension mismatches,
// self edges), and the pipeline reports those as ordinary errors.
type PanicError struct {
	// Operation names the call that panicked.
	Operation string
	// PanicValue is the value passed to panic.
	PanicValue interface{}
	// StackTrace is the goroutine stack at recovery time.
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("celltypist: panic in %s: %v", e.Operation, e.PanicValue)
}

// String includes the recovered stack.
func (e *PanicError) String() string {
	return e.Error() + "\nstack trace:\n" + e.StackTrace
}

// MarshalZerologObject adds the structured fields to a zerolog event.
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Str("panic", fmt.Sprint(e.PanicValue)).
		Str("type", "PanicError")
}

// NewPanicError captures the current stack for a recovered panic value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		Operation:  operation,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
	}
}

// Recover turns a panic into an error stored in *err. It must be deferred
// directly:
//
//	func build() (err error) {
//	    defer errors.Recover(&err, "pca")
//	    ...
//	}
//
// An error already held in *err is kept as the cause.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = errors.Wrapf(*err, "panic in %s: %v", operation, r)
		return
	}
	*err = NewPanicError(operation, r)
}

// SafeExecute runs fn and converts a panic inside it into a *PanicError.
//
//	err := errors.SafeExecute("louvain modularization", func() error {
//	    reduced = community.Modularize(g, resolution, src)
//	    return nil
//	})
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
