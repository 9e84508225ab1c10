// Package errors provides the structured error taxonomy for the insert-path
// writer: every failure the writer can surface to a caller carries one of a
// fixed set of Kinds plus enough context to diagnose it without a debugger.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Kind classifies a WriterError for caller-side handling, matching the
// taxonomy in the writer's error handling design: TooManyParts,
// LogicalError, ReservationFailure, IOError, SchemaMismatch.
type Kind string

const (
	// KindTooManyParts: partition cardinality in one batch exceeded max_parts.
	KindTooManyParts Kind = "TOO_MANY_PARTS"
	// KindLogicalError: an internal invariant was violated; programmer error.
	KindLogicalError Kind = "LOGICAL_ERROR"
	// KindReservationFailure: the storage policy could not satisfy the
	// expected byte size on any volume.
	KindReservationFailure Kind = "RESERVATION_FAILURE"
	// KindIOError: a directory create, write, or fsync failed.
	KindIOError Kind = "IO_ERROR"
	// KindSchemaMismatch: the input block failed metadata.check.
	KindSchemaMismatch Kind = "SCHEMA_MISMATCH"
)

// Retryable reports whether the caller can reasonably retry after this
// Kind without changing anything about the input. TooManyParts and
// SchemaMismatch require a different input or schema; LogicalError
// indicates a bug; ReservationFailure and IOError may clear on retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindReservationFailure, KindIOError:
		return true
	default:
		return false
	}
}

// Context carries diagnostic metadata alongside a WriterError.
type Context struct {
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// WriterError is the concrete error type returned across the insert path.
type WriterError struct {
	Kind    Kind
	Err     error
	Context Context
}

func (e *WriterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s:%s] %s", e.Context.Component, e.Context.Operation, e.Kind)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Context.Component, e.Context.Operation, e.Kind, e.Err.Error())
}

func (e *WriterError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller can reasonably retry.
func (e *WriterError) Retryable() bool {
	return e.Kind.Retryable()
}

// New creates a WriterError with a captured stack trace.
func New(kind Kind, component, operation string, err error) *WriterError {
	return &WriterError{
		Kind: kind,
		Err:  err,
		Context: Context{
			Component:  component,
			Operation:  operation,
			Timestamp:  time.Now(),
			StackTrace: captureStack(),
		},
	}
}

// WithMetadata attaches a diagnostic key/value pair and returns the
// receiver for chaining, matching the WithMetadata convention the rest of
// the module uses on enhanced errors.
func (e *WriterError) WithMetadata(key string, value interface{}) *WriterError {
	if e.Context.Metadata == nil {
		e.Context.Metadata = make(map[string]interface{})
	}
	e.Context.Metadata[key] = value
	return e
}

// TooManyParts builds the error raised the moment the (max_parts+1)-th
// distinct partition tuple is discovered.
func TooManyParts(component string, maxParts, discovered int) *WriterError {
	err := fmt.Errorf("partition count %d exceeds max_parts %d", discovered, maxParts)
	return New(KindTooManyParts, component, "scatter", err).
		WithMetadata("max_parts", maxParts).
		WithMetadata("discovered", discovered)
}

// Logical builds a LogicalError for an internal invariant violation.
func Logical(component, operation string, err error) *WriterError {
	return New(KindLogicalError, component, operation, err)
}

// Reservation builds a ReservationFailure error.
func Reservation(component, operation string, err error) *WriterError {
	return New(KindReservationFailure, component, operation, err)
}

// IO builds an IOError.
func IO(component, operation string, err error) *WriterError {
	return New(KindIOError, component, operation, err)
}

// SchemaMismatch builds a SchemaMismatch error.
func SchemaMismatch(component, operation string, err error) *WriterError {
	return New(KindSchemaMismatch, component, operation, err)
}

// Is reports whether err is a *WriterError of the given Kind.
func Is(err error, kind Kind) bool {
	we, ok := AsWriterError(err)
	return ok && we.Kind == kind
}

// AsWriterError unwraps err looking for a *WriterError.
func AsWriterError(err error) (*WriterError, bool) {
	for err != nil {
		if we, ok := err.(*WriterError); ok {
			return we, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
