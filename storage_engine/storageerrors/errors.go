// Package storageerrors defines the typed error kinds every coordinator,
// block device, and free-space-map operation surfaces to callers, per the
// engine's error-handling design: a numeric kind plus a human-readable
// message, with the underlying cause (an I/O error, a checksum mismatch)
// preserved for diagnostics via github.com/pkg/errors.
package storageerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error categories callers can distinguish against.
type Kind int

const (
	// Internal is an unexpected I/O error with an underlying cause.
	Internal Kind = iota
	// InvalidArgument covers a null buffer, zero size, or an oversized tuple.
	InvalidArgument
	// NotFound means the tuple-id names a non-existent or deleted slot.
	NotFound
	// Corruption means a checksum mismatch was detected on read.
	Corruption
	// Exhausted means a new page could not be allocated (e.g. disk full).
	Exhausted
	// Conflict is reserved for future transactional semantics; unused today.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case Corruption:
		return "Corruption"
	case Exhausted:
		return "Exhausted"
	case Conflict:
		return "Conflict"
	default:
		return "Internal"
	}
}

// StorageError is the concrete error type returned by this engine's public
// operations. Use Is/As the usual Go way, or compare Kind directly.
type StorageError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *StorageError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.cause
}

// New creates a StorageError with no wrapped cause.
func New(kind Kind, message string) *StorageError {
	return &StorageError{Kind: kind, Message: message}
}

// Newf is the formatted form of New.
func Newf(kind Kind, format string, args ...interface{}) *StorageError {
	return &StorageError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to a lower-level cause, preserving it via
// errors.Cause/errors.Unwrap for logging and tests.
func Wrap(kind Kind, cause error, message string) *StorageError {
	return &StorageError{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

// Wrapf is the formatted form of Wrap.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *StorageError {
	return &StorageError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *StorageError; otherwise it reports Internal.
func KindOf(err error) Kind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
