package reactorio

import (
	"errors"
	"fmt"
	"syscall"
)

// Category is a portable classification for an [Error], independent of the
// originating backend (io_uring result codes and epoll/errno results both
// collapse into the same set).
type Category int

const (
	// CategoryIO is the catch-all category for an OS error that doesn't
	// map to any of the more specific categories below.
	CategoryIO Category = iota
	CategoryWouldBlock
	CategoryTimedOut
	CategoryCancelled
	CategoryInterrupted
	CategoryConnectionAborted
	CategoryNotFound
	CategoryPermissionDenied
	CategoryAlreadyExists
	CategoryInvalidArgument
	CategoryResourceExhausted
)

func (c Category) String() string {
	switch c {
	case CategoryWouldBlock:
		return "would_block"
	case CategoryTimedOut:
		return "timed_out"
	case CategoryCancelled:
		return "operation_cancelled"
	case CategoryInterrupted:
		return "interrupted"
	case CategoryConnectionAborted:
		return "connection_aborted"
	case CategoryNotFound:
		return "not_found"
	case CategoryPermissionDenied:
		return "permission_denied"
	case CategoryAlreadyExists:
		return "already_exists"
	case CategoryInvalidArgument:
		return "invalid_argument"
	case CategoryResourceExhausted:
		return "resource_exhausted"
	default:
		return "io"
	}
}

// Error is a small tagged error carrying a portable [Category] plus a
// human-readable context string. It composes with errors.Is/errors.As
// through Unwrap.
type Error struct {
	Category Category
	Context  string
	cause    error
}

// NewError constructs an Error from a portable category and a context
// message, with no underlying cause.
func NewError(cat Category, context string) *Error {
	return &Error{Category: cat, Context: context}
}

// Wrap amplifies err with a context message, preserving err's Category if
// err is itself an *Error (or wraps one), classifying it by errno if err
// is (or wraps) a syscall.Errno, and defaulting to CategoryIO otherwise.
func Wrap(err error, context string) *Error {
	if err == nil {
		return nil
	}
	cat := CategoryIO
	var asErr *Error
	var errno syscall.Errno
	switch {
	case errors.As(err, &asErr):
		cat = asErr.Category
	case errors.As(err, &errno):
		cat = categoryForErrno(errno)
	}
	return &Error{Category: cat, Context: context, cause: err}
}

// FromErrno classifies a raw syscall.Errno into a portable Error.
func FromErrno(errno syscall.Errno) *Error {
	cat := categoryForErrno(errno)
	return &Error{Category: cat, Context: errno.Error(), cause: errno}
}

func categoryForErrno(errno syscall.Errno) Category {
	switch errno {
	case syscall.EAGAIN:
		return CategoryWouldBlock
	case syscall.ETIMEDOUT:
		return CategoryTimedOut
	case syscall.ECANCELED:
		return CategoryCancelled
	case syscall.EINTR:
		return CategoryInterrupted
	case syscall.ECONNABORTED, syscall.ECONNRESET, syscall.EPIPE:
		return CategoryConnectionAborted
	case syscall.ENOENT:
		return CategoryNotFound
	case syscall.EACCES, syscall.EPERM:
		return CategoryPermissionDenied
	case syscall.EEXIST:
		return CategoryAlreadyExists
	case syscall.EINVAL, syscall.EAFNOSUPPORT:
		return CategoryInvalidArgument
	case syscall.EMFILE, syscall.ENFILE, syscall.ENOMEM:
		return CategoryResourceExhausted
	default:
		return CategoryIO
	}
}

// Error implements the error interface, formatting as "[<category>]: <context>",
// followed by ": <cause>" when a wrapped cause reads differently from the context.
func (e *Error) Error() string {
	if e.cause != nil && e.cause.Error() != e.Context {
		return fmt.Sprintf("[%s]: %s: %s", e.Category, e.Context, e.cause)
	}
	return fmt.Sprintf("[%s]: %s", e.Category, e.Context)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Category, so that
// errors.Is(err, NewError(CategoryWouldBlock, "")) works as a category test.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Category == other.Category
	}
	return false
}

// AndThen chains a fallible continuation onto a (value, error) result,
// short-circuiting on error. It is the Go-idiomatic stand-in for the
// monadic Result::and_then the original design assumes.
func AndThen[T, U any](value T, err error, f func(T) (U, error)) (U, error) {
	if err != nil {
		var zero U
		return zero, err
	}
	return f(value)
}

// OrElse substitutes a fallback (value, error) pair when err is non-nil.
func OrElse[T any](value T, err error, f func(error) (T, error)) (T, error) {
	if err != nil {
		return f(err)
	}
	return value, nil
}

// ValueOr returns value if err is nil, otherwise the given default.
func ValueOr[T any](value T, err error, def T) T {
	if err != nil {
		return def
	}
	return value
}
