package reactorio

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// invalidFd is the sentinel value of a [Handle] that owns no descriptor.
const invalidFd = -1

// Handle is an owning wrapper around a numeric OS descriptor. It is
// non-copyable by convention: callers pass *Handle (or an embedding
// struct) around, never a dereferenced copy. Closing is idempotent and
// safe to call more than once, including concurrently with itself.
type Handle struct {
	fd     int32
	closed atomic.Bool
}

// NewGenericHandle wraps an already-open descriptor (stdin/stdout/stderr,
// a pipe end, ...) for use with the callback surface and synchronous
// helpers.
func NewGenericHandle(fd int) *Handle {
	return &Handle{fd: int32(fd)}
}

// Fd returns the underlying descriptor, or invalidFd if the handle has
// been closed or was never valid.
func (h *Handle) Fd() int {
	if h == nil || h.closed.Load() {
		return invalidFd
	}
	return int(h.fd)
}

// Valid reports whether this handle currently owns a live descriptor.
func (h *Handle) Valid() bool {
	return h != nil && !h.closed.Load() && h.fd != invalidFd
}

// Close releases the descriptor. The underlying close(2) is issued at
// most once, even under concurrent or repeated calls.
func (h *Handle) Close() error {
	fd, ok := h.markClosed()
	if !ok {
		return nil
	}
	return unix.Close(fd)
}

// markClosed atomically claims the right to close h's descriptor,
// returning it and true on the first call, or (_, false) on any later
// call. Shared by Close (which finishes with a synchronous close(2))
// and closeAsync (which hands the fd off to a backend's own close
// primitive instead).
func (h *Handle) markClosed() (int, bool) {
	if h == nil || !h.closed.CompareAndSwap(false, true) {
		return invalidFd, false
	}
	if h.fd == invalidFd {
		return invalidFd, false
	}
	return int(h.fd), true
}

// closeAsync claims h the same way Close does, but leaves the actual
// close(2) to the caller instead of issuing it synchronously. Used by
// [Context.Kill], which routes the close through a backend's own
// operation/dispatch path instead.
func (h *Handle) closeAsync() (int, bool) {
	return h.markClosed()
}
