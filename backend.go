package reactorio

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// BackendKind distinguishes the two I/O engines a [Context] can run on.
type BackendKind int

const (
	// ReadinessEngine is the epoll-based fallback backend.
	ReadinessEngine BackendKind = iota
	// CompletionEngine is the io_uring-based primary backend.
	CompletionEngine
)

func (k BackendKind) String() string {
	if k == CompletionEngine {
		return "io_uring"
	}
	return "epoll"
}

// Backend is the reactor's pluggable I/O engine. A completion-based
// backend (io_uring) and a readiness-based backend (epoll) both
// implement it; a [Context] only ever talks to this interface.
type Backend interface {
	Kind() BackendKind
	// Submit registers op for execution. For the completion engine this
	// pushes an SQE; for the readiness engine this arms interest on
	// op.fd and defers the actual syscall until the fd is ready.
	Submit(op *operation) error
	// Wait blocks for at most timeout waiting for at least one op to
	// complete, invoking each ready op's dispatch closure before
	// returning. timeout == 0 means return immediately if nothing is
	// ready; a negative timeout waits without bound.
	Wait(timeout time.Duration) error
	// Wake interrupts a concurrent Wait call from another goroutine.
	Wake() error
	// Cancel asks the backend to stop op before it would otherwise
	// complete, dispatching it with a CategoryCancelled error. Best
	// effort: op may already be completing concurrently, in which case
	// its real result wins the race instead.
	Cancel(op *operation)
	Close() error
}

// newBackend probes for io_uring support and falls back to epoll when
// the kernel or sandbox refuses it (ENOSYS/EPERM/EINVAL): a completion-based
// primary backend with a readiness-based fallback.
func newBackend() (Backend, error) {
	uring, err := newUringBackend(defaultUringEntries)
	if err == nil {
		return uring, nil
	}
	if !isUnsupported(err) {
		return nil, err
	}
	return newEpollBackend()
}

func isUnsupported(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EINVAL)
}
