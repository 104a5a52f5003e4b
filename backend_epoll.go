package reactorio

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend is the readiness-based fallback [Backend], grounded
// directly on poller_epoll.go's EpollPoller: one epoll instance, one
// eventfd waker, edge-triggered interest per fd.
type epollBackend struct {
	epfd    int
	wakerFd int
	events  []unix.EpollEvent
	pending map[int][]*operation
}

func newEpollBackend() (*epollBackend, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, Wrap(err, "epoll_create1")
	}

	wakerFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, Wrap(err, "eventfd")
	}
	wakerEvent := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakerFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakerFd, &wakerEvent); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakerFd)
		return nil, Wrap(err, "epoll_ctl waker")
	}

	return &epollBackend{
		epfd:    epfd,
		wakerFd: wakerFd,
		events:  make([]unix.EpollEvent, 64),
		pending: make(map[int][]*operation),
	}, nil
}

func (b *epollBackend) Kind() BackendKind { return ReadinessEngine }

func (b *epollBackend) Submit(op *operation) error {
	if op.kind == opTimer {
		return nil
	}
	if op.kind == opClose {
		// The readiness backend has no async close primitive; close(2)
		// is cheap enough to issue inline rather than deferring it.
		err := unix.Close(op.fd)
		if err != nil {
			op.dispatch(0, Wrap(err, "close"))
		} else {
			op.dispatch(0, nil)
		}
		return nil
	}

	ops, subscribed := b.pending[op.fd]
	b.pending[op.fd] = append(ops, op)
	if subscribed {
		return nil
	}

	event := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLPRI | unix.EPOLLET,
		Fd:     int32(op.fd),
	}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, op.fd, &event); err != nil {
		delete(b.pending, op.fd)
		return Wrap(err, "epoll_ctl add")
	}
	return nil
}

// Wait polls for readiness and drives every pending operation on each
// ready fd to completion or EAGAIN, matching the naive connect/read
// retry loop poller_epoll.go's dialSingle performs inline.
func (b *epollBackend) Wait(timeout time.Duration) error {
	n, err := unix.EpollWait(b.epfd, b.events, epollMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return Wrap(err, "epoll_wait")
	}

	for i := 0; i < n; i++ {
		fd := int(b.events[i].Fd)
		if fd == b.wakerFd {
			b.drainWaker()
			continue
		}
		b.service(fd)
	}
	return nil
}

func epollMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	return int(timeout.Milliseconds())
}

func (b *epollBackend) drainWaker() {
	buf := make([]byte, 8)
	_, _ = unix.Read(b.wakerFd, buf)
}

func (b *epollBackend) service(fd int) {
	ops := b.pending[fd]
	remaining := ops[:0]
	for _, op := range ops {
		if op.cancelled {
			op.dispatch(0, NewError(CategoryCancelled, "operation cancelled"))
			continue
		}
		if b.attempt(op) {
			continue
		}
		remaining = append(remaining, op)
	}
	if len(remaining) == 0 {
		delete(b.pending, fd)
		_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		return
	}
	b.pending[fd] = remaining
}

// Cancel drops op from its fd's pending set (tearing down epoll
// interest if nothing else is waiting on that fd) and dispatches it
// immediately with CategoryCancelled, since the readiness backend has
// no separate async cancel primitive to race against.
func (b *epollBackend) Cancel(op *operation) {
	ops, ok := b.pending[op.fd]
	if !ok {
		return
	}

	remaining := ops[:0]
	found := false
	for _, pending := range ops {
		if pending == op {
			found = true
			continue
		}
		remaining = append(remaining, pending)
	}
	if !found {
		return
	}

	if len(remaining) == 0 {
		delete(b.pending, op.fd)
		_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, op.fd, nil)
	} else {
		b.pending[op.fd] = remaining
	}

	op.cancelled = true
	op.dispatch(0, NewError(CategoryCancelled, "operation cancelled"))
}

// attempt tries to service op's syscall once, returning true if it
// completed (successfully or with a non-EAGAIN error).
func (b *epollBackend) attempt(op *operation) bool {
	switch op.kind {
	case opAccept:
		fd, _, err := unix.Accept4(op.fd, unix.SOCK_NONBLOCK)
		if err == unix.EAGAIN {
			return false
		}
		if err != nil {
			op.dispatch(0, Wrap(err, "accept"))
			return true
		}
		op.dispatch(fd, nil)
		return true
	case opRead:
		n, err := unix.Read(op.fd, op.buf)
		if err == unix.EAGAIN {
			return false
		}
		if err != nil {
			op.dispatch(0, Wrap(err, "read"))
			return true
		}
		op.dispatch(n, nil)
		return true
	case opWrite:
		n, err := unix.Write(op.fd, op.buf)
		if err == unix.EAGAIN {
			return false
		}
		if err != nil {
			op.dispatch(0, Wrap(err, "write"))
			return true
		}
		op.dispatch(n, nil)
		return true
	case opConnect:
		if serr := socketError(op.fd); serr != nil {
			op.dispatch(0, serr)
			return true
		}
		op.dispatch(0, nil)
		return true
	default:
		return true
	}
}

func (b *epollBackend) Wake() error {
	buf := make([]byte, 8)
	buf[0] = 1
	_, err := unix.Write(b.wakerFd, buf)
	if err != nil {
		return Wrap(err, "eventfd write")
	}
	return nil
}

func (b *epollBackend) Close() error {
	_ = unix.Close(b.wakerFd)
	return unix.Close(b.epfd)
}
