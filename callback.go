package reactorio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AcceptResult is what a [fut.Accept] future in the fut subpackage
// resolves with: the accepted connection and its peer's address, the
// same two values [AsyncAccept] passes to its callback.
type AcceptResult struct {
	Client  *Socket
	Address Address
}

func peerAddress(fd int) (Address, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return Address{}, Wrap(err, "getpeername")
	}
	return addressFromSockaddr(sa)
}

// AsyncAccept submits a non-blocking accept on listener, invoking cb
// exactly once with the accepted connection or an error. Grounded on
// 05-async-callback-echo-server.cpp's rio::as::accept: re-arming the
// next accept is the caller's responsibility, issued from inside cb.
func AsyncAccept(c *Context, listener *Socket, cb func(*Socket, Address, error)) uint64 {
	op := newOperation()
	op.kind = opAccept
	op.fd = listener.Fd()
	op.dispatch = func(n int, err error) {
		releaseOperation(op)
		if err != nil {
			cb(nil, Address{}, err)
			return
		}
		sock := &Socket{Handle: NewGenericHandle(n)}
		addr, aerr := peerAddress(n)
		if aerr != nil {
			cb(sock, Address{}, nil)
			return
		}
		cb(sock, addr, nil)
	}
	return c.submit(op)
}

// AsyncRead submits a non-blocking read of len(buf) bytes from r into
// buf, invoking cb exactly once with the byte count or an error. A
// 0-byte, nil-error result means the peer closed its write side.
func AsyncRead(c *Context, r Reader, buf []byte, cb func(int, error)) uint64 {
	op := newOperation()
	op.kind = opRead
	op.fd = r.Fd()
	op.buf = buf
	op.dispatch = func(n int, err error) {
		releaseOperation(op)
		cb(n, err)
	}
	return c.submit(op)
}

// AsyncWrite submits a non-blocking write of buf to w, invoking cb
// exactly once with the byte count written or an error. Short writes
// are reported as-is; loop or use sync.WriteAll for WriteAll semantics.
func AsyncWrite(c *Context, w Writer, buf []byte, cb func(int, error)) uint64 {
	op := newOperation()
	op.kind = opWrite
	op.fd = w.Fd()
	op.buf = buf
	op.dispatch = func(n int, err error) {
		releaseOperation(op)
		cb(n, err)
	}
	return c.submit(op)
}

// AsyncConnect issues a non-blocking connect(2) to addr and invokes cb
// once the connection succeeds or fails. If the connect completes
// synchronously (rare but possible for loopback addresses) cb runs
// before AsyncConnect returns.
func AsyncConnect(c *Context, addr Address, cb func(*Socket, error)) uint64 {
	sock, err := OpenSocket(SocketOptions{Family: addr.Family, NonBlocking: true})
	if err != nil {
		cb(nil, err)
		return 0
	}

	_, sa, err := addr.sockaddr()
	if err != nil {
		_ = sock.Close()
		cb(nil, err)
		return 0
	}

	connErr := unix.Connect(sock.Fd(), sa)
	switch connErr {
	case nil:
		cb(sock, nil)
		return 0
	case unix.EINPROGRESS, unix.EALREADY, unix.EAGAIN:
		op := newOperation()
		op.kind = opConnect
		op.fd = sock.Fd()
		op.dispatch = func(_ int, err error) {
			releaseOperation(op)
			if err == nil {
				err = socketError(sock.Fd())
			}
			if err != nil {
				_ = sock.Close()
				cb(nil, err)
				return
			}
			cb(sock, nil)
		}
		return c.submit(op)
	default:
		_ = sock.Close()
		cb(nil, Wrap(connErr, fmt.Sprintf("connect %s", addr)))
		return 0
	}
}

// Cancel asks the backend to cancel an in-flight operation it no longer
// needs a result from (e.g. a listener being torn down mid-accept).
// token is whatever the submitting call recorded; cancellation is
// best-effort; the operation's callback still runs exactly once, either
// with CategoryCancelled or with whatever real result arrives if the
// cancel loses the race.
func (c *Context) Cancel(token uint64) {
	op, ok := c.ops.lookup(token)
	if !ok {
		return
	}
	op.cancelled = true
	c.backend.Cancel(op)
}
