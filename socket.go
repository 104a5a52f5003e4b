package reactorio

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// Reader is satisfied by any [Handle]-backed type the callback surface
// and synchronous helpers can read from.
type Reader interface {
	Fd() int
	Read(p []byte) (int, error)
}

// Writer is the write-side counterpart of [Reader].
type Writer interface {
	Fd() int
	Write(p []byte) (int, error)
}

// SocketOptions configures [OpenSocket] and [OpenAndListen].
type SocketOptions struct {
	Family      AddressFamily
	NonBlocking bool
	ReuseAddr   bool
	Backlog     int
}

// DefaultSocketOptions returns the options used when none are supplied:
// IPv4, non-blocking, SO_REUSEADDR, and a backlog of 128.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{
		Family:      IPv4,
		NonBlocking: true,
		ReuseAddr:   true,
		Backlog:     128,
	}
}

// Socket is a TCP [Handle] tracking whatever listen/accept state the OS
// socket itself carries.
type Socket struct {
	*Handle
}

func domainFor(family AddressFamily) int {
	if family == IPv6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// OpenSocket creates a bare, unconnected, unbound TCP socket with the
// given options.
func OpenSocket(opts SocketOptions) (*Socket, error) {
	sockType := unix.SOCK_STREAM
	if opts.NonBlocking {
		sockType |= unix.SOCK_NONBLOCK
	}

	fd, err := unix.Socket(domainFor(opts.Family), sockType, 0)
	if err != nil {
		return nil, Wrap(err, "socket")
	}
	if opts.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			_ = unix.Close(fd)
			return nil, Wrap(err, "setsockopt SO_REUSEADDR")
		}
	}
	return &Socket{Handle: NewGenericHandle(fd)}, nil
}

// OpenAndListen binds host (a literal address, "0.0.0.0"/"::" for "any",
// or "localhost") on port and starts listening. port == 0 asks the
// kernel for an ephemeral port; the returned Address reflects the
// actually-bound port. Bind-then-listen is implied: there is no separate
// bind/listen step in this constructor.
func OpenAndListen(host string, port int, opts ...SocketOptions) (*Socket, Address, error) {
	o := DefaultSocketOptions()
	if len(opts) > 0 {
		o = opts[0]
	}

	var addr Address
	if host == "" {
		if o.Family == IPv6 {
			addr = AnyIPv6(port)
		} else {
			addr = AnyIPv4(port)
		}
	} else {
		var err error
		addr, err = ParseAddress(context.Background(), host, port)
		if err != nil {
			return nil, Address{}, err
		}
	}

	sock, err := OpenSocket(o)
	if err != nil {
		return nil, Address{}, err
	}

	_, sa, err := addr.sockaddr()
	if err != nil {
		_ = sock.Close()
		return nil, Address{}, err
	}
	if err := unix.Bind(sock.Fd(), sa); err != nil {
		_ = sock.Close()
		return nil, Address{}, Wrap(err, fmt.Sprintf("bind %s", addr))
	}
	if err := unix.Listen(sock.Fd(), o.Backlog); err != nil {
		_ = sock.Close()
		return nil, Address{}, Wrap(err, "listen")
	}

	bound, err := boundAddress(sock.Fd())
	if err != nil {
		_ = sock.Close()
		return nil, Address{}, err
	}
	return sock, bound, nil
}

func boundAddress(fd int) (Address, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Address{}, Wrap(err, "getsockname")
	}
	return addressFromSockaddr(sa)
}

// BindSocket binds sock to addr without listening, the split-out first
// half of [OpenAndListen] for callers (see package reactorio/sync) that
// want Bind and Listen as two separate steps.
func BindSocket(sock *Socket, addr Address) error {
	_, sa, err := addr.sockaddr()
	if err != nil {
		return err
	}
	if err := unix.Bind(sock.Fd(), sa); err != nil {
		return Wrap(err, fmt.Sprintf("bind %s", addr))
	}
	return nil
}

// BoundAddress reports the address sock is bound to, resolving an
// ephemeral port to its kernel-assigned value.
func BoundAddress(sock *Socket) (Address, error) {
	return boundAddress(sock.Fd())
}

// Accept performs a single non-blocking accept(2). A would-block result
// surfaces as a *Error with CategoryWouldBlock.
func (s *Socket) Accept() (*Socket, Address, error) {
	fd, sa, err := unix.Accept4(s.Fd(), unix.SOCK_NONBLOCK)
	if err != nil {
		return nil, Address{}, Wrap(err, "accept")
	}
	addr, err := addressFromSockaddr(sa)
	if err != nil {
		_ = unix.Close(fd)
		return nil, Address{}, err
	}
	return &Socket{Handle: NewGenericHandle(fd)}, addr, nil
}

// Read implements [Reader]. A 0-byte, nil-error result means the peer
// has closed the connection.
func (s *Socket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.Fd(), p)
	if err != nil {
		return 0, Wrap(err, "read")
	}
	return n, nil
}

// Write implements [Writer].
func (s *Socket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.Fd(), p)
	if err != nil {
		return 0, Wrap(err, "write")
	}
	return n, nil
}

// Connect opens a client TCP connection to addr, blocking the calling
// goroutine with poll(2) while the non-blocking connect(2) is in
// progress. This is the synchronous counterpart of the reactor-driven
// connect operation issued through the callback and future surfaces;
// grounded on poller_epoll.go's dialSingle, adapted from an
// event-loop-driven retry to a direct poll(2) wait since no [Context]
// is involved here.
func Connect(addr Address) (*Socket, error) {
	sock, err := OpenSocket(SocketOptions{Family: addr.Family, NonBlocking: true})
	if err != nil {
		return nil, err
	}

	_, sa, err := addr.sockaddr()
	if err != nil {
		_ = sock.Close()
		return nil, err
	}

	for {
		err := unix.Connect(sock.Fd(), sa)
		switch err {
		case nil:
			return sock, nil
		case unix.EINPROGRESS, unix.EALREADY, unix.EAGAIN:
			if werr := pollWritable(sock.Fd()); werr != nil {
				_ = sock.Close()
				return nil, werr
			}
			if serr := socketError(sock.Fd()); serr != nil {
				_ = sock.Close()
				return nil, serr
			}
			return sock, nil
		default:
			_ = sock.Close()
			return nil, Wrap(err, fmt.Sprintf("connect %s", addr))
		}
	}
}

// pollWritable blocks until fd is writable or an error occurs, using a
// single-fd poll(2) call.
func pollWritable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		return Wrap(err, "poll")
	}
}

// socketError retrieves SO_ERROR, the deferred result of a non-blocking
// connect(2) once the descriptor becomes writable.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return Wrap(err, "getsockopt SO_ERROR")
	}
	if errno != 0 {
		return FromErrno(unix.Errno(errno))
	}
	return nil
}
