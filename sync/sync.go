// Package sync collects thin blocking helpers that need no
// [reactorio.Context] at all: a test fixture, a one-off tool, or any
// caller that would rather block a goroutine than drive a reactor.
// bind/listen/connect are synchronous kernel calls regardless of how
// the connection is later driven; only accept/read/write usefully go
// async, so those are the ones offered with retry-on-EAGAIN blocking
// variants here.
package sync

import (
	"context"
	"errors"

	"github.com/arkestra/reactorio"
	"golang.org/x/sys/unix"
)

func optionsOrDefault(opts []reactorio.SocketOptions) reactorio.SocketOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return reactorio.DefaultSocketOptions()
}

func isWouldBlock(err error) bool {
	return errors.Is(err, reactorio.NewError(reactorio.CategoryWouldBlock, ""))
}

// Bind creates a TCP socket and binds it to host:port without
// listening. port == 0 asks the kernel for an ephemeral port; the
// returned Address reflects the kernel-assigned port.
func Bind(host string, port int, opts ...reactorio.SocketOptions) (*reactorio.Socket, reactorio.Address, error) {
	o := optionsOrDefault(opts)
	sock, err := reactorio.OpenSocket(o)
	if err != nil {
		return nil, reactorio.Address{}, err
	}

	var addr reactorio.Address
	if host == "" {
		if o.Family == reactorio.IPv6 {
			addr = reactorio.AnyIPv6(port)
		} else {
			addr = reactorio.AnyIPv4(port)
		}
	} else {
		addr, err = reactorio.ParseAddress(context.Background(), host, port)
		if err != nil {
			_ = sock.Close()
			return nil, reactorio.Address{}, err
		}
	}

	if err := reactorio.BindSocket(sock, addr); err != nil {
		_ = sock.Close()
		return nil, reactorio.Address{}, err
	}
	bound, err := reactorio.BoundAddress(sock)
	if err != nil {
		_ = sock.Close()
		return nil, reactorio.Address{}, err
	}
	return sock, bound, nil
}

// Listen starts listening on a socket previously returned by [Bind],
// with the given backlog.
func Listen(sock *reactorio.Socket, backlog int) error {
	if err := unix.Listen(sock.Fd(), backlog); err != nil {
		return reactorio.Wrap(err, "listen")
	}
	return nil
}

// Connect opens a blocking client connection to addr.
func Connect(addr reactorio.Address) (*reactorio.Socket, error) {
	return reactorio.Connect(addr)
}

// Accept blocks until a connection arrives on listener, waiting on
// poll(2) between EAGAIN retries.
func Accept(listener *reactorio.Socket) (*reactorio.Socket, reactorio.Address, error) {
	for {
		sock, addr, err := listener.Accept()
		if err == nil {
			return sock, addr, nil
		}
		if !isWouldBlock(err) {
			return nil, reactorio.Address{}, err
		}
		if err := pollReadable(listener.Fd()); err != nil {
			return nil, reactorio.Address{}, err
		}
	}
}

// TryAccept performs a single non-blocking accept attempt, returning a
// *reactorio.Error with CategoryWouldBlock if no connection is pending.
func TryAccept(listener *reactorio.Socket) (*reactorio.Socket, reactorio.Address, error) {
	return listener.Accept()
}

// Read blocks until Read returns data or a non-would-block error,
// including a 0-byte EOF result.
func Read(r reactorio.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if err == nil {
			return n, nil
		}
		if !isWouldBlock(err) {
			return 0, err
		}
		if err := pollReadable(r.Fd()); err != nil {
			return 0, err
		}
	}
}

// TryRead performs a single non-blocking read attempt.
func TryRead(r reactorio.Reader, buf []byte) (int, error) {
	return r.Read(buf)
}

// ReadLine blocks until a full line, trailing newline included, has
// been read.
func ReadLine(r reactorio.Reader) ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := Read(r, buf)
		if n > 0 {
			line = append(line, buf[0])
			if buf[0] == '\n' {
				return line, nil
			}
		}
		if err != nil {
			if len(line) > 0 {
				return line, err
			}
			return nil, err
		}
	}
}

// ReadStr is [ReadLine] with the trailing newline stripped, returned as
// a string.
func ReadStr(r reactorio.Reader) (string, error) {
	line, err := ReadLine(r)
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	return string(line), err
}

// Write is an alias for [WriteAll]: a single Write can short-write, and
// callers reaching for a blocking helper almost always want the whole
// buffer sent.
func Write(w reactorio.Writer, buf []byte) (int, error) {
	return WriteAll(w, buf)
}

// TryWrite performs a single non-blocking write attempt.
func TryWrite(w reactorio.Writer, buf []byte) (int, error) {
	return w.Write(buf)
}

// WriteAll re-issues Write until every byte of buf is written or an
// error occurs, blocking on poll(2) between EAGAIN retries.
func WriteAll(w reactorio.Writer, buf []byte) (int, error) {
	fder, hasFd := w.(interface{ Fd() int })

	var written int
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if n > 0 {
			written += n
			buf = buf[n:]
		}
		if err == nil {
			continue
		}
		if isWouldBlock(err) && hasFd {
			if perr := pollWritable(fder.Fd()); perr != nil {
				return written, perr
			}
			continue
		}
		return written, err
	}
	return written, nil
}

func pollReadable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		return reactorio.Wrap(err, "poll")
	}
}

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
		return reactorio.Wrap(err, "poll")
	}
}
