package reactorio

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (*Socket, *Socket) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblocking: %v", err)
		}
	}
	return &Socket{Handle: NewGenericHandle(fds[0])}, &Socket{Handle: NewGenericHandle(fds[1])}
}

func TestStreamReadLine(t *testing.T) {
	a, b := socketPair(t)

	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		reader := NewStream(c, a)
		defer reader.Close()
		defer b.Close()

		fut := NewFuture[int]()
		AsyncWrite(c, b, []byte("hello\nworld\n"), func(n int, err error) {
			fut.SetResult(n, err)
		})
		if _, err := fut.Await(ctx); err != nil {
			return err
		}

		line, err := reader.ReadLine(ctx)
		if err != nil {
			return err
		}
		if string(line) != "hello\n" {
			t.Errorf("got %q, want %q", line, "hello\n")
		}

		line, err = reader.ReadLine(ctx)
		if err != nil {
			return err
		}
		if string(line) != "world\n" {
			t.Errorf("got %q, want %q", line, "world\n")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestStreamReadAllOnEOF(t *testing.T) {
	a, b := socketPair(t)

	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		reader := NewStream(c, a)
		defer reader.Close()

		fut := NewFuture[int]()
		AsyncWrite(c, b, []byte("all done"), func(n int, err error) {
			fut.SetResult(n, err)
		})
		if _, err := fut.Await(ctx); err != nil {
			return err
		}
		if err := b.Close(); err != nil {
			return err
		}

		data, err := reader.ReadAll(ctx)
		if err != nil {
			return err
		}
		if string(data) != "all done" {
			t.Errorf("got %q, want %q", data, "all done")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
