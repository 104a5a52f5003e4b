package reactorio

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newTestPipe(t *testing.T) (read *File, writeFd int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	return &File{Handle: NewGenericHandle(fds[0])}, fds[1]
}

func TestContextCancelDispatchesCancelled(t *testing.T) {
	read, writeFd := newTestPipe(t)
	defer unix.Close(writeFd)
	defer read.Close()

	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		buf := make([]byte, 16)

		result := NewFuture[error]()
		token := AsyncRead(c, read, buf, func(_ int, err error) {
			result.SetResult(err, nil)
		})

		c.RunCallback(func() { c.Cancel(token) })

		gotErr, err := result.Await(ctx)
		if err != nil {
			return err
		}
		if !errors.Is(gotErr, NewError(CategoryCancelled, "")) {
			t.Errorf("got %v, want CategoryCancelled", gotErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestKillCancelsInFlightOpsThenCloses(t *testing.T) {
	read, writeFd := newTestPipe(t)
	defer unix.Close(writeFd)

	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		buf := make([]byte, 16)

		result := NewFuture[error]()
		AsyncRead(c, read, buf, func(_ int, err error) {
			result.SetResult(err, nil)
		})

		c.RunCallback(func() {
			if err := c.Kill(read.Handle); err != nil {
				t.Errorf("Kill: %v", err)
			}
		})

		gotErr, err := result.Await(ctx)
		if err != nil {
			return err
		}
		if !errors.Is(gotErr, NewError(CategoryCancelled, "")) {
			t.Errorf("got %v, want CategoryCancelled", gotErr)
		}
		if read.Valid() {
			t.Errorf("handle still valid after Kill")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestKillOnAlreadyClosedHandleIsNoop(t *testing.T) {
	read, writeFd := newTestPipe(t)
	defer unix.Close(writeFd)

	if err := read.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		if err := c.Kill(read.Handle); err != nil {
			t.Errorf("Kill on closed handle: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
