package reactorio

import (
	"context"
	"fmt"
	"time"
)

// Queue is a single-threaded asynchronous FIFO: Get suspends until an
// item is available, Push wakes the oldest pending Get. Not safe for
// concurrent use; bridge from other goroutines through [Go] or
// [Context.RunCallbackThreadsafe] instead. Grounded on utils.go's Queue.
type Queue[T any] struct {
	data []T
	futs []*Future[T]
}

// Get returns a Future that resolves to the next pushed item, or
// immediately if one is already queued.
func (q *Queue[T]) Get() *Future[T] {
	fut := NewFuture[T]()
	if len(q.data) > 0 {
		item := q.data[0]
		q.data = q.data[1:]
		fut.SetResult(item, nil)
		return fut
	}
	q.futs = append(q.futs, fut)
	return fut
}

// Push appends item, resolving the oldest pending Get if there is one.
func (q *Queue[T]) Push(item T) {
	q.data = append(q.data, item)
	for len(q.futs) > 0 && len(q.data) > 0 {
		if q.futs[0].HasResult() {
			q.futs = q.futs[1:]
			continue
		}
		fut, item := q.futs[0], q.data[0]
		q.futs, q.data = q.futs[1:], q.data[1:]
		fut.SetResult(item, nil)
	}
}

// Mutex is a cooperative, single-threaded lock for coroutines sharing a
// [Context]. Grounded on utils.go's Mutex.
type Mutex struct {
	unlockFut *Future[any]
}

// Lock acquires m, suspending the calling Task until it is free.
func (m *Mutex) Lock(ctx context.Context) error {
	for {
		if m.unlockFut == nil || m.unlockFut.HasResult() {
			m.unlockFut = NewFuture[any]()
			return nil
		}
		if _, err := m.unlockFut.Await(ctx); err != nil {
			return err
		}
	}
}

// Unlock releases m.
func (m *Mutex) Unlock() {
	if m.unlockFut != nil {
		m.unlockFut.SetResult(nil, nil)
	}
}

// WaitMode selects [Wait]'s completion condition.
type WaitMode int

const (
	WaitFirstResult WaitMode = iota
	WaitFirstError
	WaitAll
)

// Wait resolves once futs collectively satisfy mode. It never cancels
// any of futs itself. A failing future's error is reclassified through
// [Wrap] so the fan-in's outcome always carries a [Category] a caller can
// branch on (errors.Is against CategoryTimedOut, CategoryCancelled, ...)
// even when futs mixes operations from both backends.
func Wait(mode WaitMode, futs ...Futurer) *Future[any] {
	var done int
	var lastErr error
	waitFut := NewFuture[any]()

	for i, fut := range futs {
		fut.AddDoneCallback(func(err error) {
			done++
			if err != nil {
				lastErr = Wrap(err, fmt.Sprintf("wait: future %d failed", i))
				if mode != WaitAll || done >= len(futs) {
					waitFut.SetResult(nil, lastErr)
				}
			} else if done >= len(futs) || mode == WaitFirstResult {
				waitFut.SetResult(nil, lastErr)
			}
		})
	}
	return waitFut
}

// GetFirstResult races coros against each other, returning the first
// successful result and cancelling the rest. If every coroutine fails,
// the last error is returned, reclassified through [Wrap] so callers can
// still test its Category after it has passed through this fan-in.
func GetFirstResult[T any](ctx context.Context, coros ...Coroutine2[T]) (T, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	tasks := make([]*Task[T], 0, len(coros))

	var done int
	waitFut := NewFuture[T]()
	waitFut.AddResultCallback(func(_ T, err error) {
		cancel()
		for _, t := range tasks {
			t.Cancel(nil)
		}
	})

	for i, coro := range coros {
		tasks = append(tasks, SpawnTask(taskCtx, coro))
		tasks[i].AddResultCallback(func(result T, err error) {
			done++
			if err == nil {
				waitFut.SetResult(result, nil)
			} else if done >= len(coros) {
				waitFut.Cancel(Wrap(err, "getfirstresult: every candidate failed"))
			}
		})
	}

	return waitFut.Await(ctx)
}

// Sleep suspends the calling Task for duration.
func Sleep(ctx context.Context, duration time.Duration) error {
	fut := NewFuture[any]()
	handle := RunningContext(ctx).ScheduleCallback(duration, func() {
		fut.SetResult(nil, nil)
	})
	fut.AddDoneCallback(func(error) {
		handle.Cancel()
	})
	_, err := fut.Await(ctx)
	return err
}

// Go runs f on a real OS goroutine, the sanctioned escape from the
// single-threaded reactor, and returns a Future that resolves on the
// reactor's own thread once f finishes. Grounded on utils.go's Go, with
// one domain-specific addition the teacher doesn't need: f runs on a
// goroutine this package owns, so a panic in f is recovered and
// reclassified as a CategoryIO *Error instead of crashing the process,
// keeping "every failure surfaces as an error, not a panic" true even
// for the one escape hatch off the reactor thread.
func Go[T any](ctx context.Context, f func(ctx context.Context) (T, error)) *Future[T] {
	c := RunningContext(ctx)
	fut := NewFuture[T]()

	goroCtx := context.WithValue(ctx, runningContextKey{}, (*Context)(nil))
	go func() {
		result, err := runRecovered(goroCtx, f)
		c.RunCallbackThreadsafe(func() {
			fut.SetResult(result, err)
		})
	}()
	return fut
}

// runRecovered calls f, converting a panic into a CategoryIO *Error
// instead of letting it unwind past the goroutine boundary [Go] creates.
func runRecovered[T any](ctx context.Context, f func(ctx context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, err = zero, NewError(CategoryIO, fmt.Sprintf("panic in Go goroutine: %v", r))
		}
	}()
	return f(ctx)
}
