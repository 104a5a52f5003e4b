package reactorio

import (
	"context"
	"iter"
)

// Coroutine1 is a resumable function that returns only an error,
// convenient for a task's top-level entry point.
type Coroutine1 func(ctx context.Context) error

// SpawnTask starts c as a background [Task].
func (c Coroutine1) SpawnTask(ctx context.Context) *Task[any] {
	return SpawnTask[any](ctx, func(ctx context.Context) (any, error) {
		return nil, c(ctx)
	})
}

// Coroutine2 is a resumable function that returns a result or an error.
type Coroutine2[R any] func(ctx context.Context) (R, error)

// SpawnTask starts c as a background [Task].
func (c Coroutine2[R]) SpawnTask(ctx context.Context) *Task[R] {
	return SpawnTask(ctx, c)
}

// Task drives a coroutine, intercepting every [Awaitable] it awaits and
// resuming the coroutine once that Awaitable completes. Grounded on
// futures.go's Task, built on the same iter.Pull-based stackless
// coroutine trick, adapted into a resumable-task surface over this
// reactor's own operations.
type Task[R any] struct {
	ctxt    *Context
	yielder func(Futurer) bool

	next       func() (Futurer, bool)
	stop       func()
	ctx        context.Context
	cancel     context.CancelCauseFunc
	pendingFut Futurer
	resultFut  *Future[R]
}

// SpawnTask starts coro as a background Task on the [Context] running
// ctx (see [RunningContext]). The coroutine's first step is deferred to
// the Context's next tick, so cancelling the returned Task before that
// tick prevents coro from ever running.
func SpawnTask[R any](ctx context.Context, coro Coroutine2[R]) *Task[R] {
	ctx, cancel := context.WithCancelCause(ctx)
	task := &Task[R]{
		ctxt:      RunningContext(ctx),
		resultFut: NewFuture[R](),
		ctx:       ctx,
		cancel:    cancel,
	}

	next, stop := iter.Pull(func(yield func(Futurer) bool) {
		task.yielder = yield
		task.resultFut.SetResult(coro(ctx))
	})
	task.resultFut.AddDoneCallback(func(err error) {
		if task.pendingFut != nil {
			task.pendingFut.Cancel(nil)
		}
		task.cancel(err)
	})
	task.next = next
	task.stop = stop

	task.ctxt.RunCallback(func() {
		if task.resultFut.HasResult() {
			return
		} else if err := context.Cause(ctx); err != nil {
			task.resultFut.Cancel(err)
		} else {
			task.step()
		}
	})
	return task
}

// step advances the coroutine until its next Await/Yield.
func (t *Task[_]) step() (ok bool) {
	t.ctxt.withTask(t, func() {
		t.pendingFut, ok = t.next()
	})
	if !ok {
		t.pendingFut = nil
		t.stop()
		return false
	}

	if t.pendingFut != nil {
		t.pendingFut.AddDoneCallback(func(error) {
			t.step()
		})
	} else {
		t.ctxt.RunCallback(func() {
			t.step()
		})
	}
	return true
}

// Stop aborts the coroutine immediately, preventing any further awaits.
// Prefer [Futurer.Cancel].
func (t *Task[_]) Stop() {
	t.stop()
}

func (t *Task[_]) yield(childCtx context.Context, fut Futurer) error {
	if err := context.Cause(t.ctx); err != nil {
		t.resultFut.Cancel(err)
		if fut != nil {
			fut.Cancel(err)
		}
		return t.Err()
	}

	if err := childCtx.Err(); err != nil {
		if fut != nil {
			fut.Cancel(err)
		}
		return t.Err()
	}

	if !t.yielder(fut) {
		t.resultFut.Cancel(nil)
		return t.Err()
	}

	if err := context.Cause(t.ctx); err != nil {
		t.resultFut.Cancel(err)
		return t.Err()
	}
	if err := childCtx.Err(); err != nil {
		t.resultFut.Cancel(err)
		return t.Err()
	}
	return nil
}

func (t *Task[_]) HasResult() bool { return t.resultFut.HasResult() }
func (t *Task[_]) Err() error      { return t.resultFut.Err() }

func (t *Task[R]) Result() (R, error)  { return t.resultFut.Result() }
func (t *Task[R]) Future() *Future[R]  { return t.resultFut }
func (t *Task[R]) Shield() *Future[R]  { return t.resultFut.Shield() }

func (t *Task[R]) Await(ctx context.Context) (R, error) { return t.resultFut.Await(ctx) }
func (t *Task[R]) MustAwait(ctx context.Context) R      { return t.resultFut.MustAwait(ctx) }

func (t *Task[R]) WriteResultTo(dst *R) Awaitable[R] {
	t.resultFut.WriteResultTo(dst)
	return t
}

func (t *Task[_]) Cancel(err error) {
	t.resultFut.Cancel(err)
}

func (t *Task[R]) AddResultCallback(callback func(result R, err error)) Awaitable[R] {
	t.resultFut.AddResultCallback(callback)
	return t
}

func (t *Task[_]) AddDoneCallback(callback func(error)) Futurer {
	t.resultFut.AddDoneCallback(callback)
	return t
}
