package reactorio

import (
	"context"
	"errors"
	"time"
)

// ErrNotReady is returned by [Future.Result] when no result has been set
// yet.
var ErrNotReady = errors.New("future is still pending")

// FuturePoll is what a poll function reports each time it runs: ready
// with a value, still pending (Ready false, Err nil), or failed outright.
// Once a poll function reports Ready or a non-nil Err, a correct caller
// never polls that future again.
type FuturePoll[T any] struct {
	Ready bool
	Value T
	Err   error
}

// Futurer is an untyped view of an [Awaitable], useful for storing
// heterogeneous pending operations in one slice or map.
type Futurer interface {
	HasResult() bool
	Err() error
	AddDoneCallback(callback func(error)) Futurer
	Cancel(err error)
}

// tasker is an untyped view of a [Task], used internally by
// [Context.Yield].
type tasker interface {
	Futurer
	yield(ctx context.Context, fut Futurer) error
}

// Awaitable is a value that may complete at a later time and can be
// awaited from within a [Task] to suspend that task's coroutine until
// the value is ready.
type Awaitable[T any] interface {
	Futurer
	// Await suspends the calling Task until this Awaitable completes,
	// returning its result. Cancelling the calling Task or ctx cancels
	// this Awaitable too, unless obtained via Shield.
	Await(ctx context.Context) (T, error)
	// MustAwait is Await but panics on error.
	MustAwait(ctx context.Context) T
	// Shield returns a Future that completes alongside this Awaitable
	// without propagating cancellation onto it.
	Shield() *Future[T]
	AddResultCallback(callback func(result T, err error)) Awaitable[T]
	WriteResultTo(dst *T) Awaitable[T]
	Future() *Future[T]
	// Result returns the completed value, or ErrNotReady if pending.
	Result() (T, error)
}

// futureBox is the single-assignment rendezvous behind a push-resolved
// Future: one result slot plus whatever callbacks are waiting to observe
// it the moment SetResult runs. It is one particular instantiation of a
// Future's state/poll pair, not the Future type itself — the same role
// [State] plays for [PollState], just inlined here since every
// constructor in this file (Ready, Failed, Then, Make, TimeoutWith, Loop)
// needs exactly this rendezvous shape to interoperate with [Task.Await].
type futureBox[T any] struct {
	done      bool
	result    T
	err       error
	callbacks []func(T, error)
}

// boxPoll adapts a *futureBox[T] into the func(any) FuturePoll[T] shape
// a Future's poll field holds, so a box-backed Future genuinely satisfies
// the poll contract rather than faking it behind a done-flag check.
func boxPoll[T any](state any) FuturePoll[T] {
	b := state.(*futureBox[T])
	switch {
	case !b.done:
		return FuturePoll[T]{}
	case b.err != nil:
		return FuturePoll[T]{Err: b.err}
	default:
		return FuturePoll[T]{Ready: true, Value: b.result}
	}
}

// Future is Component F's future: an opaque state value plus a poll
// function over it, the same {state, poll} shape [Make]'s caller-supplied
// pollFn already has. A caller outside any [Task] drives one by
// alternating Poll with [Context.Poll] in a tight loop; Task.Await is the
// push-style consumer built on the same two fields via [Future.box].
type Future[T any] struct {
	state any
	poll  func(any) FuturePoll[T]
}

// NewFuture returns an empty, unresolved Future backed by a fresh
// rendezvous box.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{state: &futureBox[T]{}, poll: boxPoll[T]}
}

// Ready returns a Future that has already completed with value. Poll
// reports Ready on the very first call, with no intervening Context.Poll
// needed.
func Ready[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.SetResult(value, nil)
	return f
}

// Failed returns a Future that has already completed with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.SetResult(zero, err)
	return f
}

// Pending returns a Future whose poll reports pending until some other
// code holding onto it calls SetResult. Useful as a placeholder
// result from a combinator that has nothing to return yet.
func Pending[T any]() *Future[T] {
	return NewFuture[T]()
}

// box returns f's rendezvous when f is backed by one. Every constructor
// in this package produces a box-backed Future; the accessor stays
// separate from the state field itself so a future built directly from a
// caller-supplied poll function (outside this package) degrades to
// Poll-only consumption instead of silently corrupting unrelated state.
func (f *Future[T]) box() *futureBox[T] {
	b, _ := f.state.(*futureBox[T])
	return b
}

// Poll samples f's current disposition without blocking. This is the
// pull half of the polling contract: poll makes progress only when
// something actually drives it forward, which for a box-backed Future
// means whatever reactor tick or callback eventually calls SetResult; for
// an already-resolved Future (Ready, Failed) the very first Poll already
// observes the final answer.
func (f *Future[T]) Poll() FuturePoll[T] {
	return f.poll(f.state)
}

func (f *Future[T]) HasResult() bool {
	p := f.Poll()
	return p.Ready || p.Err != nil
}

func (f *Future[T]) Err() error { return f.Poll().Err }

func (f *Future[T]) Result() (T, error) {
	switch p := f.Poll(); {
	case p.Err != nil:
		var zero T
		return zero, p.Err
	case p.Ready:
		return p.Value, nil
	default:
		var zero T
		return zero, ErrNotReady
	}
}

func (f *Future[T]) Future() *Future[T] { return f }

func (f *Future[T]) AddDoneCallback(callback func(error)) Futurer {
	f.AddResultCallback(func(_ T, err error) { callback(err) })
	return f
}

// AddResultCallback registers callback to run the moment f resolves,
// running it immediately if f has already resolved. This is the push
// half of Future's dual consumption model — the one [Task.step] and
// [Shield] rely on — built on top of the same box [Poll] reads from.
func (f *Future[T]) AddResultCallback(callback func(T, error)) Awaitable[T] {
	switch p := f.Poll(); {
	case p.Err != nil:
		var zero T
		callback(zero, p.Err)
	case p.Ready:
		callback(p.Value, nil)
	default:
		b := f.box()
		if b == nil {
			panic("reactorio: AddResultCallback requires a box-backed Future")
		}
		b.callbacks = append(b.callbacks, callback)
	}
	return f
}

func (f *Future[T]) WriteResultTo(dst *T) Awaitable[T] {
	return f.AddResultCallback(func(result T, err error) {
		if err == nil {
			*dst = result
		}
	})
}

func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if err := RunningContext(ctx).Yield(ctx, f); err != nil {
		var zero T
		return zero, err
	}
	return f.Result()
}

func (f *Future[T]) MustAwait(ctx context.Context) T {
	res, err := f.Await(ctx)
	if err != nil {
		panic(err)
	}
	return res
}

func (f *Future[T]) Cancel(err error) {
	if err == nil {
		err = context.Canceled
	}
	var zero T
	f.SetResult(zero, err)
}

// Shield returns a Future that mirrors f without cancelling f when the
// returned Future is cancelled instead (e.g. by the caller's Task being
// cancelled while a shared in-flight operation should run to completion).
func (f *Future[T]) Shield() *Future[T] {
	if f.HasResult() {
		return f
	}

	shield := NewFuture[T]()
	f.AddResultCallback(func(result T, err error) {
		shield.SetResult(result, err)
	})
	shield.AddResultCallback(func(result T, err error) {
		if !errors.Is(err, context.Canceled) {
			f.SetResult(result, err)
		}
	})
	return shield
}

// SetResult populates f's rendezvous with its final value, firing every
// callback queued through AddResultCallback. A second call is a no-op: a
// Future resolves exactly once. Calling SetResult on a Future that isn't
// box-backed (one built directly from a caller-supplied poll function) is
// also a no-op, since there is no rendezvous for it to write into.
func (f *Future[T]) SetResult(result T, err error) {
	b := f.box()
	if b == nil || b.done {
		return
	}
	b.result, b.err = result, err
	b.done = true

	callbacks := b.callbacks
	b.callbacks = nil
	for _, callback := range callbacks {
		callback(result, err)
	}
}

// Then chains a continuation onto f: the returned Future resolves with
// the continuation's result once f resolves successfully, or propagates
// f's error untouched.
func Then[T, U any](f *Future[T], cont func(T) (U, error)) *Future[U] {
	next := NewFuture[U]()
	f.AddResultCallback(func(result T, err error) {
		if err != nil {
			var zero U
			next.SetResult(zero, err)
			return
		}
		value, cerr := cont(result)
		next.SetResult(value, cerr)
	})
	return next
}

// Make adapts a poll-once-per-tick function into a Future: pollFn is
// invoked with a pointer to state on the context's callback queue,
// rescheduling itself every tick until it reports ready or failed. This
// is the literal make(state, poll_fn) constructor: pollFn runs in exactly
// the func(*S) FuturePoll[T] shape a future's own poll function has, with
// the Context's tick loop standing in for the "caller responsible for
// rescheduling" the polling contract requires — a future built this way
// still supports both Poll (the rendezvous box records whatever the most
// recent tick found) and Task.Await.
func Make[S, T any](c *Context, state S, pollFn func(*S) FuturePoll[T]) *Future[T] {
	fut := NewFuture[T]()
	var tick func()
	tick = func() {
		poll := pollFn(&state)
		switch {
		case poll.Err != nil:
			var zero T
			fut.SetResult(zero, poll.Err)
		case poll.Ready:
			fut.SetResult(poll.Value, nil)
		default:
			c.ScheduleCallback(0, tick)
		}
	}
	c.RunCallback(tick)
	return fut
}

// TimeoutWith races f against a d-long timer. If f resolves first, its
// result passes through untouched and the timer is cancelled. If the
// timer fires first, onTimeout is invoked and its result becomes the
// outcome instead; f itself is left running (callers that need it
// abandoned should Cancel it from within onTimeout).
func TimeoutWith[T any](f *Future[T], c *Context, d time.Duration, onTimeout func() *Future[T]) *Future[T] {
	result := NewFuture[T]()
	var timer *Callback
	timer = c.ScheduleCallback(d, func() {
		onTimeout().AddResultCallback(func(v T, err error) {
			result.SetResult(v, err)
		})
	})
	f.AddResultCallback(func(v T, err error) {
		timer.Cancel()
		result.SetResult(v, err)
	})
	return result
}

// Loop restarts body with the value it last resolved with, forever,
// stopping only when body's Future fails. Matches
// original_source/examples/04-future-echo-server.cpp's rio::fut::loop,
// whose per-client session keeps re-reading and re-writing until the
// connection errors out rather than terminating on a successful round.
func Loop[S any](seed S, body func(S) *Future[S]) *Future[S] {
	result := NewFuture[S]()
	var step func(S)
	step = func(state S) {
		body(state).AddResultCallback(func(next S, err error) {
			if err != nil {
				var zero S
				result.SetResult(zero, err)
				return
			}
			step(next)
		})
	}
	step(seed)
	return result
}
