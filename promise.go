package reactorio

import "time"

type promiseState int32

const (
	stateEmpty promiseState = iota
	stateReady
	stateRejected
)

// State is a heap-allocatable rendezvous written by exactly one
// resolver and read by exactly one poller, with a one-shot transition
// out of stateEmpty. Grounded on
// original_source/examples/07-promise-future.cpp's State<T>.
type State[T any] struct {
	state promiseState
	value T
	err   error
}

// NewState returns an unresolved State.
func NewState[T any]() *State[T] {
	return &State[T]{}
}

// Poll reports the state's current disposition without blocking.
// ready is false until a Promise has resolved or rejected it.
func (s *State[T]) Poll() (value T, err error, ready bool) {
	switch s.state {
	case stateReady:
		return s.value, nil, true
	case stateRejected:
		var zero T
		return zero, s.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Promise is a non-owning handle onto a [State]: whoever holds the
// Promise resolves or rejects it, at most once. s must outlive every
// Promise and poller derived from it.
type Promise[T any] struct {
	s *State[T]
}

// NewPromise returns a Promise bound to s.
func NewPromise[T any](s *State[T]) Promise[T] {
	return Promise[T]{s: s}
}

// Resolve transitions the bound state to ready with value. A no-op if
// the state already left stateEmpty.
func (p Promise[T]) Resolve(value T) {
	if p.s.state != stateEmpty {
		return
	}
	p.s.value = value
	p.s.state = stateReady
}

// Reject transitions the bound state to rejected with err. A no-op if
// the state already left stateEmpty.
func (p Promise[T]) Reject(err error) {
	if p.s.state != stateEmpty {
		return
	}
	p.s.err = err
	p.s.state = stateRejected
}

// PollState returns a [Future] that resolves once s does, checking s
// once per reactor tick via c.RunCallback rather than busy-looping.
// Matches the producer/consumer fan-in pattern in
// 07-promise-future.cpp: a producer resolves state piecemeal while a
// consumer polls it tick by tick.
func PollState[T any](c *Context, s *State[T]) *Future[T] {
	fut := NewFuture[T]()
	var tick func()
	tick = func() {
		if value, err, ready := s.Poll(); ready {
			fut.SetResult(value, err)
			return
		}
		c.ScheduleCallback(time.Duration(0), tick)
	}
	c.RunCallback(tick)
	return fut
}
