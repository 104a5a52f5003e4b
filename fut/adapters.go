// Package fut adapts the callback-based I/O surface onto
// [reactorio.Future], so an operation can be awaited from inside a
// [reactorio.Task] instead of handled from a callback closure.
package fut

import (
	"github.com/arkestra/reactorio"
)

// Accept submits a non-blocking accept on listener and returns a
// Future that resolves with the accepted connection. The adapter
// allocates a [reactorio.State]/[reactorio.Promise] pair and lets the
// callback-surface Accept resolve or reject it; unlike a hand-managed
// native rendezvous, this state needs no explicit deletion, since Go's
// garbage collector reclaims it once the returned Future (and any
// callback closure still holding it) is unreachable.
func Accept(ctx *reactorio.Context, listener *reactorio.Socket) *reactorio.Future[reactorio.AcceptResult] {
	state := reactorio.NewState[reactorio.AcceptResult]()
	promise := reactorio.NewPromise(state)

	reactorio.AsyncAccept(ctx, listener, func(client *reactorio.Socket, addr reactorio.Address, err error) {
		if err != nil {
			promise.Reject(err)
			return
		}
		promise.Resolve(reactorio.AcceptResult{Client: client, Address: addr})
	})
	return reactorio.PollState(ctx, state)
}

// Read submits a non-blocking read into buf and returns a Future that
// resolves with the byte count. A 0-byte, nil-error result means EOF.
func Read(ctx *reactorio.Context, h reactorio.Reader, buf []byte) *reactorio.Future[int] {
	state := reactorio.NewState[int]()
	promise := reactorio.NewPromise(state)

	reactorio.AsyncRead(ctx, h, buf, func(n int, err error) {
		if err != nil {
			promise.Reject(err)
			return
		}
		promise.Resolve(n)
	})
	return reactorio.PollState(ctx, state)
}

// Write submits a non-blocking write of buf and returns a Future that
// resolves with the byte count written. Short writes are reported as
// a smaller-than-len(buf) result, not an error.
func Write(ctx *reactorio.Context, h reactorio.Writer, buf []byte) *reactorio.Future[int] {
	state := reactorio.NewState[int]()
	promise := reactorio.NewPromise(state)

	reactorio.AsyncWrite(ctx, h, buf, func(n int, err error) {
		if err != nil {
			promise.Reject(err)
			return
		}
		promise.Resolve(n)
	})
	return reactorio.PollState(ctx, state)
}

// Connect issues a non-blocking connect(2) to addr and returns a
// Future that resolves with the connected socket.
func Connect(ctx *reactorio.Context, addr reactorio.Address) *reactorio.Future[*reactorio.Socket] {
	state := reactorio.NewState[*reactorio.Socket]()
	promise := reactorio.NewPromise(state)

	reactorio.AsyncConnect(ctx, addr, func(sock *reactorio.Socket, err error) {
		if err != nil {
			promise.Reject(err)
			return
		}
		promise.Resolve(sock)
	})
	return reactorio.PollState(ctx, state)
}
