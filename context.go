package reactorio

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// Callback is a handle to a function scheduled to run on a [Context]'s
// thread after some delay. Grounded on loop.go's Callback/callbackQueue,
// generalized onto [TimerQueue] instead of a hand-rolled container/heap
// type.
type Callback struct {
	fn        func()
	when      time.Time
	cancelled bool
}

// Cancel prevents a not-yet-run Callback from running. It is a no-op if
// the callback has already run.
func (cb *Callback) Cancel() {
	cb.cancelled = true
}

// ContextOption configures a [Context] at construction time.
type ContextOption func(*Context)

// WithBackend pins a Context to a specific [Backend] instead of letting
// [NewContext] probe for io_uring support.
func WithBackend(b Backend) ContextOption {
	return func(c *Context) { c.backend = b }
}

// WithLogger overrides the [slog.Logger] a Context uses for its own
// diagnostics (submit failures, failed wakeups, failed deferred or
// killed closes).
func WithLogger(l *slog.Logger) ContextOption {
	return func(c *Context) { c.log = l }
}

// Context is the reactor: one Backend, the operation table it drives,
// a callback queue for ScheduleCallback/RunCallback, and the deferred
// deletion queue. Not safe for concurrent use except through
// RunCallbackThreadsafe.
type Context struct {
	backend Backend
	ops     *operationTable

	callbacks  *TimerQueue[int64, *Callback]
	fromThread chan *Callback

	deleteQueue *queue.Queue
	deleteSet   map[io.Closer]struct{}

	runID   uuid.UUID
	log     *slog.Logger
	stopped bool

	currentTasks []tasker
}

type runningContextKey struct{}

// RunningContext returns the [Context] driving ctx, the same one
// [Context.Run] installed when it started ctx's main task. Panics if
// ctx was not derived from a Context's Run call. Grounded on loop.go's
// RunningLoop.
func RunningContext(ctx context.Context) *Context {
	return ctx.Value(runningContextKey{}).(*Context)
}

// withTask pushes t as the currently stepping task so Yield knows
// which task's yielder function to resume through.
func (c *Context) withTask(t tasker, step func()) {
	old := c.currentTasks
	c.currentTasks = append(c.currentTasks, t)

	step()

	if c.currentTask() != t {
		panic("context switched from unexpected task")
	}
	c.currentTasks = old
}

func (c *Context) currentTask() tasker {
	return c.currentTasks[len(c.currentTasks)-1]
}

// Yield suspends the currently stepping [Task] until fut completes,
// resuming the reactor tick loop in the meantime.
func (c *Context) Yield(ctx context.Context, fut Futurer) error {
	return c.currentTask().yield(ctx, fut)
}

// NewContext constructs a Context, probing for io_uring support and
// falling back to epoll unless a [WithBackend] option pins one.
func NewContext(opts ...ContextOption) (*Context, error) {
	c := &Context{
		ops:         newOperationTable(),
		callbacks:   NewTimerQueue[int64, *Callback](),
		fromThread:  make(chan *Callback, 100),
		deleteQueue: queue.New(),
		deleteSet:   make(map[io.Closer]struct{}),
		runID:       uuid.New(),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		b, err := newBackend()
		if err != nil {
			return nil, err
		}
		c.backend = b
	}
	return c, nil
}

// Kind reports which Backend this Context is driving.
func (c *Context) Kind() BackendKind {
	return c.backend.Kind()
}

// RunID uniquely identifies this Context's lifetime, useful for
// correlating log lines across a process that runs more than one.
func (c *Context) RunID() uuid.UUID {
	return c.runID
}

func (c *Context) submit(op *operation) uint64 {
	token := c.ops.allocate(op)

	userDispatch := op.dispatch
	op.dispatch = func(n int, err error) {
		c.ops.remove(token)
		userDispatch(n, err)
	}

	if err := c.backend.Submit(op); err != nil {
		c.log.Warn("submit failed",
			slog.String("kind", op.kind.String()),
			slog.Any("error", err))
	}
	return token
}

// ScheduleCallback arranges for fn to run after delay has elapsed, once
// this Context's Run or Poll loop next observes the deadline.
func (c *Context) ScheduleCallback(delay time.Duration, fn func()) *Callback {
	cb := &Callback{fn: fn, when: time.Now().Add(delay)}
	c.callbacks.Push(cb.when.UnixNano(), cb)
	return cb
}

// RunCallback schedules fn for the next tick. Not threadsafe; use
// [Context.RunCallbackThreadsafe] from another goroutine.
func (c *Context) RunCallback(fn func()) {
	c.ScheduleCallback(0, fn)
}

// RunCallbackThreadsafe schedules fn from any goroutine and wakes the
// Context's Wait if it is currently blocked.
func (c *Context) RunCallbackThreadsafe(fn func()) {
	c.fromThread <- &Callback{fn: fn, when: time.Now()}
	if err := c.backend.Wake(); err != nil {
		c.log.Warn("could not wake reactor from another goroutine", slog.Any("error", err))
	}
}

func (c *Context) drainThreadCallbacks() {
	for {
		select {
		case cb := <-c.fromThread:
			c.callbacks.Push(cb.when.UnixNano(), cb)
		default:
			return
		}
	}
}

func (c *Context) runDueCallbacks() {
	now := time.Now().UnixNano()
	for {
		when, cb, ok := c.callbacks.Peek()
		if !ok || when > now {
			return
		}
		c.callbacks.Pop()
		if cb.cancelled {
			continue
		}
		cb.fn()
	}
}

func (c *Context) nextTimeout() time.Duration {
	when, _, ok := c.callbacks.Peek()
	if !ok {
		return 30 * time.Second
	}
	d := time.Until(time.Unix(0, when))
	if d < 0 {
		return 0
	}
	return d
}

// DeferDelete queues closer to be closed once the current tick finishes,
// deduplicating by identity so a value queued twice in the same tick is
// only closed once.
func (c *Context) DeferDelete(closer io.Closer) {
	if closer == nil {
		return
	}
	if _, queued := c.deleteSet[closer]; queued {
		return
	}
	c.deleteSet[closer] = struct{}{}
	c.deleteQueue.Add(closer)
}

func (c *Context) drainDeletions() {
	for c.deleteQueue.Length() > 0 {
		closer := c.deleteQueue.Remove().(io.Closer)
		delete(c.deleteSet, closer)
		if err := closer.Close(); err != nil {
			c.log.Debug("deferred close failed", slog.Any("error", err))
		}
	}
}

// Kill cancels every operation currently in flight on h's descriptor,
// dispatching each one's callback with a CategoryCancelled error, then
// closes h through the same operation/dispatch path (an IORING_OP_CLOSE
// on the completion backend, an inline close(2) on the readiness one).
// Use [Context.DeferDelete] instead when closing from inside one of h's
// own callbacks.
func (c *Context) Kill(h *Handle) error {
	fd, ok := h.closeAsync()
	if !ok {
		return nil
	}

	for _, op := range c.ops.forFd(fd) {
		c.Cancel(op.token)
	}

	closeOp := newOperation()
	closeOp.kind = opClose
	closeOp.fd = fd
	closeOp.dispatch = func(_ int, err error) {
		releaseOperation(closeOp)
		if err != nil {
			c.log.Debug("close failed", slog.Any("error", err))
		}
	}
	c.submit(closeOp)
	return nil
}

// Poll runs a single non-blocking tick: due callbacks, any
// already-ready backend completions, and deferred deletions. Useful for
// embedding the reactor inside a host loop that already owns its own
// blocking wait.
func (c *Context) Poll() error {
	c.drainThreadCallbacks()
	c.runDueCallbacks()
	if err := c.backend.Wait(0); err != nil {
		return err
	}
	c.drainDeletions()
	return nil
}

// Run starts main as the root [Task] and drives the reactor until main
// returns, ctx is cancelled, or [Context.Stop] is called. Matches
// loop.go's EventLoop.Run tick structure: drain thread-submitted
// callbacks, run due callbacks, wait for backend completions bounded by
// the next callback deadline, drain deletions.
func (c *Context) Run(ctx context.Context, main Coroutine1) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	ctx = context.WithValue(ctx, runningContextKey{}, c)
	mainTask := main.SpawnTask(ctx).Future().AddDoneCallback(func(err error) {
		if err != nil {
			cancel(err)
		}
	})

	for ctx.Err() == nil && !c.stopped {
		c.drainThreadCallbacks()
		c.runDueCallbacks()

		if ctx.Err() != nil || mainTask.HasResult() {
			break
		}

		timeout := c.nextTimeout()
		if deadline, ok := ctx.Deadline(); ok {
			if d := time.Until(deadline); d < timeout {
				timeout = d
			}
		}

		if err := c.backend.Wait(timeout); err != nil {
			return err
		}
		c.drainDeletions()
	}

	if c.stopped {
		return nil
	}
	return context.Cause(ctx)
}

// Stop requests that a concurrently running [Context.Run] return after
// its current tick.
func (c *Context) Stop() {
	c.stopped = true
	_ = c.backend.Wake()
}

// Close releases the underlying Backend. Call once the reactor has
// stopped.
func (c *Context) Close() error {
	return c.backend.Close()
}
