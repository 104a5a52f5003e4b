package reactorio

import (
	"sync"
	"time"
)

// opKind tags an operation with the syscall family it represents, so a
// backend can pick its submission path without a type switch over the
// dispatch closure.
type opKind int

const (
	opNoop opKind = iota
	opAccept
	opRead
	opWrite
	opConnect
	opClose
	opTimer
)

func (k opKind) String() string {
	switch k {
	case opAccept:
		return "accept"
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opConnect:
		return "connect"
	case opClose:
		return "close"
	case opTimer:
		return "timer"
	default:
		return "noop"
	}
}

// operation is the reactor's per-submission bookkeeping record: one
// token, one dispatch closure, and whatever buffer/deadline the kind
// needs. Both backends share this type; only Submit/Wait differ.
type operation struct {
	token     uint64
	kind      opKind
	fd        int
	buf       []byte
	deadline  time.Time
	dispatch  func(n int, err error)
	cancelled bool
	completed bool
}

func (op *operation) reset() {
	op.token = 0
	op.kind = opNoop
	op.fd = 0
	op.buf = nil
	op.deadline = time.Time{}
	op.dispatch = nil
	op.cancelled = false
	op.completed = false
}

var operationPool = sync.Pool{
	New: func() any { return new(operation) },
}

func newOperation() *operation {
	return operationPool.Get().(*operation)
}

func releaseOperation(op *operation) {
	op.reset()
	operationPool.Put(op)
}

// operationTable tracks in-flight operations by token, so a completion
// (from either backend) can find its dispatch closure in O(1). It also
// indexes live operations by fd so a descriptor's whole in-flight set
// can be cancelled together when it is killed.
type operationTable struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*operation
	byFd    map[int]map[uint64]*operation
}

func newOperationTable() *operationTable {
	return &operationTable{
		entries: make(map[uint64]*operation),
		byFd:    make(map[int]map[uint64]*operation),
	}
}

// allocate reserves a fresh token and stores op under it.
func (t *operationTable) allocate(op *operation) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	token := t.next
	op.token = token
	t.entries[token] = op

	if op.kind != opTimer {
		byToken, ok := t.byFd[op.fd]
		if !ok {
			byToken = make(map[uint64]*operation)
			t.byFd[op.fd] = byToken
		}
		byToken[token] = op
	}
	return token
}

func (t *operationTable) lookup(token uint64) (*operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.entries[token]
	return op, ok
}

func (t *operationTable) remove(token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.entries[token]
	if !ok {
		return
	}
	delete(t.entries, token)

	if byToken, ok := t.byFd[op.fd]; ok {
		delete(byToken, token)
		if len(byToken) == 0 {
			delete(t.byFd, op.fd)
		}
	}
}

// forFd returns a snapshot of the operations currently in flight on fd.
// A snapshot, not a live view, so a caller iterating the result to
// cancel each operation in turn is unaffected by the table mutating
// underneath it mid-iteration.
func (t *operationTable) forFd(fd int) []*operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	byToken, ok := t.byFd[fd]
	if !ok {
		return nil
	}
	ops := make([]*operation, 0, len(byToken))
	for _, op := range byToken {
		ops = append(ops, op)
	}
	return ops
}

func (t *operationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
