package reactorio

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// defaultUringEntries is the submission/completion ring size requested
// from the kernel; io_uring rounds it up to the next power of two.
const defaultUringEntries = 256

const (
	uringOpNop         = 0
	uringOpPollAdd     = 6
	uringOpTimeout     = 11
	uringOpAccept      = 13
	uringOpAsyncCancel = 14
	uringOpConnect     = 16
	uringOpClose       = 19
	uringOpRead        = 22
	uringOpWrite       = 23
)

const (
	ioUringEnterGetEvents = 1 << 0
)

const (
	ioUringOffSQRing = int64(0)
	ioUringOffSQEs   = int64(0x10000000)
)

const ioUringFeatSingleMMap = 1 << 0

type uringSQOffsets struct {
	Head, Tail, RingMask, RingEntries, Flags, Dropped, Array, Resv1 uint32
	UserAddr                                                        uint64
}

type uringCQOffsets struct {
	Head, Tail, RingMask, RingEntries, Overflow, CQEs, Flags, Resv1 uint32
	UserAddr                                                        uint64
}

type uringParams struct {
	SqEntries    uint32
	CqEntries    uint32
	Flags        uint32
	SqThreadCPU  uint32
	SqThreadIdle uint32
	Features     uint32
	WqFd         uint32
	Resv         [3]uint32
	SQOffsets    uringSQOffsets
	CQOffsets    uringCQOffsets
}

// uringSQE mirrors the kernel's io_uring_sqe layout, trimmed to the
// fields this backend actually populates.
type uringSQE struct {
	Opcode   uint8
	Flags    uint8
	Ioprio   uint16
	Fd       int32
	Offset   uint64
	Address  uint64
	Len      uint32
	OpFlags  uint32
	UserData uint64
	_        [3]uint64
}

type uringCQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

type uringSQRing struct {
	head, tail, mask, entries *uint32
	array                     uintptr
	sqes                      uintptr
}

type uringCQRing struct {
	head, tail, mask, entries *uint32
	cqes                      uintptr
}

// uringBackend is the completion-based primary [Backend], grounded on
// touka-aoi-low-level-server/core/core/uring.go's CreateUring/pushSQE/
// getCQE trio, adapted from that file's buffer-select/multishot accept
// style to a plain single-shot SQE per operation so every op kind
// (accept/read/write/connect/close) shares one Submit/Wait path.
type uringBackend struct {
	fd      int32
	sq      uringSQRing
	cq      uringCQRing
	pending map[uint64]*operation
	eventFd int
}

func newUringBackend(entries uint32) (*uringBackend, error) {
	var params uringParams
	fd, _, errno := unix.Syscall6(unix.SYS_IO_URING_SETUP,
		uintptr(entries), uintptr(unsafe.Pointer(&params)), 0, 0, 0, 0)
	if errno != 0 {
		return nil, FromErrno(errno)
	}

	sqRingSize := int(params.SQOffsets.Array) + int(params.SqEntries)*int(unsafe.Sizeof(uint32(0)))
	sqData, err := unix.Mmap(int(fd), ioUringOffSQRing, sqRingSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Close(int(fd))
		return nil, Wrap(err, "mmap sq ring")
	}
	sqPtr := uintptr(unsafe.Pointer(unsafe.SliceData(sqData)))

	sqeData, err := unix.Mmap(int(fd), ioUringOffSQEs,
		int(params.SqEntries)*int(unsafe.Sizeof(uringSQE{})),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Close(int(fd))
		return nil, Wrap(err, "mmap sqes")
	}
	sqePtr := uintptr(unsafe.Pointer(unsafe.SliceData(sqeData)))

	var cqPtr uintptr
	if params.Features&ioUringFeatSingleMMap != 0 {
		cqPtr = sqPtr
	} else {
		_ = unix.Close(int(fd))
		return nil, NewError(CategoryInvalidArgument, "kernel requires separate cq ring mmap, unsupported")
	}

	b := &uringBackend{
		fd: int32(fd),
		sq: uringSQRing{
			head:    (*uint32)(unsafe.Pointer(sqPtr + uintptr(params.SQOffsets.Head))),
			tail:    (*uint32)(unsafe.Pointer(sqPtr + uintptr(params.SQOffsets.Tail))),
			mask:    (*uint32)(unsafe.Pointer(sqPtr + uintptr(params.SQOffsets.RingMask))),
			entries: (*uint32)(unsafe.Pointer(sqPtr + uintptr(params.SQOffsets.RingEntries))),
			array:   sqPtr + uintptr(params.SQOffsets.Array),
			sqes:    sqePtr,
		},
		cq: uringCQRing{
			head:    (*uint32)(unsafe.Pointer(cqPtr + uintptr(params.CQOffsets.Head))),
			tail:    (*uint32)(unsafe.Pointer(cqPtr + uintptr(params.CQOffsets.Tail))),
			mask:    (*uint32)(unsafe.Pointer(cqPtr + uintptr(params.CQOffsets.RingMask))),
			entries: (*uint32)(unsafe.Pointer(cqPtr + uintptr(params.CQOffsets.RingEntries))),
			cqes:    cqPtr + uintptr(params.CQOffsets.CQEs),
		},
		pending: make(map[uint64]*operation),
	}

	eventFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(int(fd))
		return nil, Wrap(err, "eventfd")
	}
	b.eventFd = eventFd
	b.armWaker()
	if err := b.enterSubmit(); err != nil {
		_ = unix.Close(eventFd)
		_ = unix.Close(int(fd))
		return nil, err
	}

	return b, nil
}

// uringWakerToken is the sentinel UserData that identifies completions
// of the eventfd POLL_ADD rather than an in-flight [operation].
const uringWakerToken = ^uint64(0)

// uringCancelToken tags the completion of an IORING_OP_ASYNC_CANCEL SQE
// itself, distinct both from uringWakerToken and from the real token of
// whatever operation it targeted (carried in that SQE's Address field,
// not its UserData). Its own completion carries no useful result; the
// cancelled operation's own CQE, success or -ECANCELED, arrives
// separately through the normal pending-op path.
const uringCancelToken = ^uint64(0) - 1

// armWaker (re-)submits a one-shot POLL_ADD on the waker eventfd, so a
// concurrent Wake unblocks a Wait currently parked in io_uring_enter,
// the same role epollBackend's eventfd plays in its own epoll set.
func (b *uringBackend) armWaker() {
	sqe := uringSQE{
		Opcode:   uringOpPollAdd,
		Fd:       int32(b.eventFd),
		OpFlags:  unix.POLLIN,
		UserData: uringWakerToken,
	}
	b.pushSQE(&sqe)
}

func (b *uringBackend) Kind() BackendKind { return CompletionEngine }

func (b *uringBackend) Submit(op *operation) error {
	sqe := uringSQE{Fd: int32(op.fd), UserData: op.token}
	switch op.kind {
	case opAccept:
		sqe.Opcode = uringOpAccept
	case opRead:
		sqe.Opcode = uringOpRead
		if len(op.buf) > 0 {
			sqe.Address = uint64(uintptr(unsafe.Pointer(&op.buf[0])))
			sqe.Len = uint32(len(op.buf))
		}
	case opWrite:
		sqe.Opcode = uringOpWrite
		if len(op.buf) > 0 {
			sqe.Address = uint64(uintptr(unsafe.Pointer(&op.buf[0])))
			sqe.Len = uint32(len(op.buf))
		}
	case opConnect:
		// The connect(2) itself is already in flight by the time this op
		// is submitted (see AsyncConnect); POLL_ADD just waits for the fd
		// to become writable, the same signal epoll's EPOLLOUT gives.
		sqe.Opcode = uringOpPollAdd
		sqe.OpFlags = unix.POLLOUT
	case opClose:
		sqe.Opcode = uringOpClose
	case opTimer:
		sqe.Opcode = uringOpTimeout
		sqe.Fd = -1
		ts := unix.NsecToTimespec(time.Until(op.deadline).Nanoseconds())
		sqe.Address = uint64(uintptr(unsafe.Pointer(&ts)))
		sqe.Len = 1
	default:
		sqe.Opcode = uringOpNop
	}

	b.pending[op.token] = op
	b.pushSQE(&sqe)
	return b.enterSubmit()
}

// Cancel submits a best-effort IORING_OP_ASYNC_CANCEL targeting op's
// token. Per that opcode's ABI, the target's user_data goes in Address,
// not UserData; the cancel SQE's own completion is acknowledged through
// uringCancelToken and carries no result of its own. The targeted op's
// actual dispatch still happens through its own completion (CategoryCancelled
// on success, or its normal result if the cancel lost the race).
func (b *uringBackend) Cancel(op *operation) {
	sqe := uringSQE{
		Opcode:   uringOpAsyncCancel,
		Address:  op.token,
		UserData: uringCancelToken,
	}
	b.pushSQE(&sqe)
	_ = b.enterSubmit()
}

func (b *uringBackend) pushSQE(sqe *uringSQE) {
	for {
		tail := atomic.LoadUint32(b.sq.tail)
		if atomic.CompareAndSwapUint32(b.sq.tail, tail, tail+1) {
			slot := tail & *b.sq.mask
			sqes := unsafe.Slice((*uringSQE)(unsafe.Pointer(b.sq.sqes)), *b.sq.entries)
			sqes[slot] = *sqe
			array := unsafe.Slice((*uint32)(unsafe.Pointer(b.sq.array)), *b.sq.entries)
			array[slot] = slot
			return
		}
		runtime.Gosched()
	}
}

func (b *uringBackend) enterSubmit() error {
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(b.fd), 1, 0, 0, 0, 0)
	if errno != 0 {
		return FromErrno(errno)
	}
	return nil
}

// Wait blocks in io_uring_enter until at least one completion arrives
// (or timeout elapses), then drains every ready CQE, dispatching each
// operation's closure exactly once.
func (b *uringBackend) Wait(timeout time.Duration) error {
	// waitTimeoutToken tags the IORING_OP_TIMEOUT that bounds a positive
	// timeout; Offset 1 also completes it as soon as any other CQE arrives.
	const waitTimeoutToken = ^uint64(0) - 2
	toSubmit, toWait := uint32(0), uint32(1)
	var ts *unix.Timespec
	if timeout == 0 {
		toWait = 0
	} else if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
		b.pushSQE(&uringSQE{Opcode: uringOpTimeout, Fd: -1, Offset: 1, Len: 1,
			Address: uint64(uintptr(unsafe.Pointer(ts))), UserData: waitTimeoutToken})
		toSubmit = 1
	}

	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(b.fd),
		uintptr(toSubmit), uintptr(toWait), ioUringEnterGetEvents, 0, 0)
	runtime.KeepAlive(ts)
	if errno != 0 && errno != unix.EINTR {
		return FromErrno(errno)
	}

	rearmWaker := false
	for {
		cqe, ok := b.popCQE()
		if !ok {
			break
		}
		switch {
		case cqe.UserData == uringWakerToken:
			buf := make([]byte, 8)
			_, _ = unix.Read(b.eventFd, buf)
			rearmWaker = true
		case cqe.UserData == uringCancelToken:
			// Best-effort ack of the ASYNC_CANCEL SQE itself; the
			// targeted operation's own completion arrives separately.
		case cqe.UserData == waitTimeoutToken:
			// The wait bound expired or was met; nothing to dispatch.
		default:
			op, found := b.pending[cqe.UserData]
			if !found {
				continue
			}
			delete(b.pending, cqe.UserData)
			if cqe.Res < 0 {
				op.dispatch(0, FromErrno(unix.Errno(-cqe.Res)))
			} else {
				op.dispatch(int(cqe.Res), nil)
			}
		}
	}
	if rearmWaker {
		b.armWaker()
		return b.enterSubmit()
	}
	return nil
}

func (b *uringBackend) popCQE() (uringCQE, bool) {
	for {
		head, tail := atomic.LoadUint32(b.cq.head), atomic.LoadUint32(b.cq.tail)
		if head == tail {
			return uringCQE{}, false
		}
		if atomic.CompareAndSwapUint32(b.cq.head, head, head+1) {
			cqes := unsafe.Slice((*uringCQE)(unsafe.Pointer(b.cq.cqes)), *b.cq.entries)
			return cqes[head&*b.cq.mask], true
		}
		runtime.Gosched()
	}
}

func (b *uringBackend) Wake() error {
	buf := make([]byte, 8)
	buf[0] = 1
	_, err := unix.Write(b.eventFd, buf)
	if err != nil {
		return Wrap(err, "eventfd write")
	}
	return nil
}

func (b *uringBackend) Close() error {
	_ = unix.Close(b.eventFd)
	return unix.Close(int(b.fd))
}
