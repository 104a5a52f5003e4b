package reactorio

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type timerEntry[K constraints.Ordered, T any] struct {
	key   K
	seq   uint64
	value T
	index int
}

type timerHeap[K constraints.Ordered, T any] []*timerEntry[K, T]

func (h timerHeap[K, T]) Len() int { return len(h) }

func (h timerHeap[K, T]) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap[K, T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap[K, T]) Push(x any) {
	e := x.(*timerEntry[K, T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap[K, T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TimerQueue is a generic min-priority queue keyed by an ordered
// deadline (typically a UnixNano timestamp), used by the reactor to
// find its next wakeup without scanning every pending timeout on each
// tick.
type TimerQueue[K constraints.Ordered, T any] struct {
	h   timerHeap[K, T]
	seq uint64
}

// NewTimerQueue returns an empty TimerQueue.
func NewTimerQueue[K constraints.Ordered, T any]() *TimerQueue[K, T] {
	return &TimerQueue[K, T]{}
}

// Push inserts value under key, breaking ties between equal keys in
// insertion order.
func (q *TimerQueue[K, T]) Push(key K, value T) {
	q.seq++
	heap.Push(&q.h, &timerEntry[K, T]{key: key, seq: q.seq, value: value})
}

// Peek returns the earliest entry without removing it.
func (q *TimerQueue[K, T]) Peek() (key K, value T, ok bool) {
	if len(q.h) == 0 {
		return key, value, false
	}
	top := q.h[0]
	return top.key, top.value, true
}

// Pop removes and returns the earliest entry.
func (q *TimerQueue[K, T]) Pop() (key K, value T, ok bool) {
	if len(q.h) == 0 {
		return key, value, false
	}
	top := heap.Pop(&q.h).(*timerEntry[K, T])
	return top.key, top.value, true
}

// Len reports how many entries remain.
func (q *TimerQueue[K, T]) Len() int {
	return len(q.h)
}
