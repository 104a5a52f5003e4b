package reactorio

import (
	"context"
	"iter"
)

// Iterable constrains a type to the shape of a [iter.Seq]-compatible
// single-valued range-over-func sequence. Grounded on iter.go's Iterable.
type Iterable[V any] interface {
	~func(func(V) bool)
}

// Iterable2 is the two-valued analogue of [Iterable].
type Iterable2[K, V any] interface {
	~func(func(K, V) bool)
}

// Iterator is a plain synchronous sequence, distinguished from
// [AsyncIterable] by carrying no per-step error.
type Iterator[V any] iter.Seq[V]

// Collect drains i into a slice.
func (i Iterator[V]) Collect() []V {
	var vs []V
	for v := range i {
		vs = append(vs, v)
	}
	return vs
}

// MapIterator is a two-valued sequence keyed by a comparable K.
type MapIterator[K comparable, V any] iter.Seq2[K, V]

// Collect drains mi into a map, last write wins on duplicate keys.
func (mi MapIterator[K, V]) Collect() map[K]V {
	m := make(map[K]V)
	for k, v := range mi {
		m[k] = v
	}
	return m
}

// AsSeq adapts a slice into an [Iterator].
func AsSeq[V any, VS ~[]V](slice VS) Iterator[V] {
	return func(yield func(V) bool) {
		for i := range slice {
			if !yield(slice[i]) {
				return
			}
		}
	}
}

// AsSeq2 adapts a map into a [MapIterator]. Iteration order is
// unspecified, matching Go's native map range.
func AsSeq2[K comparable, V any](m map[K]V) MapIterator[K, V] {
	return func(yield func(K, V) bool) {
		for k, v := range m {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Range yields 0..count-1.
func Range(count int) Iterator[int] {
	return func(yield func(int) bool) {
		for i := 0; i < count; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Count yields start, start+1, ... without end.
func Count(start int) Iterator[int] {
	return func(yield func(int) bool) {
		for i := start; ; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Zip pairs values from it1 and it2, stopping as soon as either is
// exhausted.
func Zip[T, U any, TI Iterable[T], UI Iterable[U]](it1 TI, it2 UI) iter.Seq2[T, U] {
	return func(yield func(T, U) bool) {
		next1, stop1 := iter.Pull(iter.Seq[T](it1))
		next2, stop2 := iter.Pull(iter.Seq[U](it2))
		defer stop1()
		defer stop2()

		for {
			v1, ok1 := next1()
			v2, ok2 := next2()
			if !ok1 || !ok2 || !yield(v1, v2) {
				return
			}
		}
	}
}

// ZipLongest pairs values from it1 and it2, continuing with zero values
// until both are exhausted.
func ZipLongest[T, U any, TI Iterable[T], UI Iterable[U]](it1 TI, it2 UI) iter.Seq2[T, U] {
	return func(yield func(T, U) bool) {
		next1, stop1 := iter.Pull(iter.Seq[T](it1))
		next2, stop2 := iter.Pull(iter.Seq[U](it2))
		defer stop1()
		defer stop2()

		for {
			v1, ok1 := next1()
			v2, ok2 := next2()
			if (!ok1 && !ok2) || !yield(v1, v2) {
				return
			}
		}
	}
}

// Enumerate pairs it with its own index, starting at start.
func Enumerate[T any, TS Iterable[T]](start int, it TS) iter.Seq2[int, T] {
	return Zip(Count(start), it)
}

// Map applies f to every value of it.
func Map[T, U any, TS Iterable[T]](it TS, f func(T) U) Iterator[U] {
	return func(yield func(U) bool) {
		for t := range it {
			if !yield(f(t)) {
				return
			}
		}
	}
}

// FlatMap applies f to every value of it and flattens the results.
func FlatMap[T, U any, TS Iterable[T], US Iterable[U]](it TS, f func(T) US) Iterator[U] {
	return func(yield func(U) bool) {
		for t := range it {
			for u := range f(t) {
				if !yield(u) {
					return
				}
			}
		}
	}
}

// Filter keeps only the values of it for which f reports true.
func Filter[T any, TS Iterable[T]](it TS, f func(T) bool) Iterator[T] {
	return func(yield func(T) bool) {
		for t := range it {
			if f(t) && !yield(t) {
				return
			}
		}
	}
}

// Uniq drops values of it already seen once, by equality.
func Uniq[V comparable, VS Iterable[V]](it VS) Iterator[V] {
	return func(yield func(V) bool) {
		m := make(map[V]struct{})
		for v := range it {
			if _, ok := m[v]; !ok {
				if !yield(v) {
					return
				}
				m[v] = struct{}{}
			}
		}
	}
}

// Chain concatenates its iterators end to end.
func Chain[T any, TS Iterable[T]](its ...TS) Iterator[T] {
	return func(yield func(T) bool) {
		for _, it := range its {
			for t := range it {
				if !yield(t) {
					return
				}
			}
		}
	}
}

// Flatten concatenates a sequence of iterators into one, yielding every
// element of the first, then the second, and so on.
func Flatten[T any, TS Iterable[T]](its iter.Seq[TS]) Iterator[T] {
	return func(yield func(T) bool) {
		for it := range its {
			for t := range it {
				if !yield(t) {
					return
				}
			}
		}
	}
}

// AsyncIterable is a [iter.Seq2] whose second value is an error instead
// of a second payload: each step may fail instead of yielding. Grounded
// on iter.go's AsyncIterable, the range-over-func basis for [Stream],
// [Stream.Chunks] and [Stream.Lines].
type AsyncIterable[T any] iter.Seq2[T, error]

// ForEach calls f with every value of ai, stopping at the first error
// from either ai itself or f.
func (ai AsyncIterable[T]) ForEach(f func(T) error) error {
	for v, err := range ai {
		if err != nil {
			return err
		}
		if err := f(v); err != nil {
			return err
		}
	}
	return nil
}

// UntilErr adapts ai into a plain [Iterator], writing the first error
// encountered (including io.EOF) into *err and stopping there. Intended
// for a "for v := range ai.UntilErr(&err)" loop, checked once after the
// range completes.
func (ai AsyncIterable[T]) UntilErr(err *error) Iterator[T] {
	return func(yield func(T) bool) {
		for v, thisErr := range ai {
			if thisErr != nil {
				*err = thisErr
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// AsyncIter builds an AsyncIterable from a push-style generator: f calls
// yield with each value in turn, stopping and returning context.Canceled
// if the consumer stopped ranging early.
func AsyncIter[T any](f func(yield func(T) error) error) AsyncIterable[T] {
	return func(yield func(T, error) bool) {
		var earlyStop bool
		if err := f(func(val T) error {
			if !yield(val, nil) {
				earlyStop = true
				return context.Canceled
			}
			return nil
		}); err != nil && !earlyStop {
			var zero T
			yield(zero, err)
		}
	}
}
