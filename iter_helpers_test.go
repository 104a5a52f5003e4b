package reactorio_test

import (
	"errors"
	"fmt"

	"github.com/arkestra/reactorio"
)

func ExampleMap() {
	it := reactorio.Map(reactorio.Range(5), func(v int) int { return v * v })
	fmt.Println(it.Collect())
	// Output:
	// [0 1 4 9 16]
}

func ExampleChain() {
	it := reactorio.Chain(
		reactorio.AsSeq([]int{1, 2, 3}),
		reactorio.AsSeq([]int{4, 5}),
	)
	fmt.Println(it.Collect())
	// Output:
	// [1 2 3 4 5]
}

func ExampleFlatten() {
	it := reactorio.Flatten(func(yield func(reactorio.Iterator[int]) bool) {
		_ = yield(reactorio.AsSeq([]int{1, 2, 3})) &&
			yield(reactorio.AsSeq([]int{4, 5}))
	})
	fmt.Println(it.Collect())
	// Output:
	// [1 2 3 4 5]
}

func ExampleFilter() {
	it := reactorio.Filter(reactorio.Range(10), func(v int) bool { return v%2 == 0 })
	fmt.Println(it.Collect())
	// Output:
	// [0 2 4 6 8]
}

func ExampleAsyncIter() {
	it := reactorio.AsyncIter(func(yield func(int) error) error {
		for i := 0; i < 3; i++ {
			if err := yield(i); err != nil {
				return err
			}
		}
		return errors.New("exhausted")
	})

	var err error
	for v := range it.UntilErr(&err) {
		fmt.Println(v)
	}
	fmt.Println(err)
	// Output:
	// 0
	// 1
	// 2
	// exhausted
}
