package reactorio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPromiseResolveOnce(t *testing.T) {
	state := NewState[int]()
	promise := NewPromise(state)

	promise.Resolve(1)
	promise.Resolve(2)

	v, err, ready := state.Poll()
	if !ready || err != nil || v != 1 {
		t.Errorf("got (%d, %v, %v), want (1, nil, true)", v, err, ready)
	}
}

func TestPromiseRejectAfterResolveIsNoop(t *testing.T) {
	state := NewState[int]()
	promise := NewPromise(state)

	promise.Resolve(1)
	promise.Reject(errors.New("too late"))

	v, err, ready := state.Poll()
	if !ready || err != nil || v != 1 {
		t.Errorf("got (%d, %v, %v), want (1, nil, true)", v, err, ready)
	}
}

// TestPollStateFeedsOneCharPerTick mirrors
// original_source/examples/07-promise-future.cpp's fan-in example: a
// producer appends one character per reactor tick and resolves the
// shared state with the whole string after the last one, while a
// consumer polling it observes pending until then.
func TestPollStateFeedsOneCharPerTick(t *testing.T) {
	const text = "This is an example file, let us read it."

	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		state := NewState[string]()
		promise := NewPromise(state)

		var data []byte
		var index int
		var produce func()
		produce = func() {
			if index >= len(text) {
				promise.Resolve(string(data))
				return
			}
			data = append(data, text[index])
			index++
			c.ScheduleCallback(0, produce)
		}
		c.RunCallback(produce)

		result, err := PollState(c, state).Await(ctx)
		if err != nil {
			return err
		}
		if result != text {
			t.Errorf("got %q, want %q", result, text)
		}
		if index != len(text) {
			t.Errorf("expected exactly %d ticks of production, got %d", len(text), index)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
