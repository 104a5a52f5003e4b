package reactorio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureSetResultOnce(t *testing.T) {
	f := NewFuture[int]()
	f.SetResult(1, nil)
	f.SetResult(2, nil)

	v, err := f.Result()
	if err != nil || v != 1 {
		t.Errorf("got (%d, %v), want (1, nil)", v, err)
	}
}

func TestFutureAwait(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		f := NewFuture[string]()
		RunningContext(ctx).RunCallback(func() {
			f.SetResult("hello", nil)
		})
		v, err := f.Await(ctx)
		if err != nil {
			return err
		}
		if v != "hello" {
			t.Errorf("got %q, want %q", v, "hello")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestFuturePollObservesResolutionWithoutAddResultCallback(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		f := NewFuture[int]()
		c.RunCallback(func() { f.SetResult(7, nil) })

		// Drive f with the poll/ctx.Poll alternation §4.F/§8 describe,
		// never touching AddResultCallback.
		for {
			if poll := f.Poll(); poll.Ready {
				if poll.Value != 7 {
					t.Errorf("got %d, want 7", poll.Value)
				}
				return nil
			} else if poll.Err != nil {
				return poll.Err
			}
			if err := c.Poll(); err != nil {
				return err
			}
		}
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestFuturePollNeverRegressesAfterReady(t *testing.T) {
	f := Ready(42)
	first := f.Poll()
	second := f.Poll()
	if first != second {
		t.Errorf("polling twice after Ready gave different results: %+v vs %+v", first, second)
	}
}

func TestFutureReadyAndFailed(t *testing.T) {
	if v, err := Ready(42).Result(); err != nil || v != 42 {
		t.Errorf("Ready: got (%d, %v)", v, err)
	}

	wantErr := errors.New("boom")
	if _, err := Failed[int](wantErr).Result(); !errors.Is(err, wantErr) {
		t.Errorf("Failed: got %v, want %v", err, wantErr)
	}
}

func TestThen(t *testing.T) {
	base := Ready(21)
	doubled := Then(base, func(v int) (int, error) { return v * 2, nil })

	v, err := doubled.Result()
	if err != nil || v != 42 {
		t.Errorf("got (%d, %v), want (42, nil)", v, err)
	}
}

func TestThenPropagatesError(t *testing.T) {
	wantErr := errors.New("source failed")
	base := Failed[int](wantErr)
	next := Then(base, func(v int) (int, error) { return v, nil })

	if _, err := next.Result(); !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestLoopRestartsUntilError(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		wantErr := errors.New("stop")
		iterations := 0

		_, err := Loop(0, func(count int) *Future[int] {
			iterations++
			if count >= 3 {
				return Failed[int](wantErr)
			}
			return Ready(count + 1)
		}).Await(ctx)

		if !errors.Is(err, wantErr) {
			t.Errorf("got %v, want %v", err, wantErr)
		}
		if iterations != 4 {
			t.Errorf("got %d iterations, want 4", iterations)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestMakePollsUntilReady(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		ticks := 0

		v, err := Make(c, 0, func(state *int) FuturePoll[int] {
			ticks++
			*state++
			if *state >= 3 {
				return FuturePoll[int]{Ready: true, Value: *state}
			}
			return FuturePoll[int]{}
		}).Await(ctx)
		if err != nil {
			return err
		}
		if v != 3 {
			t.Errorf("got %d, want 3", v)
		}
		if ticks != 3 {
			t.Errorf("got %d ticks, want 3", ticks)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestMakePropagatesError(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		wantErr := errors.New("poll failed")

		_, err := Make(c, 0, func(state *int) FuturePoll[int] {
			return FuturePoll[int]{Err: wantErr}
		}).Await(ctx)
		if !errors.Is(err, wantErr) {
			t.Errorf("got %v, want %v", err, wantErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestPendingNeverResolves(t *testing.T) {
	p := Pending[int]()
	if p.HasResult() {
		t.Errorf("Pending future resolved on its own")
	}
}

func TestTimeoutWithResolvesBeforeDeadline(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		f := NewFuture[int]()
		c.RunCallback(func() { f.SetResult(1, nil) })

		v, err := TimeoutWith(f, c, time.Hour, func() *Future[int] {
			t.Errorf("onTimeout fired despite f resolving first")
			return Ready(99)
		}).Await(ctx)
		if err != nil {
			return err
		}
		if v != 1 {
			t.Errorf("got %d, want 1", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestTimeoutWithFiresOnDeadline(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		c := RunningContext(ctx)
		f := NewFuture[int]() // never resolves

		v, err := TimeoutWith(f, c, time.Millisecond, func() *Future[int] {
			return Ready(99)
		}).Await(ctx)
		if err != nil {
			return err
		}
		if v != 99 {
			t.Errorf("got %d, want 99", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestShieldSurvivesCancellation(t *testing.T) {
	f := NewFuture[int]()
	shield := f.Shield()
	shield.Cancel(context.Canceled)

	if f.HasResult() {
		t.Errorf("cancelling the shield cancelled the original future")
	}

	f.SetResult(7, nil)
	if !f.HasResult() {
		t.Errorf("original future never resolved")
	}
}
