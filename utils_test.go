package reactorio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueuePushBeforeGet(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		var q Queue[int]
		q.Push(1)
		v, err := q.Get().Await(ctx)
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

func TestQueueGetBeforePush(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		var q Queue[int]
		fut := q.Get()
		RunningContext(ctx).RunCallback(func() { q.Push(9) })

		v, err := fut.Await(ctx)
		if err != nil {
			return err
		}
		if v != 9 {
			t.Errorf("got %d, want 9", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestMutexSerializes(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		var m Mutex
		var order []int

		for i := 0; i < 2; i++ {
			i := i
			SpawnTask(ctx, func(ctx context.Context) (any, error) {
				if err := m.Lock(ctx); err != nil {
					return nil, err
				}
				defer m.Unlock()
				order = append(order, i)
				if err := Sleep(ctx, time.Millisecond); err != nil {
					return nil, err
				}
				return nil, nil
			})
		}

		for i := 0; i < 2; i++ {
			if err := Sleep(ctx, 5*time.Millisecond); err != nil {
				return err
			}
		}
		if len(order) != 2 {
			t.Errorf("expected both tasks to run, got order %v", order)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSleepDuration(t *testing.T) {
	const wantDuration = 20 * time.Millisecond
	err := runContext(t, time.Second, func(ctx context.Context) error {
		start := time.Now()
		if err := Sleep(ctx, wantDuration); err != nil {
			return err
		}
		if elapsed := time.Since(start); elapsed < wantDuration {
			t.Errorf("returned after %s, wanted at least %s", elapsed, wantDuration)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestGetFirstResult(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		fast := func(ctx context.Context) (string, error) {
			if err := Sleep(ctx, time.Millisecond); err != nil {
				return "", err
			}
			return "fast", nil
		}
		slow := func(ctx context.Context) (string, error) {
			if err := Sleep(ctx, 50*time.Millisecond); err != nil {
				return "", err
			}
			return "slow", nil
		}

		v, err := GetFirstResult(ctx, fast, slow)
		if err != nil {
			return err
		}
		if v != "fast" {
			t.Errorf("got %q, want %q", v, "fast")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestGetFirstResultAllFail(t *testing.T) {
	wantErr := errors.New("both failed")
	err := runContext(t, time.Second, func(ctx context.Context) error {
		fails := func(ctx context.Context) (int, error) { return 0, wantErr }
		_, err := GetFirstResult(ctx, fails, fails)
		if !errors.Is(err, wantErr) {
			t.Errorf("got %v, want %v", err, wantErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestWaitClassifiesFailureCategory(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		a := NewFuture[any]()
		b := NewFuture[any]()

		waitFut := Wait(WaitFirstError, a, b)
		RunningContext(ctx).RunCallback(func() {
			a.SetResult(nil, NewError(CategoryTimedOut, "slow peer"))
		})

		_, err := waitFut.Await(ctx)
		if !errors.Is(err, NewError(CategoryTimedOut, "")) {
			t.Errorf("got %v, want a CategoryTimedOut error", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestGetFirstResultAllFailClassifiesCategory(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		fails := func(ctx context.Context) (int, error) {
			return 0, NewError(CategoryConnectionAborted, "refused")
		}
		_, err := GetFirstResult(ctx, fails, fails)
		if !errors.Is(err, NewError(CategoryConnectionAborted, "")) {
			t.Errorf("got %v, want a CategoryConnectionAborted error", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		_, err := Go(ctx, func(ctx context.Context) (int, error) {
			panic("boom")
		}).Await(ctx)
		if !errors.Is(err, NewError(CategoryIO, "")) {
			t.Errorf("got %v, want a CategoryIO error", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestGo(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		result, err := Go(ctx, func(ctx context.Context) (int, error) {
			return 7, nil
		}).Await(ctx)
		if err != nil {
			return err
		}
		if result != 7 {
			t.Errorf("got %d, want 7", result)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestWaitAll(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		a := NewFuture[any]()
		b := NewFuture[any]()

		waitFut := Wait(WaitAll, a, b)

		RunningContext(ctx).RunCallback(func() { a.SetResult(nil, nil) })
		RunningContext(ctx).RunCallback(func() { b.SetResult(nil, nil) })

		if _, err := waitFut.Await(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
