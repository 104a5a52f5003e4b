package reactorio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSpawnTaskResult(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		task := SpawnTask(ctx, func(ctx context.Context) (int, error) {
			if err := Sleep(ctx, time.Millisecond); err != nil {
				return 0, err
			}
			return 42, nil
		})

		v, err := task.Await(ctx)
		if err != nil {
			return err
		}
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSpawnTaskPropagatesError(t *testing.T) {
	wantErr := errors.New("task failed")
	err := runContext(t, time.Second, func(ctx context.Context) error {
		task := SpawnTask(ctx, func(ctx context.Context) (int, error) {
			return 0, wantErr
		})
		_, err := task.Await(ctx)
		if !errors.Is(err, wantErr) {
			t.Errorf("got %v, want %v", err, wantErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestTaskCancelStopsSleep(t *testing.T) {
	err := runContext(t, time.Second, func(ctx context.Context) error {
		task := SpawnTask(ctx, func(ctx context.Context) (int, error) {
			if err := Sleep(ctx, time.Hour); err != nil {
				return 0, err
			}
			return 1, nil
		})

		RunningContext(ctx).RunCallback(func() {
			task.Cancel(context.Canceled)
		})

		_, err := task.Await(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}
