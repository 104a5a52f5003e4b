package reactorio

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runContext drives main to completion on a fresh [Context], failing
// the test if it doesn't finish within timeout. Grounded on loop_test.go's
// testEventLoop helper.
func runContext(t *testing.T, timeout time.Duration, main func(ctx context.Context) error) error {
	t.Helper()

	c, err := NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err = c.Run(ctx, main)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deadline exceeded")
	}
	return err
}
