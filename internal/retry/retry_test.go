package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"proxima/internal/retry"
)

func TestDoStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	out := retry.Do(context.Background(), retry.Policy{Attempts: 5, Initial: time.Millisecond}, func(context.Context, int) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if !out.OK() || out.Attempts != 3 || calls != 3 {
		t.Fatalf("unexpected outcome %+v after %d calls", out, calls)
	}
}

func TestDoReportsExhaustionWithLastError(t *testing.T) {
	last := errors.New("still down")
	out := retry.Do(context.Background(), retry.Policy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}, func(_ context.Context, attempt int) error {
		if attempt == 3 {
			return last
		}
		return errors.New("down")
	})
	if out.Status != retry.Exhausted || out.Attempts != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !errors.Is(out.Err, last) {
		t.Fatalf("expected last error, got %v", out.Err)
	}
}

func TestDoHonorsPermanentErrors(t *testing.T) {
	cause := errors.New("binary missing")
	calls := 0
	out := retry.Do(context.Background(), retry.Policy{Attempts: 5}, func(context.Context, int) error {
		calls++
		return retry.Permanent(cause)
	})
	if calls != 1 || out.Status != retry.Exhausted {
		t.Fatalf("expected one attempt, got %d (%+v)", calls, out)
	}
	if !errors.Is(out.Err, cause) || !errors.Is(out.Err, retry.ErrStop) {
		t.Fatalf("permanent error lost its chain: %v", out.Err)
	}
}

func TestDoCancelsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := retry.Do(ctx, retry.Policy{Attempts: 10, Initial: time.Hour}, func(context.Context, int) error {
		cancel()
		return errors.New("fail")
	})
	if out.Status != retry.Canceled || out.Attempts != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", out.Err)
	}
}

func TestDoWithZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	out := retry.Do(context.Background(), retry.Policy{}, func(context.Context, int) error {
		calls++
		return errors.New("nope")
	})
	if calls != 1 || out.Status != retry.Exhausted {
		t.Fatalf("expected a single attempt, got %d (%+v)", calls, out)
	}
}
