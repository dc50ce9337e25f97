// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/praxislabs/praxis/pkg/errors"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(time.Millisecond)

	calls := 0
	err := cfg.Do(context.Background(), func(attempt int) error {
		calls++
		if calls < 3 {
			return errors.New(errors.CodeCapabilityTransient, "rate limited", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	cfg := DefaultRetryConfig().WithMaxAttempts(5).WithInitialDelay(time.Millisecond)

	calls := 0
	err := cfg.Do(context.Background(), func(attempt int) error {
		calls++
		return errors.New(errors.CodeCapabilityPermanent, "bad arguments upstream", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent error should not be retried, got %d calls", calls)
	}
	if errors.CodeOf(err) != errors.CodeCapabilityPermanent {
		t.Errorf("unexpected code: %s", errors.CodeOf(err))
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(time.Millisecond)

	calls := 0
	err := cfg.Do(context.Background(), func(attempt int) error {
		calls++
		return errors.New(errors.CodeCapabilityTransient, "still rate limited", nil)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestRetryUntypedErrorsNotRetried(t *testing.T) {
	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(time.Millisecond)

	calls := 0
	_ = cfg.Do(context.Background(), func(attempt int) error {
		calls++
		return stderrors.New("plain error")
	})
	if calls != 1 {
		t.Errorf("untyped errors default to non-recoverable, got %d calls", calls)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	cfg := DefaultRetryConfig().WithMaxAttempts(10).WithInitialDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := cfg.Do(ctx, func(attempt int) error {
		return errors.New(errors.CodeCapabilityTransient, "transient", nil)
	})
	if errors.CodeOf(err) != errors.CodeTimeout {
		t.Errorf("expected timeout code from cancelled retry, got %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if errors.CodeOf(err) != errors.CodeTimeout {
		t.Errorf("expected timeout code, got %v", err)
	}

	err = WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected nil for fast fn, got %v", err)
	}
}
