package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scoutline/startup-enricher/internal/retry"
)

var errTransient = errors.New("transient")

func quickPolicy(maxAttempts int, retryable func(error) bool) retry.Policy {
	return retry.Policy{
		MaxAttempts: maxAttempts,
		Initial:     time.Millisecond,
		Max:         2 * time.Millisecond,
		Retryable:   retryable,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	err := quickPolicy(3, func(error) bool { return true }).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	calls := 0
	err := quickPolicy(5, func(err error) bool { return errors.Is(err, errTransient) }).
		Do(context.Background(), func(context.Context) error {
			calls++
			return permanent
		})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error retried %d times", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := quickPolicy(3, func(error) bool { return true }).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Policy{
		MaxAttempts: 10,
		Initial:     50 * time.Millisecond,
		Max:         50 * time.Millisecond,
		Retryable:   func(error) bool { return true },
	}.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDoZeroValuePolicyRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("zero-value policy ran %d times", calls)
	}
}
