// Package retry provides the one retry policy shared by every external call
// site: capped exponential backoff with jitter and a caller-supplied
// retryable-error predicate.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type Policy struct {
	// MaxAttempts is the total number of tries including the first. Values
	// below 1 are treated as 1.
	MaxAttempts int

	// Initial is the sleep before the first retry.
	Initial time.Duration

	// Max caps the exponential backoff.
	Max time.Duration

	// JitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	JitterFrac float64

	// Retryable decides whether an error is worth another attempt. nil means
	// nothing is retryable.
	Retryable func(error) bool
}

// Default is the policy used for provider calls when nothing else is
// configured.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		Initial:     500 * time.Millisecond,
		Max:         8 * time.Second,
		JitterFrac:  0.2,
		Retryable:   retryable,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = 200 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 2 * time.Second
	}
	return p
}

// Do runs fn until it succeeds, exhausts the attempt budget, hits a
// non-retryable error, or the context is done. The last error is returned
// unwrapped so callers can keep classifying it with errors.As.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if p.Retryable == nil || !p.Retryable(err) || attempt == p.MaxAttempts-1 {
			return err
		}

		t := time.NewTimer(p.sleep(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func (p Policy) sleep(attempt int) time.Duration {
	sleep := p.Initial
	for i := 0; i < attempt && sleep < p.Max; i++ {
		sleep *= 2
		if sleep > p.Max {
			sleep = p.Max
			break
		}
	}
	if p.JitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*p.JitterFrac
	return time.Duration(float64(sleep) * j)
}
