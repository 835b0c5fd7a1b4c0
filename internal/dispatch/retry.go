package dispatch

import (
	"context"
	"time"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

// RetryPolicy re-invokes an operation with exponential backoff. MaxRetries is
// the total attempt count, so the operation is retried at most MaxRetries-1
// times. A permanent error (per Classify) stops the loop immediately.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// sleep is injectable so tests never block. Defaults to a timer that
	// honors context cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(cfg environments.DispatchConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
		MaxDelay:     cfg.MaxRetryDelay,
	}
}

// Do runs op until it succeeds, fails permanently, or the attempt budget is
// exhausted; in the last two cases the final error is returned and the caller
// decides whether that is fatal to the whole operation or just one unit.
// The delay doubles each attempt and is capped at MaxDelay. When the failure
// carries a provider Retry-After hint, the hint replaces the computed delay for
// that attempt only; the doubling sequence is not reset.
func (p RetryPolicy) Do(ctx context.Context, label string, op func() error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		retryable, msg := Classify(err)
		if !retryable {
			logger.Errorf("Permanent error in %s: %s", label, msg)
			return err
		}

		if attempt < maxRetries-1 {
			delay := p.delayFor(attempt)
			if hint := RetryAfterHint(err); hint > 0 {
				delay = hint
			}

			logger.Warnf("Attempt %d/%d failed for %s: %s. Retrying in %v...",
				attempt+1, maxRetries, label, msg, delay)

			if err := p.doSleep(ctx, delay); err != nil {
				return err
			}
		} else {
			logger.Errorf("All %d attempts failed for %s: %s", maxRetries, label, msg)
		}
	}

	return lastErr
}

func (p RetryPolicy) delayFor(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
