package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/campaignkit/dispatch-service/pkg/brevo"
)

func testPolicy(maxRetries int) (RetryPolicy, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		},
	}, sleeps
}

func TestRetryPolicy_SucceedsFirstAttempt(t *testing.T) {
	policy, sleeps := testPolicy(3)

	calls := 0
	err := policy.Do(context.Background(), "test", func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", *sleeps)
	}
}

func TestRetryPolicy_ExponentialBackoff(t *testing.T) {
	policy, sleeps := testPolicy(4)

	calls := 0
	err := policy.Do(context.Background(), "test", func() error {
		calls++
		return &brevo.APIError{Status: 503, Body: "unavailable"}
	})

	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, (*sleeps)[i])
		}
	}
}

func TestRetryPolicy_DelayCappedAtMax(t *testing.T) {
	policy, _ := testPolicy(10)
	policy.MaxDelay = 5 * time.Second

	if got := policy.delayFor(0); got != 2*time.Second {
		t.Errorf("attempt 0: expected 2s, got %v", got)
	}
	if got := policy.delayFor(1); got != 4*time.Second {
		t.Errorf("attempt 1: expected 4s, got %v", got)
	}
	if got := policy.delayFor(2); got != 5*time.Second {
		t.Errorf("attempt 2: expected cap 5s, got %v", got)
	}
	if got := policy.delayFor(9); got != 5*time.Second {
		t.Errorf("attempt 9: expected cap 5s, got %v", got)
	}
}

func TestRetryPolicy_PermanentErrorStopsImmediately(t *testing.T) {
	policy, sleeps := testPolicy(3)

	calls := 0
	err := policy.Do(context.Background(), "test", func() error {
		calls++
		return &brevo.APIError{Status: 400, Body: "bad payload"}
	})

	if err == nil {
		t.Fatalf("expected permanent error to surface")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent error, got %d", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no backoff sleeps, got %v", *sleeps)
	}
}

func TestRetryPolicy_RetryAfterHintOverridesOneDelay(t *testing.T) {
	policy, sleeps := testPolicy(3)

	calls := 0
	_ = policy.Do(context.Background(), "test", func() error {
		calls++
		if calls == 1 {
			return &brevo.APIError{Status: 429, Body: "slow down", RetryAfter: 30 * time.Second}
		}
		return &brevo.APIError{Status: 503, Body: "unavailable"}
	})

	// First delay follows the hint; the second returns to the computed
	// sequence rather than continuing from the hint.
	want := []time.Duration{30 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, (*sleeps)[i])
		}
	}
}

func TestRetryPolicy_RecoversMidway(t *testing.T) {
	policy, _ := testPolicy(3)

	calls := 0
	err := policy.Do(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return &brevo.APIError{Status: 500, Body: "flaky"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicy_CancelledContextStopsSleep(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := policy.Do(ctx, "test", func() error {
		return &brevo.APIError{Status: 503, Body: "unavailable"}
	})

	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
