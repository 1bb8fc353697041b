package llm

import (
	"context"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         0.001,
		MaxDelay:          0.001,
		BackoffMultiplier: 1,
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
	}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for i, want := range expected {
		if got := policy.Delay(i); got != want {
			t.Errorf("attempt %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 5.0, BackoffMultiplier: 2.0, MaxDelay: 10.0}
	if got := policy.Delay(8); got != 10*time.Second {
		t.Errorf("expected 10s cap, got %v", got)
	}
}

func TestRetryPolicyDelayJitterRange(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 60.0, Jitter: true}
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestRetryRecoversTransientError(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &UpstreamError{ClientError: ClientError{Message: "unavailable"}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Errorf("expected ok after 3 calls, got %q after %d", result, calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ClientError: ClientError{Message: "bad key"}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error must not be retried, got %d calls", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ClientError: ClientError{Message: "limited"}}
	})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if calls != 3 { // initial + 2 retries
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	after := 0.001
	var observed time.Duration
	policy := fastPolicy(1)
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		observed = delay
	}

	calls := 0
	_, _ = Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &RateLimitError{
				ClientError: ClientError{Message: "limited"},
				RetryAfter:  &after,
			}
		}
		return "ok", nil
	})
	want := time.Duration(after*float64(time.Second)) + 500*time.Millisecond
	if observed != want {
		t.Errorf("expected delay %v from retry-after, got %v", want, observed)
	}
}

func TestRetryCancelledDuringWait(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: 1.0, BackoffMultiplier: 1, MaxDelay: 1.0}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &UpstreamError{ClientError: ClientError{Message: "down"}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls > 2 {
		t.Errorf("expected cancellation to cut retries short, got %d calls", calls)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", p.MaxRetries)
	}
	if p.BaseDelay != 5.0 || p.MaxDelay != 10.0 {
		t.Errorf("expected 5s base / 10s cap, got %v / %v", p.BaseDelay, p.MaxDelay)
	}
	if !p.Jitter {
		t.Error("expected jitter enabled")
	}
}
