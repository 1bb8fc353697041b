package llm

import (
	"context"
	"testing"
	"time"
)

// mockClient is a scripted Client for tests.
type mockClient struct {
	calls     int
	failUntil int // calls before failUntil return failErr
	failErr   error
	response  *Response
}

func (m *mockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.calls++
	if m.calls <= m.failUntil {
		return nil, m.failErr
	}
	if m.response != nil {
		return m.response, nil
	}
	return &Response{Text: "done", FinishReason: FinishStop}, nil
}

func TestRetryingClientSuccess(t *testing.T) {
	inner := &mockClient{response: &Response{Text: "hi", FinishReason: FinishStop}}
	client := NewRetryingClient(inner, WithRPMLimit(0), WithRetryPolicy(fastPolicy(2)))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("hello")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi" {
		t.Errorf("expected hi, got %q", resp.Text)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryingClientRecoversRateLimit(t *testing.T) {
	inner := &mockClient{
		failUntil: 2,
		failErr:   &RateLimitError{ClientError: ClientError{Message: "limited"}},
	}
	client := NewRetryingClient(inner, WithRPMLimit(0), WithRetryPolicy(fastPolicy(3)))

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "done" {
		t.Errorf("expected recovered response, got %q", resp.Text)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingClientSurfacesAuthError(t *testing.T) {
	inner := &mockClient{
		failUntil: 10,
		failErr:   &AuthenticationError{ClientError: ClientError{Message: "bad key"}},
	}
	client := NewRetryingClient(inner, WithRPMLimit(0), WithRetryPolicy(fastPolicy(3)))

	_, err := client.Complete(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", inner.calls)
	}
}

func TestRPMLimiterAllowsBurstUpToLimit(t *testing.T) {
	limiter := NewRPMLimiter(3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if got := limiter.Pending(); got != 3 {
		t.Errorf("expected 3 pending, got %d", got)
	}
}

func TestRPMLimiterBlocksOverLimit(t *testing.T) {
	limiter := NewRPMLimiter(1)
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx); err == nil {
		t.Error("expected wait to fail once the context is cancelled")
	}
}

func TestRPMLimiterDisabled(t *testing.T) {
	limiter := NewRPMLimiter(0)
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("disabled limiter must never block: %v", err)
		}
	}
}

func TestRPMLimiterWindowSlides(t *testing.T) {
	limiter := NewRPMLimiter(2)
	base := time.Now()
	limiter.now = func() time.Time { return base }

	_ = limiter.Wait(context.Background())
	_ = limiter.Wait(context.Background())

	// Advance past the window; both slots free up.
	limiter.now = func() time.Time { return base.Add(61 * time.Second) }
	if got := limiter.Pending(); got != 0 {
		t.Errorf("expected window to slide, got %d pending", got)
	}
}
