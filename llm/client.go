package llm

import "context"

// Client is the gateway to a model backend. Complete takes the full
// conversation plus tool schemas and returns either final text or a
// tool-call request.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// RetryingClient wraps an inner Client with a client-side rate limiter
// and bounded retry. Rate-limit and transient upstream failures are
// recovered here; only non-retryable errors or exhausted retries surface
// to the caller.
type RetryingClient struct {
	inner   Client
	policy  RetryPolicy
	limiter *RPMLimiter
}

// RetryingClientOption configures a RetryingClient.
type RetryingClientOption func(*RetryingClient)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) RetryingClientOption {
	return func(c *RetryingClient) { c.policy = p }
}

// WithRPMLimit caps client-side requests per minute. 0 disables the cap.
func WithRPMLimit(rpm int) RetryingClientOption {
	return func(c *RetryingClient) { c.limiter = NewRPMLimiter(rpm) }
}

// WithRPMLimiter installs a shared limiter, letting multiple clients
// draw from one request budget.
func WithRPMLimiter(l *RPMLimiter) RetryingClientOption {
	return func(c *RetryingClient) { c.limiter = l }
}

// NewRetryingClient wraps inner with the default retry policy and a
// 3 requests-per-minute limiter.
func NewRetryingClient(inner Client, opts ...RetryingClientOption) *RetryingClient {
	c := &RetryingClient{
		inner:   inner,
		policy:  DefaultRetryPolicy(),
		limiter: NewRPMLimiter(3),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete waits for a rate-limit slot, then calls the inner client
// under the retry policy.
func (c *RetryingClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return Retry(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TimeoutError{ClientError: ClientError{
				Message: "cancelled while waiting for rate limit",
				Cause:   err,
			}}
		}
		return c.inner.Complete(ctx, req)
	})
}
