package llm

import (
	"context"
	"sync"
	"time"
)

// RPMLimiter enforces a client-side requests-per-minute ceiling using a
// sliding window of request timestamps. All runs in a process share one
// limiter so concurrent sessions cannot collectively exceed the ceiling.
type RPMLimiter struct {
	limit  int
	window time.Duration
	stamps []time.Time
	mu     sync.Mutex
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRPMLimiter creates a limiter allowing limit requests per minute.
// A limit <= 0 disables limiting.
func NewRPMLimiter(limit int) *RPMLimiter {
	return &RPMLimiter{
		limit:  limit,
		window: time.Minute,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (l *RPMLimiter) prune(now time.Time) {
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if now.Sub(ts) < l.window {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept
}

// Wait blocks until a request slot is available or ctx is done, then
// records the request timestamp.
func (l *RPMLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limit <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		oldest := l.stamps[0]
		wait := l.window - now.Sub(oldest) + 100*time.Millisecond
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Pending returns the number of requests recorded inside the current window.
func (l *RPMLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}
