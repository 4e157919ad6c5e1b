package dispatch

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most N operations per second across all callers.
// It is a leaky bucket: each admission reserves the next 1/N-second
// slot, so admissions are evenly paced and any rolling one-second
// window holds at most N of them. Acquire blocks until the caller's
// slot arrives, which keeps waiting callers in reservation order.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewLimiter creates a Limiter admitting perSecond operations per
// second. perSecond must be at least 1.
func NewLimiter(perSecond int) *Limiter {
	if perSecond < 1 {
		perSecond = 1
	}
	return &Limiter{interval: time.Second / time.Duration(perSecond)}
}

// Acquire blocks until one dispatch is permissible or the context is
// done. The first admission after idle time is immediate.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	wait := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
