// Package ratelimit tracks the per-user daily synchronization count.
package ratelimit

import (
	"context"
	"time"
)

// Counter is the persistence behind a Limiter.
type Counter interface {
	Get(ctx context.Context, userID, day string) (int, error)
	Increment(ctx context.Context, userID, day string) (int, error)
}

// Limiter reads and bumps the daily counter. It does not enforce the limit
// itself; the sync engine compares DailySyncCount against its maximum.
type Limiter struct {
	counter Counter
	now     func() time.Time
}

func New(counter Counter) *Limiter {
	return &Limiter{counter: counter, now: time.Now}
}

// WithClock returns a copy of l reading time from now.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	cp := *l
	cp.now = now
	return &cp
}

// Today returns the current UTC day key.
func (l *Limiter) Today() string {
	return Day(l.now())
}

// Day formats t as the UTC day key "YYYY-MM-DD".
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// DailySyncCount returns the count for day, or for today when day is "".
func (l *Limiter) DailySyncCount(ctx context.Context, userID, day string) (int, error) {
	if day == "" {
		day = l.Today()
	}
	return l.counter.Get(ctx, userID, day)
}

// IncrementSyncCount atomically adds one for day, or for today when day is "".
func (l *Limiter) IncrementSyncCount(ctx context.Context, userID, day string) (int, error) {
	if day == "" {
		day = l.Today()
	}
	return l.counter.Increment(ctx, userID, day)
}
