package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps failure timestamps in process memory.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewMemoryLimiter returns a MemoryLimiter. now may be nil.
func NewMemoryLimiter(cfg Config, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		cfg:      cfg,
		now:      now,
		failures: make(map[string][]time.Time),
	}
}

func (l *MemoryLimiter) Check(_ context.Context, key string) (bool, time.Duration, error) {
	if l == nil {
		return false, 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	blocked, retry := evaluateWindow(l.now(), l.failures[key], l.cfg.MaxFailures, l.cfg.Window)
	return blocked, retry, nil
}

func (l *MemoryLimiter) RecordFailure(_ context.Context, key string) error {
	if l == nil {
		return nil
	}
	now := l.now()
	cut := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.failures[key][:0]
	for _, ts := range l.failures[key] {
		if !ts.Before(cut) {
			kept = append(kept, ts)
		}
	}
	l.failures[key] = append(kept, now)
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
	return nil
}
