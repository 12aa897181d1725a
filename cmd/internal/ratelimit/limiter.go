package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnavailable = errors.New("login limiter unavailable")
)

// Config is the throttle policy. MaxFailures <= 0 disables blocking.
type Config struct {
	MaxFailures int
	Window      time.Duration
}

// DefaultConfig blocks a key after 10 failures within 15 minutes.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 10,
		Window:      15 * time.Minute,
	}
}

// Limiter counts login failures.
type Limiter interface {
	// Check reports whether key is currently blocked and for how long.
	Check(ctx context.Context, key string) (blocked bool, retryAfter time.Duration, err error)
	// RecordFailure counts one failed attempt for key.
	RecordFailure(ctx context.Context, key string) error
	// Reset clears the failures for key after a successful login.
	Reset(ctx context.Context, key string) error
}

// evaluateWindow reports whether failures within window reach max and, if
// so, how long until the oldest counted failure leaves the window.
func evaluateWindow(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, ts := range failures {
		if ts.Before(cut) {
			continue
		}
		count++
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	if count < max {
		return false, 0
	}
	retry := oldest.Add(window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return true, retry
}
