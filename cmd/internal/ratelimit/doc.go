// Package ratelimit counts failed login attempts per key (normalized email,
// client IP) inside a fixed window and reports when a key is blocked.
//
// RedisLimiter shares counters across instances; MemoryLimiter is for a
// single process (dev, tests). Both are nil-safe: a nil limiter never blocks.
//
// The package only counts. Callers decide which keys to check and what a
// block means for the response.
package ratelimit
