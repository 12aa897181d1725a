// Package token computes the digests under which session tokens are stored.
//
// The signed token itself is never persisted. The user document keeps only
// a 64-char hex digest:
// - SHA-256(token) when no HMAC key is configured (dev).
// - HMAC-SHA256(token, key) when TASKER_TOKEN_HMAC_KEY is set.
//
// When HMAC is required by policy, a missing or short key is a startup error
// rather than a silent fallback.
package token
