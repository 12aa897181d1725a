package session

import "errors"

var (
	// ErrInvalidToken is returned when a token fails verification, names an
	// unknown user, or does not match its session entry.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionExpired is returned when the session entry has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session entry no longer exists.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IsAuthFailure reports whether err means the presented token must be rejected.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked)
}
