package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrForbiddenWord    = errors.New("password contains a forbidden word")
	ErrInvalidHash      = errors.New("invalid password hash")
)
