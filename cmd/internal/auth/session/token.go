package session

import "time"

// Claims is the identity envelope carried by a signed token.
type Claims struct {
	UserID    string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// TokenManager signs and verifies tokens.
//
// Verify returns ErrSessionExpired for a token that is authentic but past
// its expiry, and ErrInvalidToken for every other failure.
type TokenManager interface {
	Issue(userID, sessionID string, now, exp time.Time) (string, error)
	Verify(token string, now time.Time) (Claims, error)
}

// NewTokenManager builds the TokenManager selected by cfg.Format.
func NewTokenManager(cfg Config) (TokenManager, error) {
	switch cfg.Format {
	case FormatPaseto, "":
		return NewPasetoV4PublicManager(cfg)
	case FormatJWT:
		return NewJWTManager(cfg)
	default:
		return nil, ErrConfig
	}
}
