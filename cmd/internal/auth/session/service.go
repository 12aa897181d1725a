package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tasker/cmd/identity"
	"tasker/cmd/identity/ids"
	"tasker/cmd/security/token"
)

// maxTokenLen bounds presented tokens before any parsing.
const maxTokenLen = 4096

// Client describes where a session was issued from.
type Client struct {
	UserAgent string
	IP        string
}

// Issued is the result of issuing a session.
type Issued struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// Principal is an authenticated request identity.
type Principal struct {
	User      identity.User
	SessionID string
	Token     string
}

// Service implements the session lifecycle: issue, validate, revoke.
//
// Session entries live on the user document, so the identity store is the
// only persistence it needs.
type Service struct {
	cfg    Config
	tokens TokenManager
	users  identity.Store
	hasher token.Hasher
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, users identity.Store, tokens TokenManager, hasher token.Hasher, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		tokens: tokens,
		users:  users,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Issue creates a session for userID and returns its signed token.
// The digest is persisted before the token is returned; expired entries
// are pruned in the same write.
func (s *Service) Issue(ctx context.Context, userID string, client Client) (Issued, error) {
	now := s.now()
	exp := now.Add(s.cfg.TTL)

	sid, err := ids.NewULID(now)
	if err != nil {
		return Issued{}, fmt.Errorf("session.Issue: %w", err)
	}

	tok, err := s.tokens.Issue(userID, sid, now, exp)
	if err != nil {
		return Issued{}, fmt.Errorf("session.Issue: sign: %w", err)
	}

	entry := identity.SessionEntry{
		ID:        sid,
		TokenHash: s.hasher.Hex(tok),
		CreatedAt: now,
		ExpiresAt: exp,
		UserAgent: truncate(client.UserAgent, 256),
		IP:        truncate(client.IP, 64),
	}
	if err := s.users.AddSession(ctx, userID, entry, now); err != nil {
		return Issued{}, err
	}

	return Issued{SessionID: sid, Token: tok, ExpiresAt: exp}, nil
}

// Validate authenticates a presented token against the user's session registry.
func (s *Service) Validate(ctx context.Context, tok string) (Principal, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return Principal{}, ErrInvalidToken
	}

	now := s.now()
	claims, err := s.tokens.Verify(tok, now)
	if err != nil {
		return Principal{}, err
	}

	u, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}

	entry, ok := u.Session(claims.SessionID)
	if !ok {
		return Principal{}, ErrSessionRevoked
	}
	if !s.hasher.Matches(tok, entry.TokenHash) {
		return Principal{}, ErrInvalidToken
	}
	if !entry.ExpiresAt.After(now) {
		return Principal{}, ErrSessionExpired
	}

	return Principal{User: u, SessionID: claims.SessionID, Token: tok}, nil
}

// Revoke removes a single session (logout).
func (s *Service) Revoke(ctx context.Context, userID, sessionID string) error {
	return s.users.RemoveSession(ctx, userID, sessionID)
}

// RevokeAll removes every session of the user (logout everywhere).
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.users.ClearSessions(ctx, userID)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
