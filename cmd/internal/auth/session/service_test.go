package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"tasker/cmd/identity"
	"tasker/cmd/security/token"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func pasetoConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	return cfg
}

func jwtConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Format = FormatJWT
	cfg.JWTSecret = strings.Repeat("s", 32)
	return cfg
}

type fixture struct {
	svc   *Service
	store *identity.MemoryStore
	clock *testClock
	user  identity.User
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()

	tokens, err := NewTokenManager(cfg)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := identity.NewMemoryStore()
	u, err := store.CreateUser(context.Background(), identity.NewUser{
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "x",
		Now:          clock.Now(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	svc := NewService(cfg, store, tokens, token.NewHasher(nil), WithClock(clock.Now))
	return fixture{svc: svc, store: store, clock: clock, user: u}
}

func TestTokenManagers_IssueAndVerify(t *testing.T) {
	cases := []struct {
		name string
		cfg  func(*testing.T) Config
	}{
		{"paseto", pasetoConfig},
		{"jwt", jwtConfig},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg(t)
			mgr, err := NewTokenManager(cfg)
			if err != nil {
				t.Fatalf("NewTokenManager: %v", err)
			}

			now := time.Now().UTC().Truncate(time.Second)
			tok, err := mgr.Issue("65f1c0ffee0000000000abcd", "01HZZZZZZZZZZZZZZZZZZZZZZZ", now, now.Add(time.Hour))
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			claims, err := mgr.Verify(tok, now.Add(time.Second))
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if claims.UserID != "65f1c0ffee0000000000abcd" || claims.SessionID != "01HZZZZZZZZZZZZZZZZZZZZZZZ" {
				t.Fatalf("claims mismatch: %+v", claims)
			}
			if claims.Issuer != cfg.Issuer {
				t.Fatalf("issuer mismatch: %q", claims.Issuer)
			}
			if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
				t.Fatalf("exp mismatch: %v", claims.ExpiresAt)
			}

			if _, err := mgr.Verify(tok, now.Add(2*time.Hour)); !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}
			if _, err := mgr.Verify(tok+"x", now); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
			}
		})
	}
}

func TestTokenManagers_RejectForeignKey(t *testing.T) {
	now := time.Now().UTC()

	a, _ := NewTokenManager(pasetoConfig(t))
	b, _ := NewTokenManager(pasetoConfig(t))
	tok, err := a.Issue("u", "s", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("paseto: expected ErrInvalidToken, got %v", err)
	}

	ja, _ := NewTokenManager(jwtConfig(t))
	other := jwtConfig(t)
	other.JWTSecret = strings.Repeat("o", 32)
	jb, _ := NewTokenManager(other)
	jtok, err := ja.Issue("u", "s", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := jb.Verify(jtok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("jwt: expected ErrInvalidToken, got %v", err)
	}

	// A PASETO token is never a valid JWT and vice versa.
	if _, err := ja.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("jwt accepted paseto token: %v", err)
	}
}

func TestTokenManagers_RejectWrongIssuer(t *testing.T) {
	cfg := jwtConfig(t)
	a, _ := NewTokenManager(cfg)
	cfg.Issuer = "someone-else"
	b, _ := NewTokenManager(cfg)

	now := time.Now().UTC()
	tok, _ := a.Issue("u", "s", now, now.Add(time.Hour))
	if _, err := b.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewTokenManager_BadKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = "not-hex"
	if _, err := NewTokenManager(cfg); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Format = FormatJWT
	cfg.JWTSecret = "short"
	if _, err := NewTokenManager(cfg); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestService_IssueAndValidate(t *testing.T) {
	for _, cfg := range []func(*testing.T) Config{pasetoConfig, jwtConfig} {
		f := newFixture(t, cfg(t))
		ctx := context.Background()

		iss, err := f.svc.Issue(ctx, f.user.ID, Client{UserAgent: "test-agent", IP: "127.0.0.1"})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if iss.Token == "" || iss.SessionID == "" {
			t.Fatalf("empty issue result: %+v", iss)
		}

		u, err := f.store.GetUserByID(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		entry, ok := u.Session(iss.SessionID)
		if !ok {
			t.Fatalf("session entry not persisted")
		}
		if entry.TokenHash == iss.Token || entry.TokenHash != token.HashSHA256Hex(iss.Token) {
			t.Fatalf("expected digest to be stored, got %q", entry.TokenHash)
		}
		if entry.UserAgent != "test-agent" || entry.IP != "127.0.0.1" {
			t.Fatalf("client mismatch: %+v", entry)
		}

		f.clock.Advance(time.Minute)
		p, err := f.svc.Validate(ctx, iss.Token)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if p.User.ID != f.user.ID || p.SessionID != iss.SessionID || p.Token != iss.Token {
			t.Fatalf("principal mismatch: %+v", p)
		}
	}
}

func TestService_ValidateRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		f := newFixture(t, pasetoConfig(t))
		for _, tok := range []string{"", "   ", "abc", strings.Repeat("a", maxTokenLen+1)} {
			if _, err := f.svc.Validate(ctx, tok); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Validate(%q): expected ErrInvalidToken, got %v", tok[:min(len(tok), 8)], err)
			}
		}
	})

	t.Run("unknown sid", func(t *testing.T) {
		f := newFixture(t, pasetoConfig(t))
		now := f.clock.Now()
		tok, err := f.svc.tokens.Issue(f.user.ID, "01HZZZZZZZZZZZZZZZZZZZZZZZ", now, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, err := f.svc.Validate(ctx, tok); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected ErrSessionRevoked, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, pasetoConfig(t))
		iss, err := f.svc.Issue(ctx, f.user.ID, Client{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, err := f.store.DeleteUser(ctx, f.user.ID); err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
		if _, err := f.svc.Validate(ctx, iss.Token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("digest mismatch", func(t *testing.T) {
		f := newFixture(t, pasetoConfig(t))
		iss, err := f.svc.Issue(ctx, f.user.ID, Client{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		u, _ := f.store.GetUserByID(ctx, f.user.ID)
		entry, _ := u.Session(iss.SessionID)
		entry.TokenHash = token.HashSHA256Hex("some other token")
		if err := f.store.RemoveSession(ctx, f.user.ID, iss.SessionID); err != nil {
			t.Fatalf("RemoveSession: %v", err)
		}
		if err := f.store.AddSession(ctx, f.user.ID, entry, f.clock.Now()); err != nil {
			t.Fatalf("AddSession: %v", err)
		}
		if _, err := f.svc.Validate(ctx, iss.Token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t, jwtConfig(t))
		iss, err := f.svc.Issue(ctx, f.user.ID, Client{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		f.clock.Advance(f.svc.TTL() + time.Hour)
		if _, err := f.svc.Validate(ctx, iss.Token); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	})

	t.Run("expired entry", func(t *testing.T) {
		f := newFixture(t, pasetoConfig(t))
		iss, err := f.svc.Issue(ctx, f.user.ID, Client{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		u, _ := f.store.GetUserByID(ctx, f.user.ID)
		entry, _ := u.Session(iss.SessionID)
		entry.ExpiresAt = f.clock.Now().Add(-time.Second)
		_ = f.store.RemoveSession(ctx, f.user.ID, iss.SessionID)
		_ = f.store.AddSession(ctx, f.user.ID, entry, time.Time{})
		if _, err := f.svc.Validate(ctx, iss.Token); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	})
}

func TestService_Revoke(t *testing.T) {
	f := newFixture(t, pasetoConfig(t))
	ctx := context.Background()

	a, err := f.svc.Issue(ctx, f.user.ID, Client{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	b, err := f.svc.Issue(ctx, f.user.ID, Client{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := f.svc.Revoke(ctx, f.user.ID, a.SessionID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := f.svc.Validate(ctx, a.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
	if _, err := f.svc.Validate(ctx, b.Token); err != nil {
		t.Fatalf("other session must stay valid: %v", err)
	}

	if err := f.svc.RevokeAll(ctx, f.user.ID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if _, err := f.svc.Validate(ctx, b.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after RevokeAll, got %v", err)
	}
	u, _ := f.store.GetUserByID(ctx, f.user.ID)
	if len(u.Sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(u.Sessions))
	}
}

func TestService_IssuePrunesExpired(t *testing.T) {
	f := newFixture(t, pasetoConfig(t))
	ctx := context.Background()

	old, err := f.svc.Issue(ctx, f.user.ID, Client{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	f.clock.Advance(f.svc.TTL() + time.Minute)
	if _, err := f.svc.Issue(ctx, f.user.ID, Client{}); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	u, _ := f.store.GetUserByID(ctx, f.user.ID)
	if _, ok := u.Session(old.SessionID); ok {
		t.Fatalf("expected expired session to be pruned")
	}
	if len(u.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(u.Sessions))
	}
}

func TestService_HMACDigest(t *testing.T) {
	cfg := pasetoConfig(t)
	tokens, _ := NewTokenManager(cfg)
	store := identity.NewMemoryStore()
	ctx := context.Background()
	u, _ := store.CreateUser(ctx, identity.NewUser{Name: "B", Email: "b@example.com", PasswordHash: "x"})

	key := []byte(strings.Repeat("h", 32))
	svc := NewService(cfg, store, tokens, token.NewHasher(key))
	iss, err := svc.Issue(ctx, u.ID, Client{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, _ := store.GetUserByID(ctx, u.ID)
	entry, _ := got.Session(iss.SessionID)
	if entry.TokenHash != token.HashHMACSHA256Hex(iss.Token, key) {
		t.Fatalf("expected hmac digest")
	}
	if _, err := svc.Validate(ctx, iss.Token); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestIsAuthFailure(t *testing.T) {
	for _, err := range []error{ErrInvalidToken, ErrSessionExpired, ErrSessionRevoked} {
		if !IsAuthFailure(err) {
			t.Fatalf("IsAuthFailure(%v) = false", err)
		}
	}
	if IsAuthFailure(errors.New("db down")) {
		t.Fatalf("infra error must not be an auth failure")
	}
}
