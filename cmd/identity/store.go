package identity

import (
	"context"
	"time"
)

// User is the account document.
// PasswordHash and Sessions never leave the server; the HTTP layer renders
// its own projection.
type User struct {
	ID           string
	Name         string
	Email        string
	Age          int
	PasswordHash string

	// Sessions is ordered by issuance.
	Sessions []SessionEntry

	// Avatar is a normalized PNG, nil when unset.
	Avatar []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAvatar reports whether the user has an uploaded avatar.
func (u User) HasAvatar() bool { return len(u.Avatar) > 0 }

// Session returns the entry with the given session id.
func (u User) Session(id string) (SessionEntry, bool) {
	for _, s := range u.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return SessionEntry{}, false
}

// SessionEntry records one issued token. TokenHash is a digest from
// cmd/security/token; the token itself is never stored.
type SessionEntry struct {
	ID        string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UserAgent string
	IP        string
}

// NewUser is a validated, hashed user ready to persist.
type NewUser struct {
	Name         string
	Email        string
	Age          int
	PasswordHash string
	Now          time.Time
}

// Changes is a validated set of field updates. Nil fields are left alone.
type Changes struct {
	Name         *string
	Email        *string
	Age          *int
	PasswordHash *string
}

// Empty reports whether c changes nothing.
func (c Changes) Empty() bool {
	return c.Name == nil && c.Email == nil && c.Age == nil && c.PasswordHash == nil
}

// Store is the user-document persistence boundary.
//
// Contract:
// - Ids that are not 24-hex ObjectIDs are reported as NotFoundError.
// - Email uniqueness violations are reported as ConflictError{Field: "email"}.
// - Session mutations are atomic per user so concurrent logins never drop each other's entries.
type Store interface {
	CreateUser(ctx context.Context, in NewUser) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, emailNorm string) (User, error)
	UpdateUser(ctx context.Context, id string, ch Changes, now time.Time) (User, error)
	DeleteUser(ctx context.Context, id string) (User, error)

	SetAvatar(ctx context.Context, id string, png []byte, now time.Time) error
	ClearAvatar(ctx context.Context, id string, now time.Time) error
	GetAvatar(ctx context.Context, id string) ([]byte, error)

	// AddSession appends e, dropping entries that expired before pruneBefore.
	AddSession(ctx context.Context, userID string, e SessionEntry, pruneBefore time.Time) error
	// RemoveSession drops one entry. Removing an absent entry is not an error.
	RemoveSession(ctx context.Context, userID, sessionID string) error
	// ClearSessions drops every entry.
	ClearSessions(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// applyChanges mutates u in place; used by document stores that
// read-modify-write under a lock.
func applyChanges(u *User, ch Changes, now time.Time) {
	if ch.Name != nil {
		u.Name = *ch.Name
	}
	if ch.Email != nil {
		u.Email = *ch.Email
	}
	if ch.Age != nil {
		u.Age = *ch.Age
	}
	if ch.PasswordHash != nil {
		u.PasswordHash = *ch.PasswordHash
	}
	u.UpdatedAt = now
}

// pruneSessions returns the entries still valid at before, preserving order.
func pruneSessions(in []SessionEntry, before time.Time) []SessionEntry {
	out := make([]SessionEntry, 0, len(in)+1)
	for _, s := range in {
		if s.ExpiresAt.Before(before) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func withoutSession(in []SessionEntry, sessionID string) []SessionEntry {
	out := make([]SessionEntry, 0, len(in))
	for _, s := range in {
		if s.ID == sessionID {
			continue
		}
		out = append(out, s)
	}
	return out
}

func cloneUser(u User) User {
	out := u
	if u.Sessions != nil {
		out.Sessions = append([]SessionEntry(nil), u.Sessions...)
	}
	if u.Avatar != nil {
		out.Avatar = append([]byte(nil), u.Avatar...)
	}
	return out
}
