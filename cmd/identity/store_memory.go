package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
// Returned users are copies; callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[in.Email]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:           NewUserID(),
		Name:         in.Name,
		Email:        in.Email,
		Age:          in.Age,
		PasswordHash: in.PasswordHash,
		Sessions:     []SessionEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, emailNorm string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailNorm]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, ch Changes, now time.Time) (User, error) {
	const op = "identity.UpdateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if ch.Email != nil && *ch.Email != u.Email {
		if _, taken := s.byEmail[*ch.Email]; taken {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		delete(s.byEmail, u.Email)
		s.byEmail[*ch.Email] = id
	}
	applyChanges(&u, ch, now)
	s.byID[id] = u
	return cloneUser(u), nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.DeleteUser", Resource: "user"}
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	return u, nil
}

func (s *MemoryStore) SetAvatar(ctx context.Context, id string, png []byte, now time.Time) error {
	return s.mutate(ctx, "identity.SetAvatar", id, func(u *User) {
		u.Avatar = append([]byte(nil), png...)
		u.UpdatedAt = now
	})
}

func (s *MemoryStore) ClearAvatar(ctx context.Context, id string, now time.Time) error {
	return s.mutate(ctx, "identity.ClearAvatar", id, func(u *User) {
		u.Avatar = nil
		u.UpdatedAt = now
	})
}

func (s *MemoryStore) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	const op = "identity.GetAvatar"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, NotFoundError{Op: op, Resource: "user"}
	}
	if len(u.Avatar) == 0 {
		return nil, NotFoundError{Op: op, Resource: "avatar"}
	}
	return append([]byte(nil), u.Avatar...), nil
}

func (s *MemoryStore) AddSession(ctx context.Context, userID string, e SessionEntry, pruneBefore time.Time) error {
	return s.mutate(ctx, "identity.AddSession", userID, func(u *User) {
		u.Sessions = append(pruneSessions(u.Sessions, pruneBefore), e)
	})
}

func (s *MemoryStore) RemoveSession(ctx context.Context, userID, sessionID string) error {
	return s.mutate(ctx, "identity.RemoveSession", userID, func(u *User) {
		u.Sessions = withoutSession(u.Sessions, sessionID)
	})
}

func (s *MemoryStore) ClearSessions(ctx context.Context, userID string) error {
	return s.mutate(ctx, "identity.ClearSessions", userID, func(u *User) {
		u.Sessions = []SessionEntry{}
	})
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) mutate(ctx context.Context, op, id string, fn func(*User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	fn(&u)
	s.byID[id] = u
	return nil
}
