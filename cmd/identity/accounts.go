package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tasker/cmd/security/password"
)

// Notifier sends account lifecycle emails. Failures are logged by Accounts
// and never change the outcome of the account operation.
type Notifier interface {
	WelcomeEmail(ctx context.Context, name, email string) error
	CancelationEmail(ctx context.Context, name, email string) error
}

// TaskPurger deletes the tasks owned by a user.
type TaskPurger interface {
	PurgeOwner(ctx context.Context, ownerID string) (int64, error)
}

// Accounts implements the account lifecycle on top of a Store.
type Accounts struct {
	store     Store
	notifier  Notifier
	purger    TaskPurger
	passwords PasswordHasher
	log       *slog.Logger
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// AccountsOption configures Accounts.
type AccountsOption func(*Accounts)

// WithPasswordHasher overrides the password hasher (default password.DefaultConfig()).
func WithPasswordHasher(h PasswordHasher) AccountsOption {
	return func(a *Accounts) {
		if h != nil {
			a.passwords = h
		}
	}
}

// WithLogger sets the logger used for best-effort side effects.
func WithLogger(log *slog.Logger) AccountsOption {
	return func(a *Accounts) {
		if log != nil {
			a.log = log
		}
	}
}

// WithClock overrides the clock (tests).
func WithClock(now func() time.Time) AccountsOption {
	return func(a *Accounts) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAccounts wires the account service. notifier and purger may be nil.
func NewAccounts(store Store, notifier Notifier, purger TaskPurger, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		store:     store,
		notifier:  notifier,
		purger:    purger,
		passwords: password.DefaultConfig(),
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Store returns the underlying store.
func (a *Accounts) Store() Store { return a.store }

// Create validates d, persists the new user and sends the welcome email.
func (a *Accounts) Create(ctx context.Context, d Draft) (User, error) {
	const op = "identity.Create"

	d.normalize()
	if err := validateDraft(op, d, a.passwords); err != nil {
		return User{}, err
	}

	hash, err := a.hashPassword(op, d.Password)
	if err != nil {
		return User{}, err
	}

	u, err := a.store.CreateUser(ctx, NewUser{
		Name:         d.Name,
		Email:        d.Email,
		Age:          d.Age,
		PasswordHash: hash,
		Now:          a.now(),
	})
	if err != nil {
		return User{}, err
	}

	if a.notifier != nil {
		if err := a.notifier.WelcomeEmail(ctx, u.Name, u.Email); err != nil {
			a.log.WarnContext(ctx, "identity.create.welcome_email.fail", "user_id", u.ID, "err", err)
		}
	}
	return u, nil
}

// FindByCredentials returns the user whose email and password match.
// Unknown email and wrong password are indistinguishable: both return
// ErrInvalidCredentials after a full password verification.
func (a *Accounts) FindByCredentials(ctx context.Context, email, plain string) (User, error) {
	const op = "identity.FindByCredentials"

	u, err := a.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if IsNotFound(err) {
			_, _ = a.passwords.Verify(a.dummy(), plain)
			return User{}, invalidCredentials(op)
		}
		return User{}, err
	}

	ok, err := a.passwords.Verify(u.PasswordHash, plain)
	if err != nil {
		a.log.ErrorContext(ctx, "identity.login.verify.fail", "user_id", u.ID, "err", err)
		return User{}, invalidCredentials(op)
	}
	if !ok {
		return User{}, invalidCredentials(op)
	}

	if a.passwords.NeedsRehash(u.PasswordHash) {
		a.upgradeHash(ctx, &u, plain)
	}
	return u, nil
}

// upgradeHash replaces a legacy digest. Policy failures (passwords accepted
// under older rules) leave the old digest in place.
func (a *Accounts) upgradeHash(ctx context.Context, u *User, plain string) {
	hash, err := a.passwords.Hash(plain)
	if err != nil {
		a.log.DebugContext(ctx, "identity.login.rehash.skip", "user_id", u.ID, "reason", err.Error())
		return
	}
	updated, err := a.store.UpdateUser(ctx, u.ID, Changes{PasswordHash: &hash}, a.now())
	if err != nil {
		a.log.WarnContext(ctx, "identity.login.rehash.fail", "user_id", u.ID, "err", err)
		return
	}
	*u = updated
	a.log.InfoContext(ctx, "identity.login.rehash.ok", "user_id", u.ID)
}

// Update validates the whole patch and applies it atomically.
func (a *Accounts) Update(ctx context.Context, id string, p Patch) (User, error) {
	const op = "identity.Update"

	p.normalize()
	if err := validatePatch(op, p, a.passwords); err != nil {
		return User{}, err
	}

	ch := Changes{Name: p.Name, Email: p.Email, Age: p.Age}
	if p.Password != nil {
		hash, err := a.hashPassword(op, *p.Password)
		if err != nil {
			return User{}, err
		}
		ch.PasswordHash = &hash
	}

	return a.store.UpdateUser(ctx, id, ch, a.now())
}

// Delete removes the user, purges their tasks and sends the cancelation email.
func (a *Accounts) Delete(ctx context.Context, id string) (User, error) {
	u, err := a.store.DeleteUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	if a.purger != nil {
		n, err := a.purger.PurgeOwner(ctx, u.ID)
		if err != nil {
			a.log.ErrorContext(ctx, "identity.delete.purge_tasks.fail", "user_id", u.ID, "err", err)
		} else {
			a.log.DebugContext(ctx, "identity.delete.purge_tasks.ok", "user_id", u.ID, "deleted", n)
		}
	}
	if a.notifier != nil {
		if err := a.notifier.CancelationEmail(ctx, u.Name, u.Email); err != nil {
			a.log.WarnContext(ctx, "identity.delete.cancel_email.fail", "user_id", u.ID, "err", err)
		}
	}
	return u, nil
}

// SetAvatar stores an already normalized PNG.
func (a *Accounts) SetAvatar(ctx context.Context, id string, png []byte) error {
	return a.store.SetAvatar(ctx, id, png, a.now())
}

// ClearAvatar removes the avatar. Clearing an absent avatar succeeds.
func (a *Accounts) ClearAvatar(ctx context.Context, id string) error {
	return a.store.ClearAvatar(ctx, id, a.now())
}

// Avatar returns the stored PNG for id.
func (a *Accounts) Avatar(ctx context.Context, id string) ([]byte, error) {
	return a.store.GetAvatar(ctx, id)
}

func (a *Accounts) hashPassword(op, plain string) (string, error) {
	hash, err := a.passwords.Hash(plain)
	if err != nil {
		if isPolicyError(err) {
			return "", ValidationError{Op: op, Msg: "password " + passwordPolicyMessage(err)}
		}
		return "", fmt.Errorf("%s: hash password: %w", op, err)
	}
	return hash, nil
}

func (a *Accounts) dummy() string {
	a.dummyOnce.Do(func() {
		h, err := a.passwords.Hash("tasker-dummy-credential-0")
		if err == nil {
			a.dummyHash = h
		}
	})
	return a.dummyHash
}
