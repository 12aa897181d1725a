package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tasker/cmd/security/password"
)

type recordingNotifier struct {
	mu      sync.Mutex
	welcome []string
	cancel  []string
	err     error
}

func (n *recordingNotifier) WelcomeEmail(_ context.Context, name, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcome = append(n.welcome, name+" <"+email+">")
	return n.err
}

func (n *recordingNotifier) CancelationEmail(_ context.Context, name, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancel = append(n.cancel, name+" <"+email+">")
	return n.err
}

type recordingPurger struct {
	owners []string
	err    error
}

func (p *recordingPurger) PurgeOwner(_ context.Context, ownerID string) (int64, error) {
	p.owners = append(p.owners, ownerID)
	return 3, p.err
}

func testPasswords() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return cfg
}

func newTestAccounts(t *testing.T) (*Accounts, *MemoryStore, *recordingNotifier, *recordingPurger) {
	t.Helper()
	st := NewMemoryStore()
	n := &recordingNotifier{}
	p := &recordingPurger{}
	a := NewAccounts(st, n, p, WithPasswordHasher(testPasswords()))
	return a, st, n, p
}

func mustCreate(t *testing.T, a *Accounts, d Draft) User {
	t.Helper()
	u, err := a.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("Create(%s): %v", d.Email, err)
	}
	return u
}

func TestAccounts_Create_NormalizesAndHashes(t *testing.T) {
	a, _, n, _ := newTestAccounts(t)

	u := mustCreate(t, a, Draft{Name: "  Ann ", Email: " Ann@Example.COM ", Password: "red12345!", Age: 27})

	if u.Name != "Ann" {
		t.Fatalf("name = %q", u.Name)
	}
	if u.Email != "ann@example.com" {
		t.Fatalf("email = %q", u.Email)
	}
	if u.PasswordHash == "" || u.PasswordHash == "red12345!" {
		t.Fatalf("password must be stored as a digest")
	}
	if len(u.Sessions) != 0 {
		t.Fatalf("new user must have no sessions")
	}
	if len(n.welcome) != 1 || n.welcome[0] != "Ann <ann@example.com>" {
		t.Fatalf("welcome emails = %v", n.welcome)
	}
}

func TestAccounts_Create_Validation(t *testing.T) {
	a, _, n, _ := newTestAccounts(t)

	tests := []struct {
		name  string
		draft Draft
		field string
	}{
		{"missing name", Draft{Email: "a@example.com", Password: "red12345!"}, "name"},
		{"bad email", Draft{Name: "A", Email: "not-an-email", Password: "red12345!"}, "email"},
		{"negative age", Draft{Name: "A", Email: "a@example.com", Password: "red12345!", Age: -1}, "age"},
		{"short password", Draft{Name: "A", Email: "a@example.com", Password: "abc"}, "password"},
		{"forbidden word", Draft{Name: "A", Email: "a@example.com", Password: "mypassword1"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Create(context.Background(), tt.draft)
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !IsInvalidInput(err) {
				t.Fatalf("expected ErrInvalidInput kind")
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Fatalf("expected field %q in %v", tt.field, ve.FieldNames())
			}
		})
	}

	if len(n.welcome) != 0 {
		t.Fatalf("no welcome email expected for rejected signups")
	}
}

func TestAccounts_Create_DuplicateEmail(t *testing.T) {
	a, _, _, _ := newTestAccounts(t)
	mustCreate(t, a, Draft{Name: "A", Email: "dup@example.com", Password: "red12345!"})

	_, err := a.Create(context.Background(), Draft{Name: "B", Email: "DUP@example.com", Password: "blue12345!"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAccounts_Create_NotifierFailureIsNotSurfaced(t *testing.T) {
	a, _, n, _ := newTestAccounts(t)
	n.err = errors.New("smtp down")

	if _, err := a.Create(context.Background(), Draft{Name: "A", Email: "a@example.com", Password: "red12345!"}); err != nil {
		t.Fatalf("expected success despite notifier failure, got %v", err)
	}
}

func TestAccounts_FindByCredentials(t *testing.T) {
	a, _, _, _ := newTestAccounts(t)
	created := mustCreate(t, a, Draft{Name: "A", Email: "a@example.com", Password: "red12345!"})

	u, err := a.FindByCredentials(context.Background(), " A@EXAMPLE.com", "red12345!")
	if err != nil {
		t.Fatalf("FindByCredentials: %v", err)
	}
	if u.ID != created.ID {
		t.Fatalf("got user %s, want %s", u.ID, created.ID)
	}

	_, errWrong := a.FindByCredentials(context.Background(), "a@example.com", "nope12345!")
	_, errUnknown := a.FindByCredentials(context.Background(), "ghost@example.com", "red12345!")

	if !IsInvalidCredentials(errWrong) || !IsInvalidCredentials(errUnknown) {
		t.Fatalf("expected invalid credentials, got %v / %v", errWrong, errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("wrong password and unknown email must be indistinguishable: %q vs %q", errWrong, errUnknown)
	}
}

func TestAccounts_FindByCredentials_UpgradesLegacyHash(t *testing.T) {
	a, st, _, _ := newTestAccounts(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("red12345!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u, err := st.CreateUser(context.Background(), NewUser{
		Name: "Old", Email: "old@example.com", PasswordHash: string(legacy),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if _, err := a.FindByCredentials(context.Background(), "old@example.com", "red12345!"); err != nil {
		t.Fatalf("legacy login: %v", err)
	}

	stored, err := st.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.PasswordHash == string(legacy) {
		t.Fatalf("expected digest to be upgraded")
	}
	if testPasswords().NeedsRehash(stored.PasswordHash) {
		t.Fatalf("upgraded digest should be current: %q", stored.PasswordHash)
	}

	if _, err := a.FindByCredentials(context.Background(), "old@example.com", "red12345!"); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestAccounts_Update(t *testing.T) {
	a, _, _, _ := newTestAccounts(t)
	u := mustCreate(t, a, Draft{Name: "A", Email: "a@example.com", Password: "red12345!", Age: 1})

	name := " Bea "
	age := 40
	pw := "green12345!"
	got, err := a.Update(context.Background(), u.ID, Patch{Name: &name, Age: &age, Password: &pw})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Bea" || got.Age != 40 || got.Email != "a@example.com" {
		t.Fatalf("unexpected user after update: %+v", got)
	}
	if !got.UpdatedAt.After(u.UpdatedAt) && !got.UpdatedAt.Equal(u.UpdatedAt) {
		t.Fatalf("UpdatedAt went backwards")
	}

	if _, err := a.FindByCredentials(context.Background(), "a@example.com", "green12345!"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := a.FindByCredentials(context.Background(), "a@example.com", "red12345!"); !IsInvalidCredentials(err) {
		t.Fatalf("old password must stop working, got %v", err)
	}
}

func TestAccounts_Update_RejectsBeforeMutating(t *testing.T) {
	a, st, _, _ := newTestAccounts(t)
	u := mustCreate(t, a, Draft{Name: "A", Email: "a@example.com", Password: "red12345!"})

	name := "Changed"
	bad := "nope"
	_, err := a.Update(context.Background(), u.ID, Patch{Name: &name, Email: &bad})
	if !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	stored, _ := st.GetUserByID(context.Background(), u.ID)
	if stored.Name != "A" {
		t.Fatalf("name must be unchanged after a rejected patch, got %q", stored.Name)
	}

	if _, err := a.Update(context.Background(), u.ID, Patch{}); !IsInvalidInput(err) {
		t.Fatalf("expected empty patch to be rejected, got %v", err)
	}
}

func TestAccounts_Update_EmailConflict(t *testing.T) {
	a, _, _, _ := newTestAccounts(t)
	mustCreate(t, a, Draft{Name: "A", Email: "a@example.com", Password: "red12345!"})
	b := mustCreate(t, a, Draft{Name: "B", Email: "b@example.com", Password: "red12345!"})

	email := "A@example.com"
	if _, err := a.Update(context.Background(), b.ID, Patch{Email: &email}); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAccounts_Delete(t *testing.T) {
	a, st, n, p := newTestAccounts(t)
	u := mustCreate(t, a, Draft{Name: "A", Email: "a@example.com", Password: "red12345!"})
	p.err = errors.New("tasks unavailable")

	got, err := a.Delete(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got.ID != u.ID || got.Email != u.Email {
		t.Fatalf("expected deleted user back, got %+v", got)
	}
	if len(p.owners) != 1 || p.owners[0] != u.ID {
		t.Fatalf("purged owners = %v", p.owners)
	}
	if len(n.cancel) != 1 {
		t.Fatalf("cancel emails = %v", n.cancel)
	}
	if _, err := st.GetUserByID(context.Background(), u.ID); !IsNotFound(err) {
		t.Fatalf("expected user gone, got %v", err)
	}
	if _, err := a.Delete(context.Background(), u.ID); !IsNotFound(err) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestAccounts_Avatar(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st := NewMemoryStore()
	a := NewAccounts(st, nil, nil, WithPasswordHasher(testPasswords()), WithClock(func() time.Time { return clock }))
	u := mustCreate(t, a, Draft{Name: "A", Email: "a@example.com", Password: "red12345!"})

	if _, err := a.Avatar(context.Background(), u.ID); !IsNotFound(err) {
		t.Fatalf("expected no avatar, got %v", err)
	}
	if err := a.SetAvatar(context.Background(), u.ID, []byte{1, 2, 3}); err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	got, err := a.Avatar(context.Background(), u.ID)
	if err != nil || len(got) != 3 {
		t.Fatalf("Avatar = %v, %v", got, err)
	}
	if err := a.ClearAvatar(context.Background(), u.ID); err != nil {
		t.Fatalf("ClearAvatar: %v", err)
	}
	if err := a.ClearAvatar(context.Background(), u.ID); err != nil {
		t.Fatalf("ClearAvatar twice: %v", err)
	}
	if _, err := a.Avatar(context.Background(), u.ID); !IsNotFound(err) {
		t.Fatalf("expected avatar cleared, got %v", err)
	}
}
