package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL, one JSONB document per user.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Every mutation is a read-modify-write of one row under SELECT ... FOR UPDATE.
// - The email column mirrors doc->>'email' and carries the unique constraint.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "tasker").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "tasker",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// PostgresSchemaSQL returns the DDL for the user document table in schema.
// Operators apply it; the service never migrates at startup.
func PostgresSchemaSQL(schema string) string {
	t := pgIdent(schema, "user_documents")
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  doc JSONB NOT NULL,

  CONSTRAINT chk_user_documents_id_len CHECK (char_length(id) = 24),
  CONSTRAINT uq_user_documents_email UNIQUE (email)
);
`, t)
}

type pgDoc struct {
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Age       int         `json:"age"`
	Password  string      `json:"password"`
	Tokens    []pgSession `json:"tokens"`
	Avatar    []byte      `json:"avatar,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type pgSession struct {
	ID        string    `json:"sid"`
	TokenHash string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserAgent string    `json:"userAgent,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

func toPgDoc(u User) pgDoc {
	d := pgDoc{
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		Password:  u.PasswordHash,
		Tokens:    make([]pgSession, 0, len(u.Sessions)),
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	for _, e := range u.Sessions {
		d.Tokens = append(d.Tokens, pgSession(e))
	}
	return d
}

func (d pgDoc) user(id string) User {
	u := User{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		Age:          d.Age,
		PasswordHash: d.Password,
		Sessions:     make([]SessionEntry, 0, len(d.Tokens)),
		Avatar:       d.Avatar,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	for _, t := range d.Tokens {
		u.Sessions = append(u.Sessions, SessionEntry(t))
	}
	return u
}

func (s *PostgresStore) table() string { return pgIdent(s.schema, "user_documents") }

func (s *PostgresStore) CreateUser(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.CreateUser"

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
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
	raw, err := json.Marshal(toPgDoc(u))
	if err != nil {
		return User{}, fmt.Errorf("%s: encode: %w", op, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, email, doc) VALUES ($1, $2, $3)`,
		u.ID, u.Email, raw,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	if !ValidUserID(id) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	row := s.pool.QueryRow(ctx, `SELECT id, doc FROM `+s.table()+` WHERE id = $1`, id)
	return scanPgUser(op, row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, emailNorm string) (User, error) {
	const op = "identity.GetUserByEmail"
	row := s.pool.QueryRow(ctx, `SELECT id, doc FROM `+s.table()+` WHERE email = $1`, emailNorm)
	return scanPgUser(op, row)
}

func scanPgUser(op string, row pgx.Row) (User, error) {
	var (
		id  string
		raw []byte
	)
	if err := row.Scan(&id, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	var d pgDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return User{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	return d.user(id), nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id string, ch Changes, now time.Time) (User, error) {
	var out User
	err := s.withUserTx(ctx, "identity.UpdateUser", id, func(u *User) error {
		applyChanges(u, ch, now)
		out = cloneUser(*u)
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) (User, error) {
	const op = "identity.DeleteUser"
	if !ValidUserID(id) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	row := s.pool.QueryRow(ctx, `DELETE FROM `+s.table()+` WHERE id = $1 RETURNING id, doc`, id)
	return scanPgUser(op, row)
}

func (s *PostgresStore) SetAvatar(ctx context.Context, id string, png []byte, now time.Time) error {
	return s.withUserTx(ctx, "identity.SetAvatar", id, func(u *User) error {
		u.Avatar = png
		u.UpdatedAt = now
		return nil
	})
}

func (s *PostgresStore) ClearAvatar(ctx context.Context, id string, now time.Time) error {
	return s.withUserTx(ctx, "identity.ClearAvatar", id, func(u *User) error {
		u.Avatar = nil
		u.UpdatedAt = now
		return nil
	})
}

func (s *PostgresStore) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	const op = "identity.GetAvatar"
	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, NotFoundError{Op: op, Resource: "user"}
		}
		return nil, err
	}
	if !u.HasAvatar() {
		return nil, NotFoundError{Op: op, Resource: "avatar"}
	}
	return u.Avatar, nil
}

func (s *PostgresStore) AddSession(ctx context.Context, userID string, e SessionEntry, pruneBefore time.Time) error {
	return s.withUserTx(ctx, "identity.AddSession", userID, func(u *User) error {
		u.Sessions = append(pruneSessions(u.Sessions, pruneBefore), e)
		return nil
	})
}

func (s *PostgresStore) RemoveSession(ctx context.Context, userID, sessionID string) error {
	return s.withUserTx(ctx, "identity.RemoveSession", userID, func(u *User) error {
		u.Sessions = withoutSession(u.Sessions, sessionID)
		return nil
	})
}

func (s *PostgresStore) ClearSessions(ctx context.Context, userID string) error {
	return s.withUserTx(ctx, "identity.ClearSessions", userID, func(u *User) error {
		u.Sessions = []SessionEntry{}
		return nil
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close is a no-op; the pool owner closes it.
func (s *PostgresStore) Close(context.Context) error { return nil }

// withUserTx locks the user row, applies fn to the decoded document and
// writes it back in the same transaction.
func (s *PostgresStore) withUserTx(ctx context.Context, op, id string, fn func(*User) error) error {
	if !ValidUserID(id) {
		return NotFoundError{Op: op, Resource: "user"}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT id, doc FROM `+s.table()+` WHERE id = $1 FOR UPDATE`, id)
	u, err := scanPgUser(op, row)
	if err != nil {
		return err
	}

	if err := fn(&u); err != nil {
		return err
	}

	raw, err := json.Marshal(toPgDoc(u))
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE `+s.table()+` SET email = $2, doc = $3 WHERE id = $1`,
		id, u.Email, raw,
	); err != nil {
		if pgIsUniqueViolation(err) {
			return ConflictError{Op: op, Field: "email"}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// ---- helpers ----

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
