package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultUsersCollection is the collection MongoStore uses unless configured otherwise.
const DefaultUsersCollection = "users"

// MongoStore implements Store over a MongoDB collection, one document per user.
//
// The client is owned by the caller; Close does not disconnect it.
// Every mutation is a single-document update, so concurrent session writes
// for the same user are serialized by the server.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

// MongoOption configures the store.
type MongoOption func(*mongoOptions) error

type mongoOptions struct {
	collection string
}

// WithUsersCollection overrides the users collection name.
func WithUsersCollection(name string) MongoOption {
	return func(o *mongoOptions) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("identity: empty collection name")
		}
		o.collection = name
		return nil
	}
}

// NewMongoStore returns a store over db.
func NewMongoStore(client *mongo.Client, db string, opts ...MongoOption) (*MongoStore, error) {
	if client == nil {
		return nil, fmt.Errorf("identity: nil mongo client")
	}
	if strings.TrimSpace(db) == "" {
		return nil, fmt.Errorf("identity: empty database name")
	}
	o := mongoOptions{collection: DefaultUsersCollection}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	return &MongoStore{
		client: client,
		users:  client.Database(db).Collection(o.collection),
	}, nil
}

// EnsureIndexes creates the unique email index. It is idempotent.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uq_users_email"),
	})
	if err != nil {
		return fmt.Errorf("identity: ensure indexes: %w", err)
	}
	return nil
}

type mongoUser struct {
	ID        bson.ObjectID  `bson:"_id"`
	Name      string         `bson:"name"`
	Email     string         `bson:"email"`
	Age       int            `bson:"age"`
	Password  string         `bson:"password"`
	Tokens    []mongoSession `bson:"tokens"`
	Avatar    []byte         `bson:"avatar,omitempty"`
	CreatedAt time.Time      `bson:"createdAt"`
	UpdatedAt time.Time      `bson:"updatedAt"`
}

type mongoSession struct {
	ID        string    `bson:"sid"`
	TokenHash string    `bson:"token"`
	CreatedAt time.Time `bson:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
	UserAgent string    `bson:"userAgent,omitempty"`
	IP        string    `bson:"ip,omitempty"`
}

func (d mongoUser) user() User {
	u := User{
		ID:           d.ID.Hex(),
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
		u.Sessions = append(u.Sessions, SessionEntry{
			ID:        t.ID,
			TokenHash: t.TokenHash,
			CreatedAt: t.CreatedAt.UTC(),
			ExpiresAt: t.ExpiresAt.UTC(),
			UserAgent: t.UserAgent,
			IP:        t.IP,
		})
	}
	return u
}

func toMongoSession(e SessionEntry) mongoSession {
	return mongoSession{
		ID:        e.ID,
		TokenHash: e.TokenHash,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
		UserAgent: e.UserAgent,
		IP:        e.IP,
	}
}

func (s *MongoStore) CreateUser(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.CreateUser"

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	doc := mongoUser{
		ID:        bson.NewObjectID(),
		Name:      in.Name,
		Email:     in.Email,
		Age:       in.Age,
		Password:  in.PasswordHash,
		Tokens:    []mongoSession{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.user(), nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.findOne(ctx, op, bson.D{{Key: "_id", Value: oid}})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, emailNorm string) (User, error) {
	return s.findOne(ctx, "identity.GetUserByEmail", bson.D{{Key: "email", Value: emailNorm}})
}

func (s *MongoStore) findOne(ctx context.Context, op string, filter bson.D) (User, error) {
	var doc mongoUser
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.user(), nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, id string, ch Changes, now time.Time) (User, error) {
	const op = "identity.UpdateUser"

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	set := bson.D{{Key: "updatedAt", Value: now}}
	if ch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *ch.Name})
	}
	if ch.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *ch.Email})
	}
	if ch.Age != nil {
		set = append(set, bson.E{Key: "age", Value: *ch.Age})
	}
	if ch.PasswordHash != nil {
		set = append(set, bson.E{Key: "password", Value: *ch.PasswordHash})
	}

	var doc mongoUser
	err = s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	switch {
	case err == nil:
		return doc.user(), nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return User{}, NotFoundError{Op: op, Resource: "user"}
	case mongo.IsDuplicateKeyError(err):
		return User{}, ConflictError{Op: op, Field: "email"}
	default:
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
}

func (s *MongoStore) DeleteUser(ctx context.Context, id string) (User, error) {
	const op = "identity.DeleteUser"

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	var doc mongoUser
	if err := s.users.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.user(), nil
}

func (s *MongoStore) SetAvatar(ctx context.Context, id string, png []byte, now time.Time) error {
	return s.updateOne(ctx, "identity.SetAvatar", id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "avatar", Value: png},
			{Key: "updatedAt", Value: now},
		}},
	})
}

func (s *MongoStore) ClearAvatar(ctx context.Context, id string, now time.Time) error {
	return s.updateOne(ctx, "identity.ClearAvatar", id, bson.D{
		{Key: "$unset", Value: bson.D{{Key: "avatar", Value: ""}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
	})
}

func (s *MongoStore) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	const op = "identity.GetAvatar"

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, NotFoundError{Op: op, Resource: "user"}
	}

	var doc struct {
		Avatar []byte `bson:"avatar"`
	}
	err = s.users.FindOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		options.FindOne().SetProjection(bson.D{{Key: "avatar", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, NotFoundError{Op: op, Resource: "user"}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(doc.Avatar) == 0 {
		return nil, NotFoundError{Op: op, Resource: "avatar"}
	}
	return doc.Avatar, nil
}

// AddSession filters expired entries and appends e in one pipeline update.
// The entry is passed through $literal so client-supplied strings are never
// evaluated as field paths.
func (s *MongoStore) AddSession(ctx context.Context, userID string, e SessionEntry, pruneBefore time.Time) error {
	kept := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$tokens", bson.A{}}}}},
		{Key: "cond", Value: bson.D{{Key: "$gte", Value: bson.A{"$$this.expiresAt", pruneBefore}}}},
	}}}
	added := bson.A{bson.D{{Key: "$literal", Value: toMongoSession(e)}}}

	return s.updateOne(ctx, "identity.AddSession", userID, mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "tokens", Value: bson.D{{Key: "$concatArrays", Value: bson.A{kept, added}}}},
		}}},
	})
}

func (s *MongoStore) RemoveSession(ctx context.Context, userID, sessionID string) error {
	return s.updateOne(ctx, "identity.RemoveSession", userID, bson.D{
		{Key: "$pull", Value: bson.D{{Key: "tokens", Value: bson.D{{Key: "sid", Value: sessionID}}}}},
	})
}

func (s *MongoStore) ClearSessions(ctx context.Context, userID string) error {
	return s.updateOne(ctx, "identity.ClearSessions", userID, bson.D{
		{Key: "$set", Value: bson.D{{Key: "tokens", Value: bson.A{}}}},
	})
}

func (s *MongoStore) updateOne(ctx context.Context, op, id string, update any) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return NotFoundError{Op: op, Resource: "user"}
	}
	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close is a no-op; the client owner disconnects it.
func (s *MongoStore) Close(context.Context) error { return nil }
