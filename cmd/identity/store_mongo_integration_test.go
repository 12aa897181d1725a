package identity

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Integration tests are opt-in and require TASKER_TEST_MONGO_URI.

func TestMongoStore_Contract(t *testing.T) {
	client := mustConnectTestMongo(t)

	runStoreContract(t, func(t *testing.T) Store {
		return mustNewTestMongoStore(t, client)
	})
}

func TestMongoStore_DocumentShape(t *testing.T) {
	client := mustConnectTestMongo(t)
	s := mustNewTestMongoStore(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, NewUser{Name: "A", Email: "a@example.com", PasswordHash: "digest"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	now := time.Now().UTC()
	if err := s.AddSession(ctx, u.ID, SessionEntry{ID: "s1", TokenHash: "th", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, now); err != nil {
		t.Fatalf("AddSession: %v", err)
	}

	oid, _ := bson.ObjectIDFromHex(u.ID)
	var raw bson.M
	if err := s.users.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&raw); err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if raw["password"] != "digest" || raw["email"] != "a@example.com" {
		t.Fatalf("unexpected document: %v", raw)
	}
	tokens, ok := raw["tokens"].(bson.A)
	if !ok || len(tokens) != 1 {
		t.Fatalf("expected one token entry, got %#v", raw["tokens"])
	}
}

func mustConnectTestMongo(t *testing.T) *mongo.Client {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("TASKER_TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("integration test skipped: TASKER_TEST_MONGO_URI is not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerSelectionTimeout(3 * time.Second))
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: MongoDB unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	return client
}

func mustNewTestMongoStore(t *testing.T, client *mongo.Client) *MongoStore {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	db := "tasker_it_" + strings.ToLower(id)

	s, err := NewMongoStore(client, db)
	if err != nil {
		t.Fatalf("NewMongoStore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Database(db).Drop(ctx)
	})
	return s
}
