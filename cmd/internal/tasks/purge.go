// Package tasks is the slice of the task subsystem the account service
// depends on: deleting every task owned by a user when the user is deleted.
package tasks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Purger deletes the tasks owned by a user and reports how many were removed.
type Purger interface {
	PurgeOwner(ctx context.Context, ownerID string) (int64, error)
}

// NoopPurger is used when no task storage is configured.
type NoopPurger struct{}

// PurgeOwner implements Purger.
func (NoopPurger) PurgeOwner(context.Context, string) (int64, error) { return 0, nil }

// MongoPurger deletes from the tasks collection by the owner ObjectID.
type MongoPurger struct {
	tasks *mongo.Collection
}

// NewMongoPurger returns a purger over db.tasks.
func NewMongoPurger(client *mongo.Client, db string) (*MongoPurger, error) {
	if client == nil {
		return nil, fmt.Errorf("tasks: nil mongo client")
	}
	if strings.TrimSpace(db) == "" {
		return nil, fmt.Errorf("tasks: empty database name")
	}
	return &MongoPurger{tasks: client.Database(db).Collection("tasks")}, nil
}

// PurgeOwner implements Purger.
func (p *MongoPurger) PurgeOwner(ctx context.Context, ownerID string) (int64, error) {
	oid, err := bson.ObjectIDFromHex(ownerID)
	if err != nil {
		return 0, fmt.Errorf("tasks: owner id: %w", err)
	}
	res, err := p.tasks.DeleteMany(ctx, bson.D{{Key: "owner", Value: oid}})
	if err != nil {
		return 0, fmt.Errorf("tasks: delete many: %w", err)
	}
	return res.DeletedCount, nil
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresPurger deletes rows from <schema>.tasks by owner_id.
type PostgresPurger struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresPurger returns a purger over schema.tasks. The pool is owned by the caller.
func NewPostgresPurger(pool *pgxpool.Pool, schema string) (*PostgresPurger, error) {
	if pool == nil {
		return nil, fmt.Errorf("tasks: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("tasks: invalid schema identifier")
	}
	return &PostgresPurger{
		pool:  pool,
		table: pgx.Identifier{schema, "tasks"}.Sanitize(),
	}, nil
}

// PurgeOwner implements Purger.
func (p *PostgresPurger) PurgeOwner(ctx context.Context, ownerID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM `+p.table+` WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("tasks: delete: %w", err)
	}
	return tag.RowsAffected(), nil
}
