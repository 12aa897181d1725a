package identity

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"tasker/cmd/identity/ids"
)

// NewULID returns a new ULID (26-char string). Session ids use it.
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewUserID returns a new 24-hex user id. Every store uses the ObjectID
// shape so ids stay portable between backends.
func NewUserID() string {
	return bson.NewObjectID().Hex()
}

// ValidUserID reports whether s has the user id shape.
func ValidUserID(s string) bool {
	_, err := bson.ObjectIDFromHex(s)
	return err == nil
}
