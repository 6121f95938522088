package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"perp-stats/internal/storage"
)

// UserStore implements storage.UserStore using MongoDB.
type UserStore struct {
	coll *mongo.Collection
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(usersCollection)}
}

var _ storage.UserStore = (*UserStore)(nil)

// Upsert sets createdAt on first sight and always moves updatedAt.
func (s *UserStore) Upsert(ctx context.Context, address string, timestamp int64) (err error) {
	if address == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("user_upsert", start, err) }(time.Now())

	update := bson.D{
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAtTimestamp", Value: timestamp}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAtTimestamp", Value: timestamp}}},
	}
	_, err = s.coll.UpdateOne(ctx, byID(strings.ToLower(address)), update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Count returns the number of distinct users.
func (s *UserStore) Count(ctx context.Context) (n int64, err error) {
	defer func(start time.Time) { observe("user_count", start, err) }(time.Now())

	n, err = s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
