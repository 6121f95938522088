package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// PositionStore implements storage.PositionStore using MongoDB.
type PositionStore struct {
	coll *mongo.Collection
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(db *mongo.Database) *PositionStore {
	return &PositionStore{coll: db.Collection(positionsCollection)}
}

var _ storage.PositionStore = (*PositionStore)(nil)

// Get retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, id string) (p *domain.Position, err error) {
	defer func(start time.Time) { observe("position_get", start, err) }(time.Now())

	var pos domain.Position
	if err = findOne(ctx, s.coll, byID(id), &pos); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	pos.State = domain.PositionOpen
	return &pos, nil
}

// Upsert writes the full position.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("position_upsert", start, err) }(time.Now())

	if _, err = s.coll.ReplaceOne(ctx, byID(p.ID), p, upsert()); err != nil {
		return fmt.Errorf("upsert position %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a position. Deleting a missing id is not an error.
func (s *PositionStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("position_delete", start, err) }(time.Now())

	if _, err = s.coll.DeleteOne(ctx, byID(id)); err != nil {
		return fmt.Errorf("delete position %s: %w", id, err)
	}
	return nil
}
