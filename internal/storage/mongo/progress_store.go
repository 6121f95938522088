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

// ProgressStore implements storage.ProgressStore using MongoDB.
// Documents are keyed by SyncProgressID.
type ProgressStore struct {
	coll *mongo.Collection
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(db *mongo.Database) *ProgressStore {
	return &ProgressStore{coll: db.Collection(progressCollection)}
}

var _ storage.ProgressStore = (*ProgressStore)(nil)

// Get returns the progress for a contract. Returns ErrNotFound if none was saved.
func (s *ProgressStore) Get(ctx context.Context, chainID int64, contract string) (p *domain.SyncProgress, err error) {
	defer func(start time.Time) { observe("progress_get", start, err) }(time.Now())

	var sp domain.SyncProgress
	if err = findOne(ctx, s.coll, byID(domain.SyncProgressID(chainID, contract)), &sp); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get sync progress: %w", err)
	}
	return &sp, nil
}

// Upsert saves progress, replacing the previous value.
func (s *ProgressStore) Upsert(ctx context.Context, p *domain.SyncProgress) (err error) {
	if p == nil || p.Contract == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("progress_upsert", start, err) }(time.Now())

	// The replacement carries no _id; the upsert takes it from the filter.
	if _, err = s.coll.ReplaceOne(ctx, byID(domain.SyncProgressID(p.ChainID, p.Contract)), p, upsert()); err != nil {
		return fmt.Errorf("upsert sync progress: %w", err)
	}
	return nil
}
