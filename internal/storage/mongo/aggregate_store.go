package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// AggregateStore implements storage.AggregateStore with one collection per
// aggregate kind, named after the kind.
type AggregateStore struct {
	db *mongo.Database
}

// NewAggregateStore creates a new AggregateStore.
func NewAggregateStore(db *mongo.Database) *AggregateStore {
	return &AggregateStore{db: db}
}

var _ storage.AggregateStore = (*AggregateStore)(nil)

func (s *AggregateStore) coll(kind domain.AggregateKind) *mongo.Collection {
	return s.db.Collection(string(kind))
}

// Get retrieves a record by kind and id. Returns ErrNotFound if not exists.
func (s *AggregateStore) Get(ctx context.Context, kind domain.AggregateKind, id string) (a *domain.Aggregate, err error) {
	if !kind.Valid() {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("aggregate_get", start, err) }(time.Now())

	var agg domain.Aggregate
	if err = findOne(ctx, s.coll(kind), byID(id), &agg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return &agg, nil
}

// Upsert writes the full record.
func (s *AggregateStore) Upsert(ctx context.Context, a *domain.Aggregate) (err error) {
	if a == nil || a.ID == "" || !a.Kind.Valid() {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("aggregate_upsert", start, err) }(time.Now())

	if _, err = s.coll(a.Kind).ReplaceOne(ctx, byID(a.ID), a, upsert()); err != nil {
		return fmt.Errorf("upsert %s %s: %w", a.Kind, a.ID, err)
	}
	return nil
}

// List returns records matching f, ordered by (date, id) ASC.
func (s *AggregateStore) List(ctx context.Context, f storage.AggregateFilter) (out []*domain.Aggregate, err error) {
	if !f.Kind.Valid() {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("aggregate_list", start, err) }(time.Now())

	filter := bson.D{}
	if f.ChainID != 0 {
		filter = append(filter, bson.E{Key: "chainId", Value: f.ChainID})
	}
	if f.Kind.IsDaily() {
		date := bson.D{}
		if f.From != 0 {
			date = append(date, bson.E{Key: "$gte", Value: f.From})
		}
		if f.To != 0 {
			date = append(date, bson.E{Key: "$lte", Value: f.To})
		}
		if len(date) > 0 {
			filter = append(filter, bson.E{Key: "date", Value: date})
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll(f.Kind).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", f.Kind, err)
	}
	if err = cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Kind, err)
	}
	return out, nil
}
