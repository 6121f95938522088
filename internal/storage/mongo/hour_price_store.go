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

const duplicateKeyCode = 11000

// HourPriceStore implements storage.HourPriceStore using MongoDB.
type HourPriceStore struct {
	coll *mongo.Collection
}

// NewHourPriceStore creates a new HourPriceStore.
func NewHourPriceStore(db *mongo.Database) *HourPriceStore {
	return &HourPriceStore{coll: db.Collection(hourPricesCollection)}
}

var _ storage.HourPriceStore = (*HourPriceStore)(nil)

// Get retrieves the price for an exact hour. Returns ErrNotFound if not exists.
func (s *HourPriceStore) Get(ctx context.Context, currency string, chainID, hourTimestamp int64) (p *domain.HourPrice, err error) {
	defer func(start time.Time) { observe("hour_price_get", start, err) }(time.Now())

	var hp domain.HourPrice
	if err = findOne(ctx, s.coll, byID(domain.HourPriceID(currency, chainID, hourTimestamp)), &hp); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get hour price: %w", err)
	}
	return &hp, nil
}

// NearestAfter returns the earliest cached hour strictly after hourTimestamp.
func (s *HourPriceStore) NearestAfter(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.nearest(ctx, "hour_price_after", currency, chainID, "$gt", hourTimestamp, 1)
}

// NearestBefore returns the latest cached hour strictly before hourTimestamp.
func (s *HourPriceStore) NearestBefore(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.nearest(ctx, "hour_price_before", currency, chainID, "$lt", hourTimestamp, -1)
}

func (s *HourPriceStore) nearest(ctx context.Context, operation, currency string, chainID int64, cmp string, hourTimestamp int64, order int) (p *domain.HourPrice, err error) {
	defer func(start time.Time) { observe(operation, start, err) }(time.Now())

	filter := bson.D{
		{Key: "currency", Value: currency},
		{Key: "chainId", Value: chainID},
		{Key: "hourTimestamp", Value: bson.D{{Key: cmp, Value: hourTimestamp}}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "hourTimestamp", Value: order}})

	var hp domain.HourPrice
	if err = findOne(ctx, s.coll, filter, &hp, opts); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return &hp, nil
}

// InsertBulk adds prices with an unordered insert; existing ids are skipped.
func (s *HourPriceStore) InsertBulk(ctx context.Context, prices []*domain.HourPrice) (n int, err error) {
	if len(prices) == 0 {
		return 0, nil
	}
	defer func(start time.Time) { observe("hour_price_insert_bulk", start, err) }(time.Now())

	docs := make([]any, len(prices))
	for i, p := range prices {
		if p == nil || p.ID == "" {
			return 0, storage.ErrInvalidInput
		}
		docs[i] = p
	}

	_, err = s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0, fmt.Errorf("insert hour prices: %w", err)
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return 0, fmt.Errorf("insert hour prices: %w", err)
		}
	}
	return len(docs) - len(bwe.WriteErrors), nil
}
