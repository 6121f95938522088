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

// TradeStore implements storage.TradeStore using MongoDB.
type TradeStore struct {
	coll *mongo.Collection
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(db *mongo.Database) *TradeStore {
	return &TradeStore{coll: db.Collection(tradesCollection)}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) (err error) {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("trade_insert", start, err) }(time.Now())

	if _, err = s.coll.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a trade. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, id string) (t *domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_get", start, err) }(time.Now())

	var trade domain.Trade
	if err = findOne(ctx, s.coll, byID(id), &trade); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return &trade, nil
}

// GetByPositionKey retrieves all trades of one position, ordered by timestamp ASC.
func (s *TradeStore) GetByPositionKey(ctx context.Context, chainID int64, key string) (trades []*domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_list", start, err) }(time.Now())

	filter := bson.D{{Key: "chainId", Value: chainID}, {Key: "positionKey", Value: key}}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find trades for %s: %w", key, err)
	}
	if err = cur.All(ctx, &trades); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	return trades, nil
}
