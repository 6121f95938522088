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

// TokenInfoStore implements storage.TokenInfoStore using MongoDB.
type TokenInfoStore struct {
	coll *mongo.Collection
}

// NewTokenInfoStore creates a new TokenInfoStore.
func NewTokenInfoStore(db *mongo.Database) *TokenInfoStore {
	return &TokenInfoStore{coll: db.Collection(tokenInfosCollection)}
}

var _ storage.TokenInfoStore = (*TokenInfoStore)(nil)

// Get retrieves token info. Returns ErrNotFound if not exists.
func (s *TokenInfoStore) Get(ctx context.Context, currency string, chainID int64) (info *domain.TokenInfo, err error) {
	defer func(start time.Time) { observe("token_info_get", start, err) }(time.Now())

	var ti domain.TokenInfo
	if err = findOne(ctx, s.coll, byID(domain.TokenInfoID(currency, chainID)), &ti); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get token info: %w", err)
	}
	return &ti, nil
}

// Insert adds token info. Returns ErrDuplicateKey if the id exists.
func (s *TokenInfoStore) Insert(ctx context.Context, info *domain.TokenInfo) (err error) {
	if info == nil || info.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("token_info_insert", start, err) }(time.Now())

	if _, err = s.coll.InsertOne(ctx, info); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token info %s: %w", info.ID, err)
	}
	return nil
}

// List returns every token info ordered by id.
func (s *TokenInfoStore) List(ctx context.Context) (infos []*domain.TokenInfo, err error) {
	defer func(start time.Time) { observe("token_info_list", start, err) }(time.Now())

	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list token infos: %w", err)
	}
	if err = cur.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("decode token infos: %w", err)
	}
	return infos, nil
}
