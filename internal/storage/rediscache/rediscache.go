// Package rediscache fronts an hour price store with a shared Redis cache
// so several indexer processes avoid repeating the same lookups.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/observability"
	"perp-stats/internal/storage"
)

// DefaultTTL bounds how long a cached hour lives in Redis.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "perp-stats:hour-price:"

// NewClient creates a go-redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// HourPriceStore caches exact-hour reads of the wrapped store. Nearest
// lookups always go to the wrapped store. Redis failures are logged and
// never fail a call.
type HourPriceStore struct {
	storage.HourPriceStore
	client redis.Cmdable
	ttl    time.Duration
	log    *logrus.Entry
}

var _ storage.HourPriceStore = (*HourPriceStore)(nil)

// New wraps next. ttl <= 0 means DefaultTTL.
func New(next storage.HourPriceStore, client redis.Cmdable, ttl time.Duration, logger *logrus.Entry) *HourPriceStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &HourPriceStore{
		HourPriceStore: next,
		client:         client,
		ttl:            ttl,
		log:            logging.OrDefault(logger, "rediscache"),
	}
}

func key(id string) string {
	return keyPrefix + id
}

// Get serves from Redis and falls back to the wrapped store, caching hits.
// Misses are not cached because a later backfill may fill the hour.
func (s *HourPriceStore) Get(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	id := domain.HourPriceID(currency, chainID, hourTimestamp)

	start := time.Now()
	data, err := s.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var p domain.HourPrice
		if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
			observability.RecordDBQuery("redis", "hour_price_get", time.Since(start).Seconds(), nil)
			return &p, nil
		}
		s.log.WithField("key", key(id)).Warn("discarding malformed cached price")
	case errors.Is(err, redis.Nil):
		observability.RecordDBQuery("redis", "hour_price_get", time.Since(start).Seconds(), nil)
	default:
		observability.RecordDBQuery("redis", "hour_price_get", time.Since(start).Seconds(), err)
		s.log.WithError(err).Warn("redis get failed")
	}

	p, err := s.HourPriceStore.Get(ctx, currency, chainID, hourTimestamp)
	if err != nil {
		return nil, err
	}
	s.set(ctx, []*domain.HourPrice{p})
	return p, nil
}

// InsertBulk writes through to the wrapped store and then caches the rows.
func (s *HourPriceStore) InsertBulk(ctx context.Context, prices []*domain.HourPrice) (int, error) {
	n, err := s.HourPriceStore.InsertBulk(ctx, prices)
	if err != nil {
		return n, err
	}
	s.set(ctx, prices)
	return n, nil
}

func (s *HourPriceStore) set(ctx context.Context, prices []*domain.HourPrice) {
	if len(prices) == 0 {
		return
	}
	start := time.Now()
	pipe := s.client.Pipeline()
	for _, p := range prices {
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		// SetNX keeps the first cached value, matching insert-once semantics.
		pipe.SetNX(ctx, key(p.ID), data, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	observability.RecordDBQuery("redis", "hour_price_set", time.Since(start).Seconds(), err)
	if err != nil {
		s.log.WithError(err).WithField("rows", len(prices)).Warn("redis set failed")
	}
}
