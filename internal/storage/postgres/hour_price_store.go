package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// HourPriceStore implements storage.HourPriceStore using PostgreSQL.
type HourPriceStore struct {
	pool *Pool
}

// NewHourPriceStore creates a new HourPriceStore.
func NewHourPriceStore(pool *Pool) *HourPriceStore {
	return &HourPriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HourPriceStore = (*HourPriceStore)(nil)

// Get retrieves the price for an exact hour. Returns ErrNotFound if not exists.
func (s *HourPriceStore) Get(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.one(ctx, "hour_price_get", `
		SELECT id, currency, chain_id, hour_timestamp, price_usd
		FROM hour_prices
		WHERE currency = $1 AND chain_id = $2 AND hour_timestamp = $3
	`, currency, chainID, hourTimestamp)
}

// NearestAfter returns the earliest cached hour strictly after hourTimestamp.
func (s *HourPriceStore) NearestAfter(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.one(ctx, "hour_price_after", `
		SELECT id, currency, chain_id, hour_timestamp, price_usd
		FROM hour_prices
		WHERE currency = $1 AND chain_id = $2 AND hour_timestamp > $3
		ORDER BY hour_timestamp ASC
		LIMIT 1
	`, currency, chainID, hourTimestamp)
}

// NearestBefore returns the latest cached hour strictly before hourTimestamp.
func (s *HourPriceStore) NearestBefore(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.one(ctx, "hour_price_before", `
		SELECT id, currency, chain_id, hour_timestamp, price_usd
		FROM hour_prices
		WHERE currency = $1 AND chain_id = $2 AND hour_timestamp < $3
		ORDER BY hour_timestamp DESC
		LIMIT 1
	`, currency, chainID, hourTimestamp)
}

func (s *HourPriceStore) one(ctx context.Context, operation, query string, args ...any) (p *domain.HourPrice, err error) {
	defer func(start time.Time) { observe(operation, start, err) }(time.Now())

	var hp domain.HourPrice
	err = s.pool.QueryRow(ctx, query, args...).Scan(&hp.ID, &hp.Currency, &hp.ChainID, &hp.HourTimestamp, &hp.PriceUsd)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return &hp, nil
}

// InsertBulk adds prices in one batch, skipping ids that already exist.
func (s *HourPriceStore) InsertBulk(ctx context.Context, prices []*domain.HourPrice) (n int, err error) {
	if len(prices) == 0 {
		return 0, nil
	}
	defer func(start time.Time) { observe("hour_price_insert_bulk", start, err) }(time.Now())

	batch := &pgx.Batch{}
	for _, p := range prices {
		if p == nil || p.ID == "" {
			return 0, storage.ErrInvalidInput
		}
		batch.Queue(`
			INSERT INTO hour_prices (id, currency, chain_id, hour_timestamp, price_usd)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, p.ID, p.Currency, p.ChainID, p.HourTimestamp, p.PriceUsd)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range prices {
		tag, err := results.Exec()
		if err != nil {
			return n, fmt.Errorf("insert hour prices: %w", err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}
