package clickhouse

import (
	"context"
	"fmt"
	"time"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// HourPriceStore implements storage.HourPriceStore using ClickHouse.
type HourPriceStore struct {
	conn *Conn
}

// NewHourPriceStore creates a new HourPriceStore.
func NewHourPriceStore(conn *Conn) *HourPriceStore {
	return &HourPriceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HourPriceStore = (*HourPriceStore)(nil)

// Get retrieves the price for an exact hour. Returns ErrNotFound if not exists.
func (s *HourPriceStore) Get(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.one(ctx, "hour_price_get", `
		SELECT currency, chain_id, hour_timestamp, price_usd
		FROM hour_prices FINAL
		WHERE currency = ? AND chain_id = ? AND hour_timestamp = ?
		LIMIT 1
	`, currency, chainID, hourTimestamp)
}

// NearestAfter returns the earliest cached hour strictly after hourTimestamp.
func (s *HourPriceStore) NearestAfter(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.one(ctx, "hour_price_after", `
		SELECT currency, chain_id, hour_timestamp, price_usd
		FROM hour_prices FINAL
		WHERE currency = ? AND chain_id = ? AND hour_timestamp > ?
		ORDER BY hour_timestamp ASC
		LIMIT 1
	`, currency, chainID, hourTimestamp)
}

// NearestBefore returns the latest cached hour strictly before hourTimestamp.
func (s *HourPriceStore) NearestBefore(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.one(ctx, "hour_price_before", `
		SELECT currency, chain_id, hour_timestamp, price_usd
		FROM hour_prices FINAL
		WHERE currency = ? AND chain_id = ? AND hour_timestamp < ?
		ORDER BY hour_timestamp DESC
		LIMIT 1
	`, currency, chainID, hourTimestamp)
}

func (s *HourPriceStore) one(ctx context.Context, operation, query string, args ...any) (p *domain.HourPrice, err error) {
	defer func(start time.Time) { observe(operation, start, err) }(time.Now())

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
		return nil, storage.ErrNotFound
	}
	var hp domain.HourPrice
	if err := rows.Scan(&hp.Currency, &hp.ChainID, &hp.HourTimestamp, &hp.PriceUsd); err != nil {
		return nil, fmt.Errorf("%s scan: %w", operation, err)
	}
	hp.ID = domain.HourPriceID(hp.Currency, hp.ChainID, hp.HourTimestamp)
	return &hp, nil
}

// InsertBulk adds prices, skipping hours already stored or repeated in the batch.
func (s *HourPriceStore) InsertBulk(ctx context.Context, prices []*domain.HourPrice) (n int, err error) {
	if len(prices) == 0 {
		return 0, nil
	}
	defer func(start time.Time) { observe("hour_price_insert_bulk", start, err) }(time.Now())

	seen := make(map[string]struct{}, len(prices))
	fresh := make([]*domain.HourPrice, 0, len(prices))
	for _, p := range prices {
		if p == nil || p.ID == "" {
			return 0, storage.ErrInvalidInput
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		var count uint64
		err := s.conn.QueryRow(ctx, `
			SELECT count() FROM hour_prices
			WHERE currency = ? AND chain_id = ? AND hour_timestamp = ?
		`, p.Currency, p.ChainID, p.HourTimestamp).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("check hour price exists: %w", err)
		}
		if count == 0 {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO hour_prices (currency, chain_id, hour_timestamp, price_usd)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	for _, p := range fresh {
		if err := batch.Append(p.Currency, p.ChainID, p.HourTimestamp, p.PriceUsd); err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return len(fresh), nil
}
