package clickhouse

import (
	"context"
	"fmt"
	"time"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
// MergeTree does not enforce uniqueness, so Insert checks first.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	id, chain_id, position_key, tx_hash, user_address, currency, product_id, is_long,
	leverage, entry_price, close_price,
	size, size_usd, margin, margin_usd, fee, fee_usd, pnl, pnl_usd,
	was_liquidated, is_full_close, duration, block_number, timestamp`

// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) (err error) {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("trade_insert", start, err) }(time.Now())

	var count uint64
	if err = s.conn.QueryRow(ctx, `SELECT count() FROM trades WHERE id = ?`, t.ID).Scan(&count); err != nil {
		return fmt.Errorf("check trade exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO trades (`+tradeColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	err = batch.Append(
		t.ID, t.ChainID, t.PositionKey, t.TxHash, t.User, t.Currency, t.ProductID, boolToUInt8(t.IsLong),
		t.Leverage, t.EntryPrice, t.ClosePrice,
		t.Size, t.SizeUsd, t.Margin, t.MarginUsd, t.Fee, t.FeeUsd, t.Pnl, t.PnlUsd,
		boolToUInt8(t.WasLiquidated), boolToUInt8(t.IsFullClose), t.Duration, t.BlockNumber, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByID retrieves a trade. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, id string) (t *domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_get", start, err) }(time.Now())

	trades, err := s.query(ctx, `SELECT `+tradeColumns+` FROM trades FINAL WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	if len(trades) == 0 {
		return nil, storage.ErrNotFound
	}
	return trades[0], nil
}

// GetByPositionKey retrieves all trades of one position, ordered by timestamp ASC.
func (s *TradeStore) GetByPositionKey(ctx context.Context, chainID int64, key string) (trades []*domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_list", start, err) }(time.Now())

	trades, err = s.query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades FINAL
		WHERE chain_id = ? AND position_key = ?
		ORDER BY timestamp ASC, id ASC
	`, chainID, key)
	if err != nil {
		return nil, fmt.Errorf("get trades by position key: %w", err)
	}
	return trades, nil
}

func (s *TradeStore) query(ctx context.Context, query string, args ...any) ([]*domain.Trade, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var isLong, liquidated, fullClose uint8
		err := rows.Scan(
			&t.ID, &t.ChainID, &t.PositionKey, &t.TxHash, &t.User, &t.Currency, &t.ProductID, &isLong,
			&t.Leverage, &t.EntryPrice, &t.ClosePrice,
			&t.Size, &t.SizeUsd, &t.Margin, &t.MarginUsd, &t.Fee, &t.FeeUsd, &t.Pnl, &t.PnlUsd,
			&liquidated, &fullClose, &t.Duration, &t.BlockNumber, &t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.IsLong, t.WasLiquidated, t.IsFullClose = isLong == 1, liquidated == 1, fullClose == 1
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}
