package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24
		)
	`,
		t.ID, t.ChainID, t.PositionKey, t.TxHash, t.User, t.Currency, t.ProductID, t.IsLong,
		t.Leverage, t.EntryPrice, t.ClosePrice,
		t.Size, t.SizeUsd, t.Margin, t.MarginUsd, t.Fee, t.FeeUsd, t.Pnl, t.PnlUsd,
		t.WasLiquidated, t.IsFullClose, t.Duration, t.BlockNumber, t.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, id string) (t *domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_get", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	t, err = scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByPositionKey retrieves all trades of one position, ordered by timestamp ASC.
func (s *TradeStore) GetByPositionKey(ctx context.Context, chainID int64, key string) (trades []*domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_list", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE chain_id = $1 AND position_key = $2
		ORDER BY timestamp ASC, id ASC
	`, chainID, key)
	if err != nil {
		return nil, fmt.Errorf("get trades by position key: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	err := row.Scan(
		&t.ID, &t.ChainID, &t.PositionKey, &t.TxHash, &t.User, &t.Currency, &t.ProductID, &t.IsLong,
		&t.Leverage, &t.EntryPrice, &t.ClosePrice,
		&t.Size, &t.SizeUsd, &t.Margin, &t.MarginUsd, &t.Fee, &t.FeeUsd, &t.Pnl, &t.PnlUsd,
		&t.WasLiquidated, &t.IsFullClose, &t.Duration, &t.BlockNumber, &t.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
