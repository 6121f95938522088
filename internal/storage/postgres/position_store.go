package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, key, chain_id, currency, user_address, product_id, is_long,
	margin, size, price, leverage, liquidation_price, fee,
	created_at_timestamp, created_at_block_number, updated_at_timestamp, updated_at_block_number`

// Get retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, id string) (p *domain.Position, err error) {
	defer func(start time.Time) { observe("position_get", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err = scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// Upsert writes the full position.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("position_upsert", start, err) }(time.Now())

	_, err = s.pool.Exec(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			currency = EXCLUDED.currency,
			user_address = EXCLUDED.user_address,
			product_id = EXCLUDED.product_id,
			is_long = EXCLUDED.is_long,
			margin = EXCLUDED.margin,
			size = EXCLUDED.size,
			price = EXCLUDED.price,
			leverage = EXCLUDED.leverage,
			liquidation_price = EXCLUDED.liquidation_price,
			fee = EXCLUDED.fee,
			created_at_timestamp = EXCLUDED.created_at_timestamp,
			created_at_block_number = EXCLUDED.created_at_block_number,
			updated_at_timestamp = EXCLUDED.updated_at_timestamp,
			updated_at_block_number = EXCLUDED.updated_at_block_number
	`,
		p.ID, p.Key, p.ChainID, p.Currency, p.User, p.ProductID, p.IsLong,
		p.Margin, p.Size, p.Price, p.Leverage, p.LiquidationPrice, p.Fee,
		p.CreatedAtTimestamp, p.CreatedAtBlockNumber, p.UpdatedAtTimestamp, p.UpdatedAtBlockNumber,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// Delete removes a position. Deleting a missing id is not an error.
func (s *PositionStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("position_delete", start, err) }(time.Now())

	if _, err = s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.Key, &p.ChainID, &p.Currency, &p.User, &p.ProductID, &p.IsLong,
		&p.Margin, &p.Size, &p.Price, &p.Leverage, &p.LiquidationPrice, &p.Fee,
		&p.CreatedAtTimestamp, &p.CreatedAtBlockNumber, &p.UpdatedAtTimestamp, &p.UpdatedAtBlockNumber,
	)
	if err != nil {
		return nil, err
	}
	p.State = domain.PositionOpen
	return &p, nil
}
