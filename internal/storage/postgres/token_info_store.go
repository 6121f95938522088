package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// TokenInfoStore implements storage.TokenInfoStore using PostgreSQL.
type TokenInfoStore struct {
	pool *Pool
}

// NewTokenInfoStore creates a new TokenInfoStore.
func NewTokenInfoStore(pool *Pool) *TokenInfoStore {
	return &TokenInfoStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenInfoStore = (*TokenInfoStore)(nil)

const tokenInfoColumns = `
	id, currency, chain_id, mapped_currency, pool_chain_id, network_id,
	decimals, name, symbol, pool_address, pool_is_in_base, created_at_timestamp`

// Get retrieves token info. Returns ErrNotFound if not exists.
func (s *TokenInfoStore) Get(ctx context.Context, currency string, chainID int64) (info *domain.TokenInfo, err error) {
	defer func(start time.Time) { observe("token_info_get", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+tokenInfoColumns+` FROM token_infos WHERE id = $1`,
		domain.TokenInfoID(currency, chainID))
	info, err = scanTokenInfo(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token info: %w", err)
	}
	return info, nil
}

// Insert adds token info. Returns ErrDuplicateKey if the id exists.
func (s *TokenInfoStore) Insert(ctx context.Context, t *domain.TokenInfo) (err error) {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("token_info_insert", start, err) }(time.Now())

	_, err = s.pool.Exec(ctx, `
		INSERT INTO token_infos (`+tokenInfoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		t.ID, t.Currency, t.ChainID, t.MappedCurrency, t.PoolChainID, t.NetworkID,
		t.Decimals, t.Name, t.Symbol, t.PoolAddress, t.PoolIsInBase, t.CreatedAtTimestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token info: %w", err)
	}
	return nil
}

// List returns every token info ordered by id.
func (s *TokenInfoStore) List(ctx context.Context) (infos []*domain.TokenInfo, err error) {
	defer func(start time.Time) { observe("token_info_list", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `SELECT `+tokenInfoColumns+` FROM token_infos ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list token infos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		info, err := scanTokenInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token info row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token info rows: %w", err)
	}
	return infos, nil
}

func scanTokenInfo(row pgx.Row) (*domain.TokenInfo, error) {
	var t domain.TokenInfo
	err := row.Scan(
		&t.ID, &t.Currency, &t.ChainID, &t.MappedCurrency, &t.PoolChainID, &t.NetworkID,
		&t.Decimals, &t.Name, &t.Symbol, &t.PoolAddress, &t.PoolIsInBase, &t.CreatedAtTimestamp,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
