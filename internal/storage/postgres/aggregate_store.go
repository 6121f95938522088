package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// AggregateStore implements storage.AggregateStore using PostgreSQL.
// All four levels live in one table keyed by (kind, id).
type AggregateStore struct {
	pool *Pool
}

// NewAggregateStore creates a new AggregateStore.
func NewAggregateStore(pool *Pool) *AggregateStore {
	return &AggregateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AggregateStore = (*AggregateStore)(nil)

const aggregateColumns = `
	kind, id, chain_id, currency, product_id, date,
	cumulative_fees, cumulative_fees_usd, cumulative_pnl, cumulative_pnl_usd,
	cumulative_volume, cumulative_volume_usd, cumulative_margin, cumulative_margin_usd,
	open_interest, open_interest_usd, open_interest_long, open_interest_long_usd,
	open_interest_short, open_interest_short_usd, position_count, trade_count`

// Get retrieves a record by kind and id. Returns ErrNotFound if not exists.
func (s *AggregateStore) Get(ctx context.Context, kind domain.AggregateKind, id string) (a *domain.Aggregate, err error) {
	if !kind.Valid() {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("aggregate_get", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+aggregateColumns+` FROM aggregates WHERE kind = $1 AND id = $2`, string(kind), id)
	a, err = scanAggregate(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get aggregate %s %s: %w", kind, id, err)
	}
	return a, nil
}

// Upsert writes the full record.
func (s *AggregateStore) Upsert(ctx context.Context, a *domain.Aggregate) (err error) {
	if a == nil || a.ID == "" || !a.Kind.Valid() {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("aggregate_upsert", start, err) }(time.Now())

	_, err = s.pool.Exec(ctx, `
		INSERT INTO aggregates (`+aggregateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (kind, id) DO UPDATE SET
			cumulative_fees = EXCLUDED.cumulative_fees,
			cumulative_fees_usd = EXCLUDED.cumulative_fees_usd,
			cumulative_pnl = EXCLUDED.cumulative_pnl,
			cumulative_pnl_usd = EXCLUDED.cumulative_pnl_usd,
			cumulative_volume = EXCLUDED.cumulative_volume,
			cumulative_volume_usd = EXCLUDED.cumulative_volume_usd,
			cumulative_margin = EXCLUDED.cumulative_margin,
			cumulative_margin_usd = EXCLUDED.cumulative_margin_usd,
			open_interest = EXCLUDED.open_interest,
			open_interest_usd = EXCLUDED.open_interest_usd,
			open_interest_long = EXCLUDED.open_interest_long,
			open_interest_long_usd = EXCLUDED.open_interest_long_usd,
			open_interest_short = EXCLUDED.open_interest_short,
			open_interest_short_usd = EXCLUDED.open_interest_short_usd,
			position_count = EXCLUDED.position_count,
			trade_count = EXCLUDED.trade_count
	`,
		string(a.Kind), a.ID, a.ChainID, a.Currency, a.ProductID, a.Date,
		a.CumulativeFees, a.CumulativeFeesUsd, a.CumulativePnl, a.CumulativePnlUsd,
		a.CumulativeVolume, a.CumulativeVolumeUsd, a.CumulativeMargin, a.CumulativeMarginUsd,
		a.OpenInterest, a.OpenInterestUsd, a.OpenInterestLong, a.OpenInterestLongUsd,
		a.OpenInterestShort, a.OpenInterestShortUsd, a.PositionCount, a.TradeCount,
	)
	if err != nil {
		return fmt.Errorf("upsert aggregate %s %s: %w", a.Kind, a.ID, err)
	}
	return nil
}

// List returns records matching f, ordered by (date, id) ASC.
func (s *AggregateStore) List(ctx context.Context, f storage.AggregateFilter) (result []*domain.Aggregate, err error) {
	if !f.Kind.Valid() {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("aggregate_list", start, err) }(time.Now())

	conds := []string{"kind = $1"}
	args := []any{string(f.Kind)}
	if f.ChainID != 0 {
		args = append(args, f.ChainID)
		conds = append(conds, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	if f.Kind.IsDaily() {
		if f.From != 0 {
			args = append(args, f.From)
			conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
		}
		if f.To != 0 {
			args = append(args, f.To)
			conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
		}
	}

	rows, err := s.pool.Query(ctx, `SELECT `+aggregateColumns+` FROM aggregates WHERE `+
		strings.Join(conds, " AND ")+` ORDER BY date ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return result, nil
}

func scanAggregate(row pgx.Row) (*domain.Aggregate, error) {
	var (
		a    domain.Aggregate
		kind string
	)
	err := row.Scan(
		&kind, &a.ID, &a.ChainID, &a.Currency, &a.ProductID, &a.Date,
		&a.CumulativeFees, &a.CumulativeFeesUsd, &a.CumulativePnl, &a.CumulativePnlUsd,
		&a.CumulativeVolume, &a.CumulativeVolumeUsd, &a.CumulativeMargin, &a.CumulativeMarginUsd,
		&a.OpenInterest, &a.OpenInterestUsd, &a.OpenInterestLong, &a.OpenInterestLongUsd,
		&a.OpenInterestShort, &a.OpenInterestShortUsd, &a.PositionCount, &a.TradeCount,
	)
	if err != nil {
		return nil, err
	}
	a.Kind = domain.AggregateKind(kind)
	return &a, nil
}
