package storage

import (
	"context"

	"perp-stats/internal/domain"
)

// PositionStore holds currently open positions. A record exists iff the
// position is open.
type PositionStore interface {
	// Get retrieves a position by id (key:chainId). Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Position, error)

	// Upsert writes the full position, replacing any stored copy.
	Upsert(ctx context.Context, p *domain.Position) error

	// Delete removes a position. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// AggregateFilter selects aggregate records for listing.
// Zero ChainID matches every chain. From/To bound Date (inclusive) and are
// only applied to daily kinds; zero means unbounded.
type AggregateFilter struct {
	Kind    domain.AggregateKind
	ChainID int64
	From    int64
	To      int64
}

// AggregateStore holds the four aggregate levels.
type AggregateStore interface {
	// Get retrieves a record by kind and id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, kind domain.AggregateKind, id string) (*domain.Aggregate, error)

	// Upsert writes the full record, replacing any stored copy.
	Upsert(ctx context.Context, a *domain.Aggregate) error

	// List returns records matching f, ordered by (date, id) ASC.
	List(ctx context.Context, f AggregateFilter) ([]*domain.Aggregate, error)
}

// TradeStore holds immutable close records.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Trade, error)

	// GetByPositionKey retrieves all trades of one position, ordered by timestamp ASC.
	GetByPositionKey(ctx context.Context, chainID int64, key string) ([]*domain.Trade, error)
}

// HourPriceStore caches hourly USD prices.
type HourPriceStore interface {
	// Get retrieves the price for an exact hour. Returns ErrNotFound if not exists.
	Get(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error)

	// NearestAfter returns the earliest cached hour strictly after hourTimestamp.
	// Returns ErrNotFound if there is none.
	NearestAfter(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error)

	// NearestBefore returns the latest cached hour strictly before hourTimestamp.
	// Returns ErrNotFound if there is none.
	NearestBefore(ctx context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error)

	// InsertBulk adds prices, skipping ids that already exist.
	// Returns the number of rows written.
	InsertBulk(ctx context.Context, prices []*domain.HourPrice) (int, error)
}

// TokenInfoStore holds price provider metadata per (currency, chain).
type TokenInfoStore interface {
	// Get retrieves token info. Returns ErrNotFound if not exists.
	Get(ctx context.Context, currency string, chainID int64) (*domain.TokenInfo, error)

	// Insert adds token info. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, info *domain.TokenInfo) error

	// List returns every token info ordered by id.
	List(ctx context.Context) ([]*domain.TokenInfo, error)
}

// UserStore tracks distinct trader addresses.
type UserStore interface {
	// Upsert sets createdAt on first sight and always moves updatedAt.
	Upsert(ctx context.Context, address string, timestamp int64) error

	// Count returns the number of distinct users.
	Count(ctx context.Context) (int64, error)
}

// ProgressStore persists log ingestion progress so a restart resumes
// without reprocessing.
type ProgressStore interface {
	// Get returns the progress for a contract. Returns ErrNotFound if none was saved.
	Get(ctx context.Context, chainID int64, contract string) (*domain.SyncProgress, error)

	// Upsert saves progress, replacing the previous value.
	Upsert(ctx context.Context, p *domain.SyncProgress) error
}

// Stores groups one backend's implementations.
type Stores struct {
	Positions  PositionStore
	Aggregates AggregateStore
	Trades     TradeStore
	HourPrices HourPriceStore
	TokenInfos TokenInfoStore
	Users      UserStore
	Progress   ProgressStore
}
