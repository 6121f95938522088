// Package aggregate loads and saves the four rolling statistics levels.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"perp-stats/internal/domain"
	"perp-stats/internal/memo"
	"perp-stats/internal/storage"
)

// Repository provides get-or-create and save over an AggregateStore.
type Repository struct {
	store storage.AggregateStore
}

// NewRepository creates a repository over store.
func NewRepository(store storage.AggregateStore) *Repository {
	return &Repository{store: store}
}

func scopeKey(kind domain.AggregateKind, id string) string {
	return "aggregate:" + string(kind) + ":" + id
}

// GetOrCreate returns the record for key, building a fresh one when none is
// stored. Fresh daily records carry open interest and position count forward
// from the previous day. Nothing is written.
func (r *Repository) GetOrCreate(ctx context.Context, scope *memo.Scope, key domain.AggregateKey) (*domain.Aggregate, error) {
	if !key.Kind.Valid() {
		return nil, fmt.Errorf("aggregate kind %q: %w", key.Kind, storage.ErrInvalidInput)
	}
	id := key.ID()

	return memo.Retrieve(ctx, scope, scopeKey(key.Kind, id), func(ctx context.Context) (*domain.Aggregate, error) {
		a, err := r.store.Get(ctx, key.Kind, id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get %s %s: %w", key.Kind, id, err)
		}

		a = domain.NewAggregate(key)
		if !key.Kind.IsDaily() {
			return a, nil
		}

		prevKey := key.Previous()
		prev, err := r.store.Get(ctx, key.Kind, prevKey.ID())
		switch {
		case err == nil:
			a.CarryForward(prev)
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("get previous %s %s: %w", key.Kind, prevKey.ID(), err)
		}
		return a, nil
	})
}

// Save persists the full record.
func (r *Repository) Save(ctx context.Context, a *domain.Aggregate) error {
	if err := r.store.Upsert(ctx, a); err != nil {
		return fmt.Errorf("save %s %s: %w", a.Kind, a.ID, err)
	}
	return nil
}

// Levels is the set of records one event touches.
type Levels struct {
	Global     *domain.Aggregate
	Day        *domain.Aggregate
	Product    *domain.Aggregate
	DayProduct *domain.Aggregate
}

// All returns the four records in a fixed order.
func (l *Levels) All() []*domain.Aggregate {
	return []*domain.Aggregate{l.Global, l.Day, l.Product, l.DayProduct}
}

// Keys returns the four keys for an event on (currency, chainID, productID)
// at timestamp (unix seconds).
func Keys(currency string, chainID int64, productID string, timestamp int64) [4]domain.AggregateKey {
	day := domain.DayID(timestamp)
	return [4]domain.AggregateKey{
		{Kind: domain.KindGlobal, Currency: currency, ChainID: chainID},
		{Kind: domain.KindDay, Currency: currency, ChainID: chainID, DayID: day},
		{Kind: domain.KindProduct, Currency: currency, ChainID: chainID, ProductID: productID},
		{Kind: domain.KindDayProduct, Currency: currency, ChainID: chainID, ProductID: productID, DayID: day},
	}
}

// Load fetches or creates all four levels concurrently.
func (r *Repository) Load(ctx context.Context, scope *memo.Scope, currency string, chainID int64, productID string, timestamp int64) (*Levels, error) {
	keys := Keys(currency, chainID, productID, timestamp)
	var out [4]*domain.Aggregate

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			a, err := r.GetOrCreate(gctx, scope, key)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Levels{Global: out[0], Day: out[1], Product: out[2], DayProduct: out[3]}, nil
}

// SaveAll persists every level concurrently.
func (r *Repository) SaveAll(ctx context.Context, l *Levels) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range l.All() {
		g.Go(func() error { return r.Save(gctx, a) })
	}
	return g.Wait()
}
