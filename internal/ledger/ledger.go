// Package ledger tracks the current state of every open position.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"perp-stats/internal/domain"
	"perp-stats/internal/memo"
	"perp-stats/internal/storage"
)

// Ledger reads and writes positions through a per-event scope.
type Ledger struct {
	store storage.PositionStore
}

// New creates a ledger over store.
func New(store storage.PositionStore) *Ledger {
	return &Ledger{store: store}
}

func scopeKey(id string) string {
	return "position:" + id
}

// GetOrCreate returns the stored position for key or a zero-valued one.
// isNew reports that nothing was stored, so callers know to count it.
func (l *Ledger) GetOrCreate(ctx context.Context, scope *memo.Scope, key string, chainID int64, productID string) (*domain.Position, bool, error) {
	id := domain.PositionID(key, chainID)

	p, err := memo.Retrieve(ctx, scope, scopeKey(id), func(ctx context.Context) (*domain.Position, error) {
		p, err := l.store.Get(ctx, id)
		if err == nil {
			p.State = domain.PositionOpen
			return p, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get position %s: %w", id, err)
		}
		return domain.NewPosition(key, chainID, productID), nil
	})
	if err != nil {
		return nil, false, err
	}
	return p, p.State == domain.PositionAbsent, nil
}

// Save persists the position and marks it open.
func (l *Ledger) Save(ctx context.Context, p *domain.Position) error {
	if p.State == domain.PositionClosed {
		return fmt.Errorf("save closed position %s: %w", p.ID, storage.ErrInvalidInput)
	}
	if err := l.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("save position %s: %w", p.ID, err)
	}
	p.State = domain.PositionOpen
	return nil
}

// Delete removes the position permanently. Only a full close may call it.
func (l *Ledger) Delete(ctx context.Context, scope *memo.Scope, p *domain.Position) error {
	if err := l.store.Delete(ctx, p.ID); err != nil {
		return fmt.Errorf("delete position %s: %w", p.ID, err)
	}
	p.State = domain.PositionClosed
	scope.Delete(scopeKey(p.ID))
	return nil
}
