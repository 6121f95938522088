package memory

import (
	"context"
	"sync"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]*domain.Position),
	}
}

// Get retrieves a position by id. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.positions[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	posCopy := *p
	posCopy.State = domain.PositionOpen
	return &posCopy, nil
}

// Upsert writes the full position.
func (s *PositionStore) Upsert(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posCopy := *p
	s.positions[p.ID] = &posCopy
	return nil
}

// Delete removes a position.
func (s *PositionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, id)
	return nil
}

// Len returns the number of open positions.
func (s *PositionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

var _ storage.PositionStore = (*PositionStore)(nil)
