package memory

import (
	"context"
	"sync"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// ProgressStore is an in-memory implementation of storage.ProgressStore.
type ProgressStore struct {
	mu       sync.RWMutex
	progress map[string]*domain.SyncProgress
}

// NewProgressStore creates a new in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		progress: make(map[string]*domain.SyncProgress),
	}
}

// Get returns the progress for a contract. Returns ErrNotFound if none was saved.
func (s *ProgressStore) Get(_ context.Context, chainID int64, contract string) (*domain.SyncProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.progress[domain.SyncProgressID(chainID, contract)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	progressCopy := *p
	return &progressCopy, nil
}

// Upsert saves progress, replacing the previous value.
func (s *ProgressStore) Upsert(_ context.Context, p *domain.SyncProgress) error {
	if p == nil || p.Contract == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	progressCopy := *p
	s.progress[domain.SyncProgressID(p.ChainID, p.Contract)] = &progressCopy
	return nil
}

var _ storage.ProgressStore = (*ProgressStore)(nil)
