package memory

import (
	"context"
	"sort"
	"sync"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// TokenInfoStore is an in-memory implementation of storage.TokenInfoStore.
type TokenInfoStore struct {
	mu    sync.RWMutex
	infos map[string]*domain.TokenInfo
}

// NewTokenInfoStore creates a new in-memory token info store.
func NewTokenInfoStore() *TokenInfoStore {
	return &TokenInfoStore{
		infos: make(map[string]*domain.TokenInfo),
	}
}

// Get retrieves token info. Returns ErrNotFound if not exists.
func (s *TokenInfoStore) Get(_ context.Context, currency string, chainID int64) (*domain.TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.infos[domain.TokenInfoID(currency, chainID)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	infoCopy := *info
	return &infoCopy, nil
}

// Insert adds token info. Returns ErrDuplicateKey if the id exists.
func (s *TokenInfoStore) Insert(_ context.Context, info *domain.TokenInfo) error {
	if info == nil || info.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.infos[info.ID]; exists {
		return storage.ErrDuplicateKey
	}

	infoCopy := *info
	s.infos[info.ID] = &infoCopy
	return nil
}

// List returns every token info ordered by id.
func (s *TokenInfoStore) List(_ context.Context) ([]*domain.TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenInfo, 0, len(s.infos))
	for _, info := range s.infos {
		infoCopy := *info
		result = append(result, &infoCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ storage.TokenInfoStore = (*TokenInfoStore)(nil)
