package memory

import (
	"context"
	"strings"
	"sync"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]*domain.User),
	}
}

// Upsert sets createdAt on first sight and always moves updatedAt.
func (s *UserStore) Upsert(_ context.Context, address string, timestamp int64) error {
	if address == "" {
		return storage.ErrInvalidInput
	}
	id := strings.ToLower(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.users[id]
	if !exists {
		u = &domain.User{ID: id, CreatedAtTimestamp: timestamp}
		s.users[id] = u
	}
	u.UpdatedAtTimestamp = timestamp
	return nil
}

// Count returns the number of distinct users.
func (s *UserStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// Get returns a copy of one user, for tests.
func (s *UserStore) Get(address string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[strings.ToLower(address)]
	if !exists {
		return nil, false
	}
	userCopy := *u
	return &userCopy, true
}

var _ storage.UserStore = (*UserStore)(nil)
