package memory

import (
	"context"
	"sort"
	"sync"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// AggregateStore is an in-memory implementation of storage.AggregateStore.
type AggregateStore struct {
	mu     sync.RWMutex
	byKind map[domain.AggregateKind]map[string]*domain.Aggregate
}

// NewAggregateStore creates a new in-memory aggregate store.
func NewAggregateStore() *AggregateStore {
	byKind := make(map[domain.AggregateKind]map[string]*domain.Aggregate, len(domain.AllAggregateKinds))
	for _, k := range domain.AllAggregateKinds {
		byKind[k] = make(map[string]*domain.Aggregate)
	}
	return &AggregateStore{byKind: byKind}
}

// Get retrieves a record by kind and id. Returns ErrNotFound if not exists.
func (s *AggregateStore) Get(_ context.Context, kind domain.AggregateKind, id string) (*domain.Aggregate, error) {
	if !kind.Valid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.byKind[kind][id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	aggCopy := *a
	return &aggCopy, nil
}

// Upsert writes the full record.
func (s *AggregateStore) Upsert(_ context.Context, a *domain.Aggregate) error {
	if a == nil || a.ID == "" || !a.Kind.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aggCopy := *a
	s.byKind[a.Kind][a.ID] = &aggCopy
	return nil
}

// List returns records matching f, ordered by (date, id) ASC.
func (s *AggregateStore) List(_ context.Context, f storage.AggregateFilter) ([]*domain.Aggregate, error) {
	if !f.Kind.Valid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Aggregate
	for _, a := range s.byKind[f.Kind] {
		if f.ChainID != 0 && a.ChainID != f.ChainID {
			continue
		}
		if f.Kind.IsDaily() {
			if f.From != 0 && a.Date < f.From {
				continue
			}
			if f.To != 0 && a.Date > f.To {
				continue
			}
		}
		aggCopy := *a
		result = append(result, &aggCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ storage.AggregateStore = (*AggregateStore)(nil)
