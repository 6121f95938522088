package memory

import (
	"context"
	"sync"

	"perp-stats/internal/domain"
	"perp-stats/internal/storage"
)

// HourPriceStore is an in-memory implementation of storage.HourPriceStore.
type HourPriceStore struct {
	mu     sync.RWMutex
	prices map[string]*domain.HourPrice // keyed by id
}

// NewHourPriceStore creates a new in-memory hour price store.
func NewHourPriceStore() *HourPriceStore {
	return &HourPriceStore{
		prices: make(map[string]*domain.HourPrice),
	}
}

// Get retrieves the price for an exact hour. Returns ErrNotFound if not exists.
func (s *HourPriceStore) Get(_ context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.prices[domain.HourPriceID(currency, chainID, hourTimestamp)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	priceCopy := *p
	return &priceCopy, nil
}

// NearestAfter returns the earliest cached hour strictly after hourTimestamp.
func (s *HourPriceStore) NearestAfter(_ context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.nearest(currency, chainID, func(p *domain.HourPrice, best *domain.HourPrice) bool {
		return p.HourTimestamp > hourTimestamp && (best == nil || p.HourTimestamp < best.HourTimestamp)
	})
}

// NearestBefore returns the latest cached hour strictly before hourTimestamp.
func (s *HourPriceStore) NearestBefore(_ context.Context, currency string, chainID, hourTimestamp int64) (*domain.HourPrice, error) {
	return s.nearest(currency, chainID, func(p *domain.HourPrice, best *domain.HourPrice) bool {
		return p.HourTimestamp < hourTimestamp && (best == nil || p.HourTimestamp > best.HourTimestamp)
	})
}

func (s *HourPriceStore) nearest(currency string, chainID int64, better func(p, best *domain.HourPrice) bool) (*domain.HourPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.HourPrice
	for _, p := range s.prices {
		if p.Currency != currency || p.ChainID != chainID {
			continue
		}
		if better(p, best) {
			best = p
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}

	priceCopy := *best
	return &priceCopy, nil
}

// InsertBulk adds prices, skipping ids that already exist.
func (s *HourPriceStore) InsertBulk(_ context.Context, prices []*domain.HourPrice) (int, error) {
	for _, p := range prices {
		if p == nil || p.ID == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, p := range prices {
		if _, exists := s.prices[p.ID]; exists {
			continue
		}
		priceCopy := *p
		s.prices[p.ID] = &priceCopy
		inserted++
	}
	return inserted, nil
}

var _ storage.HourPriceStore = (*HourPriceStore)(nil)
