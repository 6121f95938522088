package memory

import "perp-stats/internal/storage"

// NewStores returns a fresh in-memory backend.
func NewStores() *storage.Stores {
	return &storage.Stores{
		Positions:  NewPositionStore(),
		Aggregates: NewAggregateStore(),
		Trades:     NewTradeStore(),
		HourPrices: NewHourPriceStore(),
		TokenInfos: NewTokenInfoStore(),
		Users:      NewUserStore(),
		Progress:   NewProgressStore(),
	}
}
