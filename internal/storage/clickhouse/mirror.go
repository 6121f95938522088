package clickhouse

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/storage"
)

// Mirror returns a copy of stores whose trade and hour price writes are also
// sent to ClickHouse. Reads stay on the primary backend. Failed copies are
// logged and never fail the primary write.
func Mirror(stores *storage.Stores, conn *Conn, logger *logrus.Entry) *storage.Stores {
	log := logging.OrDefault(logger, "clickhouse-mirror")
	mirrored := *stores
	mirrored.Trades = NewMirroredTrades(stores.Trades, NewTradeStore(conn), log)
	mirrored.HourPrices = NewMirroredHourPrices(stores.HourPrices, NewHourPriceStore(conn), log)
	return &mirrored
}

// MirroredTrades writes trades to a primary and an analytics store.
type MirroredTrades struct {
	storage.TradeStore
	analytics storage.TradeStore
	log       *logrus.Entry
}

var _ storage.TradeStore = (*MirroredTrades)(nil)

// NewMirroredTrades creates a trade store mirror.
func NewMirroredTrades(primary, analytics storage.TradeStore, log *logrus.Entry) *MirroredTrades {
	return &MirroredTrades{TradeStore: primary, analytics: analytics, log: log}
}

// Insert writes to the primary store and copies the trade on success.
func (m *MirroredTrades) Insert(ctx context.Context, t *domain.Trade) error {
	if err := m.TradeStore.Insert(ctx, t); err != nil {
		return err
	}
	if err := m.analytics.Insert(ctx, t); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		m.log.WithError(err).WithField("trade_id", t.ID).Warn("mirror trade")
	}
	return nil
}

// MirroredHourPrices writes hour prices to a primary and an analytics store.
type MirroredHourPrices struct {
	storage.HourPriceStore
	analytics storage.HourPriceStore
	log       *logrus.Entry
}

var _ storage.HourPriceStore = (*MirroredHourPrices)(nil)

// NewMirroredHourPrices creates an hour price store mirror.
func NewMirroredHourPrices(primary, analytics storage.HourPriceStore, log *logrus.Entry) *MirroredHourPrices {
	return &MirroredHourPrices{HourPriceStore: primary, analytics: analytics, log: log}
}

// InsertBulk writes to the primary store and copies the whole batch on success.
// The analytics store skips hours it already holds.
func (m *MirroredHourPrices) InsertBulk(ctx context.Context, prices []*domain.HourPrice) (int, error) {
	n, err := m.HourPriceStore.InsertBulk(ctx, prices)
	if err != nil {
		return n, err
	}
	if _, err := m.analytics.InsertBulk(ctx, prices); err != nil {
		m.log.WithError(err).WithField("rows", len(prices)).Warn("mirror hour prices")
	}
	return n, nil
}
