// Package engine applies Trading events to positions, the four aggregate
// levels and the trade log.
//
// Every handler reads first, computes the complete new state in memory and
// only then writes. A failure before the write phase leaves storage
// untouched. The engine does no locking: events of one chain must be handled
// one at a time, in order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"perp-stats/internal/aggregate"
	"perp-stats/internal/domain"
	"perp-stats/internal/fixedpoint"
	"perp-stats/internal/ledger"
	"perp-stats/internal/logging"
	"perp-stats/internal/memo"
	"perp-stats/internal/observability"
	"perp-stats/internal/pricing"
	"perp-stats/internal/storage"
)

// ErrMalformedEvent is returned for events missing a required amount.
var ErrMalformedEvent = errors.New("malformed event")

// PriceOracle resolves USD prices. ok is false when the price is unknown.
type PriceOracle interface {
	Price(ctx context.Context, scope *memo.Scope, currency string, chainID, timestamp int64) (float64, bool, error)
}

// ChainResolver resolves the chain id and block timestamps (unix seconds).
type ChainResolver interface {
	ChainID(ctx context.Context) (int64, error)
	BlockTimestamp(ctx context.Context, number uint64) (int64, error)
}

// Options configures an Engine.
type Options struct {
	Logger *logrus.Entry
}

// Engine handles the events of one chain.
type Engine struct {
	chain      ChainResolver
	prices     PriceOracle
	ledger     *ledger.Ledger
	aggregates *aggregate.Repository
	trades     storage.TradeStore
	users      storage.UserStore
	log        *logrus.Entry
}

// New creates an engine writing to stores.
func New(chain ChainResolver, prices PriceOracle, stores *storage.Stores, opts Options) *Engine {
	return &Engine{
		chain:      chain,
		prices:     prices,
		ledger:     ledger.New(stores.Positions),
		aggregates: aggregate.NewRepository(stores.Aggregates),
		trades:     stores.Trades,
		users:      stores.Users,
		log:        logging.OrDefault(opts.Logger, "engine"),
	}
}

// Handle applies one event inside a fresh scope. The resolved block time
// is stored on the event so handlers wrapping Handle can forward it.
func (e *Engine) Handle(ctx context.Context, ev domain.TradingEvent) error {
	start := time.Now()
	meta := ev.Meta()
	log := e.log.WithFields(logrus.Fields{
		"event_id": uuid.NewString(),
		"event":    ev.Name(),
		"block":    meta.BlockNumber,
		"tx":       meta.TxHash,
		"index":    meta.LogIndex,
	})
	scope := memo.NewScope()

	var (
		applied = true
		err     error
	)
	switch ev := ev.(type) {
	case *domain.PositionUpdated:
		err = e.onPositionUpdated(ctx, scope, log, ev)
	case *domain.ClosePosition:
		applied, err = e.onClosePosition(ctx, scope, log, ev)
	default:
		err = fmt.Errorf("%s: %w", ev.Name(), ErrMalformedEvent)
	}

	if err != nil {
		observability.RecordEventError(ev.Name(), errorType(err))
		log.WithError(err).Error("event failed")
		return err
	}
	if !applied {
		observability.RecordEventSkipped(ev.Name(), "unknown_position")
		return nil
	}

	observability.RecordEventProcessed(ev.Name(), time.Since(start).Seconds())
	log.WithField("duration", time.Since(start)).Debug("event applied")
	return nil
}

// OnPositionUpdated applies an open or update of a position.
func (e *Engine) OnPositionUpdated(ctx context.Context, scope *memo.Scope, ev *domain.PositionUpdated) error {
	return e.onPositionUpdated(ctx, scope, e.log, ev)
}

// OnClosePosition applies a full or partial close. applied is false when
// the position is unknown, in which case nothing was written.
func (e *Engine) OnClosePosition(ctx context.Context, scope *memo.Scope, ev *domain.ClosePosition) (applied bool, err error) {
	return e.onClosePosition(ctx, scope, e.log, ev)
}

// resolve returns the chain id and the event's timestamp. Events that carry
// a timestamp skip the block lookup.
func (e *Engine) resolve(ctx context.Context, meta domain.EventMeta) (chainID, timestamp int64, err error) {
	chainID, err = e.chain.ChainID(ctx)
	if err != nil {
		return 0, 0, err
	}
	if meta.Timestamp > 0 {
		return chainID, meta.Timestamp, nil
	}
	timestamp, err = e.chain.BlockTimestamp(ctx, meta.BlockNumber)
	if err != nil {
		return 0, 0, err
	}
	return chainID, timestamp, nil
}

// snapshot is everything one event reads.
type snapshot struct {
	price      float64
	priceKnown bool
	position   *domain.Position
	isNew      bool
	levels     *aggregate.Levels
}

// load fetches the price and the four levels concurrently. When position
// is nil the position is fetched as well.
func (e *Engine) load(ctx context.Context, scope *memo.Scope, currency string, chainID int64, productID, key string, timestamp int64, position *domain.Position) (*snapshot, error) {
	s := &snapshot{position: position}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		s.price, s.priceKnown, err = e.prices.Price(gctx, scope, currency, chainID, timestamp)
		return err
	})
	if position == nil {
		g.Go(func() error {
			var err error
			s.position, s.isNew, err = e.ledger.GetOrCreate(gctx, scope, key, chainID, productID)
			return err
		})
	}
	g.Go(func() error {
		var err error
		s.levels, err = e.aggregates.Load(gctx, scope, currency, chainID, productID, timestamp)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s, nil
}

func requireAmounts(name string, amounts map[string]*big.Int) error {
	for field, v := range amounts {
		if v == nil {
			return fmt.Errorf("%s: missing %s: %w", name, field, ErrMalformedEvent)
		}
	}
	return nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed"
	case errors.Is(err, fixedpoint.ErrInvalidPositionState):
		return "invalid_position"
	case errors.Is(err, pricing.ErrPriceProvider):
		return "price_provider"
	case errors.Is(err, storage.ErrDuplicateKey):
		return "duplicate"
	}
	return "other"
}
