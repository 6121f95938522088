// Package pricing resolves the USD price of a currency at a point in time,
// backed by an hourly price cache that is backfilled from the market data
// provider on demand.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/memo"
	"perp-stats/internal/observability"
	"perp-stats/internal/pricing/gecko"
	"perp-stats/internal/storage"
)

// ErrPriceProvider wraps provider HTTP and schema failures.
// An unknown price is not an error.
var ErrPriceProvider = errors.New("price provider error")

// Provider is the market data API.
type Provider interface {
	Token(ctx context.Context, network, address string) (*gecko.Token, error)
	OHLCVBefore(ctx context.Context, network, pool string, base bool, before int64, limit int) ([]gecko.Candle, error)
}

// Options configures an Oracle.
type Options struct {
	Networks      map[int64]string      // nil = DefaultNetworks
	WrappedNative map[int64]NativeToken // nil = DefaultWrappedNative
	PageLimit     int                   // 0 = gecko.MaxOHLCVLimit
	Now           func() time.Time      // nil = time.Now
	Logger        *logrus.Entry
}

// Oracle implements the multi-tier price lookup.
type Oracle struct {
	prices    storage.HourPriceStore
	tokens    *TokenResolver
	provider  Provider
	pageLimit int
	now       func() time.Time
	log       *logrus.Entry
}

// NewOracle creates an oracle.
func NewOracle(prices storage.HourPriceStore, infos storage.TokenInfoStore, provider Provider, opts Options) *Oracle {
	if opts.Networks == nil {
		opts.Networks = DefaultNetworks()
	}
	if opts.WrappedNative == nil {
		opts.WrappedNative = DefaultWrappedNative()
	}
	if opts.PageLimit <= 0 || opts.PageLimit > gecko.MaxOHLCVLimit {
		opts.PageLimit = gecko.MaxOHLCVLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.OrDefault(opts.Logger, "pricing")

	return &Oracle{
		prices:    prices,
		tokens:    NewTokenResolver(infos, provider, opts.Networks, opts.WrappedNative, opts.Now, log),
		provider:  provider,
		pageLimit: opts.PageLimit,
		now:       opts.Now,
		log:       log,
	}
}

// Quote is a resolved price. Known is false when no price could be found.
type Quote struct {
	Price float64
	Known bool
}

// Price returns the USD price of currency on chainID for the hour containing
// timestamp (unix seconds). ok is false when the price is genuinely unknown.
// The result, known or not, is memoized in scope.
func (o *Oracle) Price(ctx context.Context, scope *memo.Scope, currency string, chainID, timestamp int64) (float64, bool, error) {
	hour := domain.HourOf(timestamp)
	key := "price:" + domain.HourPriceID(currency, chainID, hour)

	q, err := memo.Retrieve(ctx, scope, key, func(ctx context.Context) (Quote, error) {
		return o.resolve(ctx, currency, chainID, hour)
	})
	if err != nil {
		observability.RecordPriceLookup(observability.PriceError)
		return 0, false, err
	}
	return q.Price, q.Known, nil
}

func (o *Oracle) resolve(ctx context.Context, currency string, chainID, hour int64) (Quote, error) {
	cached, err := o.prices.Get(ctx, currency, chainID, hour)
	if err == nil {
		observability.RecordPriceLookup(observability.PriceCache)
		return Quote{Price: cached.PriceUsd, Known: true}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Quote{}, fmt.Errorf("get hour price: %w", err)
	}

	nowHour := domain.HourOf(o.now().Unix())

	q, err := o.bracket(ctx, currency, chainID, hour, nowHour)
	if err != nil {
		return Quote{}, err
	}
	if q.Known {
		observability.RecordPriceLookup(observability.PriceBracket)
		return q, nil
	}

	return o.backfill(ctx, currency, chainID, hour, nowHour)
}

// bracket picks the nearer of the closest cached hours on either side.
// Ties go to the earlier hour. For the current or a future hour, a value
// more than one hour away does not count.
func (o *Oracle) bracket(ctx context.Context, currency string, chainID, hour, nowHour int64) (Quote, error) {
	var after, before *domain.HourPrice

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := o.prices.NearestAfter(gctx, currency, chainID, hour)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("nearest hour price after: %w", err)
		}
		after = p
		return nil
	})
	g.Go(func() error {
		p, err := o.prices.NearestBefore(gctx, currency, chainID, hour)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("nearest hour price before: %w", err)
		}
		before = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return Quote{}, err
	}

	var closest *domain.HourPrice
	switch {
	case after == nil && before == nil:
		return Quote{}, nil
	case after == nil:
		closest = before
	case before == nil:
		closest = after
	case abs(after.HourTimestamp-hour) < abs(before.HourTimestamp-hour):
		closest = after
	default:
		closest = before
	}

	if hour >= nowHour && abs(closest.HourTimestamp-hour) > domain.SecondsPerHour {
		o.log.WithFields(logrus.Fields{
			"currency": currency,
			"chain_id": chainID,
			"hour":     hour,
			"now_hour": nowHour,
		}).Info("no cached price close to the current hour")
		return Quote{}, nil
	}

	return Quote{Price: closest.PriceUsd, Known: true}, nil
}

type hourlyPrice struct {
	timestamp int64
	price     float64
}

func (o *Oracle) backfill(ctx context.Context, currency string, chainID, hour, nowHour int64) (Quote, error) {
	log := o.log.WithFields(logrus.Fields{"currency": currency, "chain_id": chainID, "hour": hour})

	prices, err := o.fetch(ctx, currency, chainID, hour, nowHour)
	if err != nil {
		return Quote{}, err
	}
	if len(prices) == 0 {
		log.Error("no prices returned by provider")
		observability.RecordPriceLookup(observability.PriceUnknown)
		return Quote{}, nil
	}

	rows := make([]*domain.HourPrice, 0, len(prices))
	for _, p := range prices {
		rows = append(rows, &domain.HourPrice{
			ID:            domain.HourPriceID(currency, chainID, p.timestamp),
			Currency:      currency,
			ChainID:       chainID,
			HourTimestamp: p.timestamp,
			PriceUsd:      p.price,
		})
	}
	n, err := o.prices.InsertBulk(ctx, rows)
	if err != nil {
		log.WithError(err).Error("persist backfilled prices")
	} else {
		observability.RecordHourPricesBackfilled(n)
		log.WithField("rows", n).Debug("backfilled hour prices")
	}

	observability.RecordPriceLookup(observability.PriceBackfill)
	return Quote{Price: selectPrice(prices, hour), Known: true}, nil
}

// selectPrice returns the exact hour if fetched. Otherwise it walks forward
// from the first row and stops at the first row that is not strictly closer.
// Rows arrive newest first, so the walk can stop short of the true nearest
// row when the target lies between pages.
func selectPrice(prices []hourlyPrice, hour int64) float64 {
	for _, p := range prices {
		if p.timestamp == hour {
			return p.price
		}
	}

	closest := prices[0]
	for _, p := range prices[1:] {
		if abs(p.timestamp-hour) >= abs(closest.timestamp-hour) {
			break
		}
		closest = p
	}
	return closest.price
}

// fetch pages hourly candles backward from to until from is reached or the
// provider runs out.
func (o *Oracle) fetch(ctx context.Context, currency string, chainID, from, to int64) ([]hourlyPrice, error) {
	info, err := o.tokens.Resolve(ctx, currency, chainID)
	if err != nil || info == nil {
		return nil, err
	}

	var prices []hourlyPrice
	for to > from {
		candles, err := o.provider.OHLCVBefore(ctx, info.NetworkID, info.PoolAddress, info.PoolIsInBase, to, o.pageLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: ohlcv %s before %d: %w", ErrPriceProvider, info.PoolAddress, to, err)
		}
		if len(candles) == 0 {
			break
		}
		for _, c := range candles {
			prices = append(prices, hourlyPrice{timestamp: c.Timestamp, price: (c.Open + c.Close) / 2})
		}

		next := candles[len(candles)-1].Timestamp
		if next >= to {
			break
		}
		to = next
	}
	return prices, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
