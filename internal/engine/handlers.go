package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"perp-stats/internal/domain"
	"perp-stats/internal/fixedpoint"
	"perp-stats/internal/memo"
	"perp-stats/internal/observability"
)

func (e *Engine) onPositionUpdated(ctx context.Context, scope *memo.Scope, log *logrus.Entry, ev *domain.PositionUpdated) error {
	err := requireAmounts(ev.Name(), map[string]*big.Int{
		"price": ev.Price, "margin": ev.Margin, "size": ev.Size, "fee": ev.Fee,
	})
	if err != nil {
		return err
	}

	leverage, err := fixedpoint.Leverage(ev.Size, ev.Margin)
	if err != nil {
		return fmt.Errorf("position %s: %w", ev.Key, err)
	}
	liquidation, err := fixedpoint.LiquidationPrice(ev.Price, leverage, ev.IsLong)
	if err != nil {
		return fmt.Errorf("position %s: %w", ev.Key, err)
	}

	chainID, ts, err := e.resolve(ctx, ev.Meta())
	if err != nil {
		return err
	}
	ev.Timestamp = ts

	s, err := e.load(ctx, scope, ev.Currency, chainID, ev.ProductID, ev.Key, ts, nil)
	if err != nil {
		return err
	}
	p := s.position

	// The contract only reports net state, so the order is the difference
	// to the last known state. Both deltas may be negative.
	orderSize := new(big.Int).Sub(ev.Size, fixedpoint.FromFloat(p.Size, fixedpoint.UnitDecimals))
	orderMargin := new(big.Int).Sub(ev.Margin, fixedpoint.FromFloat(p.Margin, fixedpoint.UnitDecimals))

	p.ProductID = ev.ProductID
	p.Currency = ev.Currency
	p.User = ev.User
	p.IsLong = ev.IsLong
	p.Price = fixedpoint.Units(ev.Price)
	p.Margin = fixedpoint.Units(ev.Margin)
	p.Size = fixedpoint.Units(ev.Size)
	p.Leverage = fixedpoint.ToFloat(leverage, fixedpoint.UnitDecimals)
	p.LiquidationPrice = fixedpoint.Units(liquidation)
	p.Fee += fixedpoint.Units(ev.Fee)
	p.UpdatedAtTimestamp = ts
	p.UpdatedAtBlockNumber = int64(ev.BlockNumber)
	if s.isNew {
		p.CreatedAtTimestamp = ts
		p.CreatedAtBlockNumber = int64(ev.BlockNumber)
	}

	flows := domain.Flows{
		Fees:   domain.Valued(fixedpoint.Units(ev.Fee), s.price, s.priceKnown),
		Volume: domain.Valued(fixedpoint.Units(orderSize), s.price, s.priceKnown),
		Margin: domain.Valued(fixedpoint.Units(orderMargin), s.price, s.priceKnown),
	}
	for _, a := range s.levels.All() {
		a.AddFlows(flows)
		if s.isNew {
			a.PositionCount++
		}
		a.AddOpenInterest(flows.Volume, ev.IsLong)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.ledger.Save(gctx, p) })
	g.Go(func() error { return e.aggregates.SaveAll(gctx, s.levels) })
	g.Go(func() error {
		if err := e.users.Upsert(gctx, ev.User, ts); err != nil {
			return fmt.Errorf("upsert user %s: %w", ev.User, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if s.isNew {
		observability.RecordPositionOpened()
	}
	log.WithFields(logrus.Fields{
		"position":    p.ID,
		"new":         s.isNew,
		"order_size":  flows.Volume.Token,
		"price_known": s.priceKnown,
	}).Debug("position updated")
	return nil
}

func (e *Engine) onClosePosition(ctx context.Context, scope *memo.Scope, log *logrus.Entry, ev *domain.ClosePosition) (bool, error) {
	err := requireAmounts(ev.Name(), map[string]*big.Int{
		"price": ev.Price, "margin": ev.Margin, "size": ev.Size, "fee": ev.Fee, "pnl": ev.Pnl,
	})
	if err != nil {
		return false, err
	}

	chainID, ts, err := e.resolve(ctx, ev.Meta())
	if err != nil {
		return false, err
	}
	ev.Timestamp = ts

	p, isNew, err := e.ledger.GetOrCreate(ctx, scope, ev.Key, chainID, ev.ProductID)
	if err != nil {
		return false, err
	}
	if isNew {
		log.WithField("position", p.ID).Debug("close for unknown position ignored")
		return false, nil
	}

	s, err := e.load(ctx, scope, ev.Currency, chainID, ev.ProductID, ev.Key, ts, p)
	if err != nil {
		return false, err
	}
	levels := s.levels

	// The global counter numbers the trade and moves before anything else.
	levels.Global.TradeCount++

	// Compare the raw sum converted once, not two separately rounded floats.
	isFullClose := fixedpoint.Units(new(big.Int).Add(ev.Margin, ev.Fee)) == p.Margin

	size := domain.Valued(fixedpoint.Units(ev.Size), s.price, s.priceKnown)
	flows := domain.Flows{
		Fees:   domain.Valued(fixedpoint.Units(ev.Fee), s.price, s.priceKnown),
		Pnl:    domain.Valued(fixedpoint.Units(ev.Pnl), s.price, s.priceKnown),
		Volume: size,
		Margin: domain.Valued(fixedpoint.Units(ev.Margin), s.price, s.priceKnown),
	}

	trade := &domain.Trade{
		ID:            domain.TradeID(chainID, ev.Currency, levels.Global.TradeCount),
		ChainID:       chainID,
		PositionKey:   ev.Key,
		TxHash:        ev.TxHash,
		User:          ev.User,
		Currency:      p.Currency,
		ProductID:     ev.ProductID,
		IsLong:        p.IsLong,
		Leverage:      p.Leverage,
		EntryPrice:    p.Price,
		ClosePrice:    fixedpoint.Units(ev.Price),
		Size:          size.Token,
		SizeUsd:       size.Usd,
		Margin:        flows.Margin.Token,
		MarginUsd:     flows.Margin.Usd,
		Fee:           flows.Fees.Token,
		FeeUsd:        flows.Fees.Usd,
		Pnl:           flows.Pnl.Token,
		PnlUsd:        flows.Pnl.Usd,
		WasLiquidated: ev.WasLiquidated,
		IsFullClose:   isFullClose,
		Duration:      ts - p.CreatedAtTimestamp,
		BlockNumber:   int64(ev.BlockNumber),
		Timestamp:     ts,
	}

	if !isFullClose {
		p.Margin -= flows.Margin.Token
		p.Size -= size.Token
	}

	for _, a := range levels.All() {
		if isFullClose {
			a.PositionCount--
		}
		a.AddFlows(flows)
		if a != levels.Global {
			a.TradeCount++
		}
		a.AddOpenInterest(size.Neg(), p.IsLong)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.trades.Insert(gctx, trade); err != nil {
			return fmt.Errorf("insert trade %s: %w", trade.ID, err)
		}
		return nil
	})
	g.Go(func() error { return e.aggregates.SaveAll(gctx, levels) })
	g.Go(func() error {
		if isFullClose {
			return e.ledger.Delete(gctx, scope, p)
		}
		return e.ledger.Save(gctx, p)
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	observability.RecordTrade(isFullClose, ev.WasLiquidated)
	log.WithFields(logrus.Fields{
		"position":   p.ID,
		"trade":      trade.ID,
		"full_close": isFullClose,
		"liquidated": ev.WasLiquidated,
	}).Debug("position closed")
	return true, nil
}
