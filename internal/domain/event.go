package domain

import (
	"context"
	"math/big"
)

// Event names as emitted by the Trading contract.
const (
	EventPositionUpdated = "PositionUpdated"
	EventClosePosition   = "ClosePosition"
)

// EventMeta locates a decoded log on its chain.
type EventMeta struct {
	Contract    string `json:"contract"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
	LogIndex    uint   `json:"logIndex"`

	// Timestamp is optional; sources that know the block time (replay files)
	// set it so the resolver can skip the RPC round trip.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// TradingEvent is a decoded Trading contract event.
type TradingEvent interface {
	Name() string
	Meta() EventMeta
}

// PositionUpdated is emitted whenever a position is opened or its net
// state changes. Amounts are 8-decimal fixed-point integers.
type PositionUpdated struct {
	EventMeta

	Key       string   `json:"key"`
	User      string   `json:"user"`
	ProductID string   `json:"productId"`
	Currency  string   `json:"currency"`
	IsLong    bool     `json:"isLong"`
	Price     *big.Int `json:"price"`
	Margin    *big.Int `json:"margin"`
	Size      *big.Int `json:"size"`
	Fee       *big.Int `json:"fee"`
}

func (e *PositionUpdated) Name() string    { return EventPositionUpdated }
func (e *PositionUpdated) Meta() EventMeta { return e.EventMeta }

// ClosePosition is emitted on every full or partial close, including
// liquidations. Amounts are 8-decimal fixed-point integers; Pnl is signed.
type ClosePosition struct {
	EventMeta

	Key           string   `json:"key"`
	User          string   `json:"user"`
	ProductID     string   `json:"productId"`
	Currency      string   `json:"currency"`
	Price         *big.Int `json:"price"`
	Margin        *big.Int `json:"margin"`
	Size          *big.Int `json:"size"`
	Fee           *big.Int `json:"fee"`
	Pnl           *big.Int `json:"pnl"`
	WasLiquidated bool     `json:"wasLiquidated"`
}

func (e *ClosePosition) Name() string    { return EventClosePosition }
func (e *ClosePosition) Meta() EventMeta { return e.EventMeta }

// EventHandler consumes one event. Sources stop at the first error so the
// event is seen again after a restart.
type EventHandler func(ctx context.Context, ev TradingEvent) error
