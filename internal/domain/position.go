package domain

import "fmt"

// PositionState tracks where a position is in its lifecycle.
type PositionState int

const (
	// PositionAbsent marks a position built in memory for a key that has
	// no stored record yet.
	PositionAbsent PositionState = iota
	// PositionOpen marks a position that is persisted and open.
	PositionOpen
	// PositionClosed marks a position removed by a full close.
	PositionClosed
)

func (s PositionState) String() string {
	switch s {
	case PositionAbsent:
		return "absent"
	case PositionOpen:
		return "open"
	case PositionClosed:
		return "closed"
	}
	return fmt.Sprintf("PositionState(%d)", int(s))
}

// PositionID renders the ledger id for an on-chain position key.
func PositionID(key string, chainID int64) string {
	return fmt.Sprintf("%s:%d", key, chainID)
}

// Position is the current net state of one on-chain position.
type Position struct {
	ID       string `json:"_id" bson:"_id"` // key:chainId
	Key      string `json:"key" bson:"key"`
	ChainID  int64  `json:"chainId" bson:"chainId"`
	Currency string `json:"currency" bson:"currency"`
	User     string `json:"user" bson:"user"`

	ProductID string `json:"productId" bson:"productId"`
	IsLong    bool   `json:"isLong" bson:"isLong"`

	Margin           float64 `json:"margin" bson:"margin"`
	Size             float64 `json:"size" bson:"size"`
	Price            float64 `json:"price" bson:"price"`
	Leverage         float64 `json:"leverage" bson:"leverage"`
	LiquidationPrice float64 `json:"liquidationPrice" bson:"liquidationPrice"`
	Fee              float64 `json:"fee" bson:"fee"` // accumulated over all updates

	CreatedAtTimestamp   int64 `json:"createdAtTimestamp" bson:"createdAtTimestamp"`
	CreatedAtBlockNumber int64 `json:"createdAtBlockNumber" bson:"createdAtBlockNumber"`
	UpdatedAtTimestamp   int64 `json:"updatedAtTimestamp" bson:"updatedAtTimestamp"`
	UpdatedAtBlockNumber int64 `json:"updatedAtBlockNumber" bson:"updatedAtBlockNumber"`

	State PositionState `json:"-" bson:"-"`
}

// NewPosition returns an absent, zero-valued position for key.
func NewPosition(key string, chainID int64, productID string) *Position {
	return &Position{
		ID:        PositionID(key, chainID),
		Key:       key,
		ChainID:   chainID,
		ProductID: productID,
		State:     PositionAbsent,
	}
}
