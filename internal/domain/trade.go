package domain

import "fmt"

// TradeID renders the id of the n-th trade for a currency on a chain.
// n comes from the global record's trade counter, which is only unique per
// (currency, chainId); both are embedded to keep ids distinct.
func TradeID(chainID int64, currency string, n int64) string {
	return fmt.Sprintf("%d:%s:%d", chainID, currency, n)
}

// Trade is an immutable record of one close event, full or partial.
type Trade struct {
	ID          string `json:"_id" bson:"_id"`
	ChainID     int64  `json:"chainId" bson:"chainId"`
	PositionKey string `json:"positionKey" bson:"positionKey"`
	TxHash      string `json:"txHash" bson:"txHash"`

	User      string `json:"user" bson:"user"`
	Currency  string `json:"currency" bson:"currency"`
	ProductID string `json:"productId" bson:"productId"`
	IsLong    bool   `json:"isLong" bson:"isLong"`

	Leverage   float64 `json:"leverage" bson:"leverage"`
	EntryPrice float64 `json:"entryPrice" bson:"entryPrice"`
	ClosePrice float64 `json:"closePrice" bson:"closePrice"`

	Size      float64 `json:"size" bson:"size"`
	SizeUsd   float64 `json:"sizeUsd" bson:"sizeUsd"`
	Margin    float64 `json:"margin" bson:"margin"`
	MarginUsd float64 `json:"marginUsd" bson:"marginUsd"`
	Fee       float64 `json:"fee" bson:"fee"`
	FeeUsd    float64 `json:"feeUsd" bson:"feeUsd"`
	Pnl       float64 `json:"pnl" bson:"pnl"`
	PnlUsd    float64 `json:"pnlUsd" bson:"pnlUsd"`

	WasLiquidated bool `json:"wasLiquidated" bson:"wasLiquidated"`
	IsFullClose   bool `json:"isFullClose" bson:"isFullClose"`

	Duration    int64 `json:"duration" bson:"duration"` // seconds since the position opened
	BlockNumber int64 `json:"blockNumber" bson:"blockNumber"`
	Timestamp   int64 `json:"timestamp" bson:"timestamp"`
}
