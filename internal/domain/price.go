package domain

import "fmt"

// SecondsPerHour is the width of a price bucket.
const SecondsPerHour = 3600

// HourOf aligns a unix timestamp in seconds down to its hour.
func HourOf(timestamp int64) int64 {
	return timestamp - timestamp%SecondsPerHour
}

// HourPriceID renders the cache id for one hourly price.
func HourPriceID(currency string, chainID, hourTimestamp int64) string {
	return fmt.Sprintf("%s:%d:%d", currency, chainID, hourTimestamp)
}

// HourPrice caches the USD price of a currency for one hour.
type HourPrice struct {
	ID            string  `json:"_id" bson:"_id"` // currency:chainId:hourTimestamp
	Currency      string  `json:"currency" bson:"currency"`
	ChainID       int64   `json:"chainId" bson:"chainId"`
	HourTimestamp int64   `json:"hourTimestamp" bson:"hourTimestamp"` // seconds
	PriceUsd      float64 `json:"priceUsd" bson:"priceUsd"`
}

// TokenInfoID renders the id for a token metadata record.
func TokenInfoID(currency string, chainID int64) string {
	return fmt.Sprintf("%s:%d", currency, chainID)
}

// TokenInfo maps a (currency, chain) pair to the price provider pool used
// to price it.
type TokenInfo struct {
	ID       string `json:"_id" bson:"_id"` // currency:chainId
	Currency string `json:"currency" bson:"currency"`
	ChainID  int64  `json:"chainId" bson:"chainId"`

	// MappedCurrency differs from Currency when the native zero address was
	// replaced with the chain's wrapped token.
	MappedCurrency string `json:"mappedCurrency" bson:"mappedCurrency"`
	PoolChainID    int64  `json:"poolChainId" bson:"poolChainId"`
	NetworkID      string `json:"coingeckoChainId" bson:"coingeckoChainId"`

	Decimals     int    `json:"decimals" bson:"decimals"`
	Name         string `json:"name" bson:"name"`
	Symbol       string `json:"symbol" bson:"symbol"`
	PoolAddress  string `json:"poolAddress" bson:"poolAddress"`
	PoolIsInBase bool   `json:"poolIsInBase" bson:"poolIsInBase"`

	CreatedAtTimestamp int64 `json:"createdAtTimestamp" bson:"createdAtTimestamp"`
}
