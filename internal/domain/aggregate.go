package domain

import "fmt"

// SecondsPerDay is the width of a day bucket.
const SecondsPerDay = 86400

// AggregateKind selects which of the four aggregate levels a record belongs to.
// Values double as collection names for document stores.
type AggregateKind string

const (
	KindGlobal     AggregateKind = "Data"
	KindDay        AggregateKind = "DayData"
	KindProduct    AggregateKind = "Product"
	KindDayProduct AggregateKind = "DayProduct"
)

// AllAggregateKinds lists every aggregate level.
var AllAggregateKinds = []AggregateKind{KindGlobal, KindDay, KindProduct, KindDayProduct}

// IsDaily reports whether records of this kind are scoped to a day bucket.
func (k AggregateKind) IsDaily() bool {
	return k == KindDay || k == KindDayProduct
}

// IsProduct reports whether records of this kind are scoped to a product.
func (k AggregateKind) IsProduct() bool {
	return k == KindProduct || k == KindDayProduct
}

// Valid reports whether k is a known kind.
func (k AggregateKind) Valid() bool {
	switch k {
	case KindGlobal, KindDay, KindProduct, KindDayProduct:
		return true
	}
	return false
}

// DayID returns the day bucket for a unix timestamp in seconds.
func DayID(timestamp int64) int64 {
	if timestamp < 0 {
		return (timestamp - SecondsPerDay + 1) / SecondsPerDay
	}
	return timestamp / SecondsPerDay
}

// AggregateKey identifies one aggregate record.
// ProductID is ignored for non-product kinds, DayID for non-daily kinds.
type AggregateKey struct {
	Kind      AggregateKind
	Currency  string
	ChainID   int64
	ProductID string
	DayID     int64
}

// ID renders the composite record id. Component order is part of the
// storage contract and must not change:
//
//	Data        currency:chainId
//	DayData     currency:dayId:chainId
//	Product     productId:currency:chainId
//	DayProduct  productId:currency:dayId:chainId
func (k AggregateKey) ID() string {
	switch k.Kind {
	case KindDay:
		return fmt.Sprintf("%s:%d:%d", k.Currency, k.DayID, k.ChainID)
	case KindProduct:
		return fmt.Sprintf("%s:%s:%d", k.ProductID, k.Currency, k.ChainID)
	case KindDayProduct:
		return fmt.Sprintf("%s:%s:%d:%d", k.ProductID, k.Currency, k.DayID, k.ChainID)
	default:
		return fmt.Sprintf("%s:%d", k.Currency, k.ChainID)
	}
}

// Previous returns the key of the preceding day bucket.
// Only meaningful for daily kinds.
func (k AggregateKey) Previous() AggregateKey {
	prev := k
	prev.DayID--
	return prev
}

// Aggregate is a rolling statistics record. The same shape serves the
// global, daily, product and daily-product levels so the four cannot drift.
type Aggregate struct {
	ID        string        `json:"_id" bson:"_id"`
	Kind      AggregateKind `json:"kind" bson:"kind"`
	ChainID   int64         `json:"chainId" bson:"chainId"`
	Currency  string        `json:"currency" bson:"currency"`
	ProductID string        `json:"productId,omitempty" bson:"productId,omitempty"`
	Date      int64         `json:"date,omitempty" bson:"date,omitempty"` // dayId*86400 for daily kinds

	// Period deltas (signed rolling sums).
	CumulativeFees      float64 `json:"cumulativeFees" bson:"cumulativeFees"`
	CumulativeFeesUsd   float64 `json:"cumulativeFeesUsd" bson:"cumulativeFeesUsd"`
	CumulativePnl       float64 `json:"cumulativePnl" bson:"cumulativePnl"`
	CumulativePnlUsd    float64 `json:"cumulativePnlUsd" bson:"cumulativePnlUsd"`
	CumulativeVolume    float64 `json:"cumulativeVolume" bson:"cumulativeVolume"`
	CumulativeVolumeUsd float64 `json:"cumulativeVolumeUsd" bson:"cumulativeVolumeUsd"`
	CumulativeMargin    float64 `json:"cumulativeMargin" bson:"cumulativeMargin"`
	CumulativeMarginUsd float64 `json:"cumulativeMarginUsd" bson:"cumulativeMarginUsd"`

	// Point-in-time state, carried forward into a new day.
	OpenInterest         float64 `json:"openInterest" bson:"openInterest"`
	OpenInterestUsd      float64 `json:"openInterestUsd" bson:"openInterestUsd"`
	OpenInterestLong     float64 `json:"openInterestLong" bson:"openInterestLong"`
	OpenInterestLongUsd  float64 `json:"openInterestLongUsd" bson:"openInterestLongUsd"`
	OpenInterestShort    float64 `json:"openInterestShort" bson:"openInterestShort"`
	OpenInterestShortUsd float64 `json:"openInterestShortUsd" bson:"openInterestShortUsd"`
	PositionCount        int64   `json:"positionCount" bson:"positionCount"`

	TradeCount int64 `json:"tradeCount" bson:"tradeCount"`
}

// NewAggregate returns a zero-initialized record for key.
func NewAggregate(key AggregateKey) *Aggregate {
	a := &Aggregate{
		ID:       key.ID(),
		Kind:     key.Kind,
		ChainID:  key.ChainID,
		Currency: key.Currency,
	}
	if key.Kind.IsProduct() {
		a.ProductID = key.ProductID
	}
	if key.Kind.IsDaily() {
		a.Date = key.DayID * SecondsPerDay
	}
	return a
}

// CarryForward copies the point-in-time fields of prev into a.
func (a *Aggregate) CarryForward(prev *Aggregate) {
	a.OpenInterest = prev.OpenInterest
	a.OpenInterestUsd = prev.OpenInterestUsd
	a.OpenInterestLong = prev.OpenInterestLong
	a.OpenInterestLongUsd = prev.OpenInterestLongUsd
	a.OpenInterestShort = prev.OpenInterestShort
	a.OpenInterestShortUsd = prev.OpenInterestShortUsd
	a.PositionCount = prev.PositionCount
}

// Amount is a token-denominated value paired with its USD twin.
type Amount struct {
	Token float64
	Usd   float64
}

// Valued prices a token amount. An unknown price degrades the USD side to zero.
func Valued(token, price float64, priceKnown bool) Amount {
	if !priceKnown {
		return Amount{Token: token}
	}
	return Amount{Token: token, Usd: token * price}
}

// Neg returns the negated amount.
func (m Amount) Neg() Amount {
	return Amount{Token: -m.Token, Usd: -m.Usd}
}

// Flows holds the period deltas applied by one event.
type Flows struct {
	Fees   Amount
	Pnl    Amount
	Volume Amount
	Margin Amount
}

// AddFlows accumulates period deltas.
func (a *Aggregate) AddFlows(f Flows) {
	a.CumulativeFees += f.Fees.Token
	a.CumulativeFeesUsd += f.Fees.Usd
	a.CumulativePnl += f.Pnl.Token
	a.CumulativePnlUsd += f.Pnl.Usd
	a.CumulativeVolume += f.Volume.Token
	a.CumulativeVolumeUsd += f.Volume.Usd
	a.CumulativeMargin += f.Margin.Token
	a.CumulativeMarginUsd += f.Margin.Usd
}

// AddOpenInterest moves the total and the long or short bucket by size.
func (a *Aggregate) AddOpenInterest(size Amount, isLong bool) {
	a.OpenInterest += size.Token
	a.OpenInterestUsd += size.Usd
	if isLong {
		a.OpenInterestLong += size.Token
		a.OpenInterestLongUsd += size.Usd
	} else {
		a.OpenInterestShort += size.Token
		a.OpenInterestShortUsd += size.Usd
	}
}
