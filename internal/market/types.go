// Package market holds the shared order and market-data vocabulary used by
// the aggregator, router, and execution layers.
package market

import "time"

// Side identifies the order side.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Valid reports whether the side is a known value.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType identifies how an order is priced.
type OrderType string

const (
	MarketOrder OrderType = "market"
	LimitOrder  OrderType = "limit"
)

// Valid reports whether the order type is a known value.
func (t OrderType) Valid() bool { return t == MarketOrder || t == LimitOrder }

// Urgency tags how aggressively an order should be worked.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Condition is the caller-supplied view of the current market regime.
type Condition string

const (
	ConditionNormal   Condition = "normal"
	ConditionVolatile Condition = "volatile"
	ConditionCalm     Condition = "calm"
	ConditionExtreme  Condition = "extreme"
)

// Valid reports whether the condition is a known value.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNormal, ConditionVolatile, ConditionCalm, ConditionExtreme:
		return true
	}
	return false
}

// Trade is a single executed trade observed on a venue feed.
type Trade struct {
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Side      Side      `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticker is a lightweight top-of-book update from a venue feed.
type Ticker struct {
	Venue     string    `json:"venue"`
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	BidQty    float64   `json:"bid_qty"`
	AskPrice  float64   `json:"ask_price"`
	AskQty    float64   `json:"ask_qty"`
	Timestamp time.Time `json:"timestamp"`
}
