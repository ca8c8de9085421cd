package liquidity

import (
	"fmt"
	"time"

	"github.com/liquidroute/liquidroute/internal/market"
)

// PriceLevel is one rung of a venue order book ladder.
type PriceLevel struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	OrderCount int     `json:"order_count"`
}

// OrderBookSnapshot is a single venue's book for one symbol. Bids are sorted
// descending and asks ascending; the aggregator stores snapshots immutably
// and swaps whole snapshots on update.
type OrderBookSnapshot struct {
	Venue     string       `json:"venue"`
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Sequence  int64        `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
}

// Validate checks ordering and positivity so malformed feed payloads are
// rejected before they reach the merge path.
func (b *OrderBookSnapshot) Validate() error {
	if b.Venue == "" || b.Symbol == "" {
		return fmt.Errorf("order book missing venue or symbol")
	}
	for i, lvl := range b.Bids {
		if lvl.Price <= 0 || lvl.Quantity <= 0 {
			return fmt.Errorf("bid level %d: non-positive price or quantity", i)
		}
		if i > 0 && lvl.Price >= b.Bids[i-1].Price {
			return fmt.Errorf("bid level %d: prices not strictly descending", i)
		}
	}
	for i, lvl := range b.Asks {
		if lvl.Price <= 0 || lvl.Quantity <= 0 {
			return fmt.Errorf("ask level %d: non-positive price or quantity", i)
		}
		if i > 0 && lvl.Price <= b.Asks[i-1].Price {
			return fmt.Errorf("ask level %d: prices not strictly ascending", i)
		}
	}
	return nil
}

// BestBid returns the top bid level, if any.
func (b *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level, if any.
func (b *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// SideLevels returns the ladder the given taker side would consume:
// asks for a buyer, bids for a seller.
func (b *OrderBookSnapshot) SideLevels(side market.Side) []PriceLevel {
	if side == market.Buy {
		return b.Asks
	}
	return b.Bids
}

// DepthAtOrBetter sums quantity available at or better than the limit price
// for the given taker side. A zero limit means the whole ladder counts.
func (b *OrderBookSnapshot) DepthAtOrBetter(side market.Side, limit float64) float64 {
	total := 0.0
	for _, lvl := range b.SideLevels(side) {
		if limit > 0 {
			if side == market.Buy && lvl.Price > limit {
				break
			}
			if side == market.Sell && lvl.Price < limit {
				break
			}
		}
		total += lvl.Quantity
	}
	return total
}
