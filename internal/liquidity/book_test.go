package liquidity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidroute/liquidroute/internal/market"
)

func validBook() *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Venue:  "kraken",
		Symbol: "BTC-USD",
		Bids: []PriceLevel{
			{Price: 50000, Quantity: 2, OrderCount: 3},
			{Price: 49990, Quantity: 5, OrderCount: 1},
		},
		Asks: []PriceLevel{
			{Price: 50010, Quantity: 1, OrderCount: 2},
			{Price: 50020, Quantity: 4, OrderCount: 1},
		},
		Timestamp: time.Now(),
	}
}

func TestBookValidate(t *testing.T) {
	require.NoError(t, validBook().Validate())

	tests := []struct {
		name   string
		mutate func(*OrderBookSnapshot)
	}{
		{"missing venue", func(b *OrderBookSnapshot) { b.Venue = "" }},
		{"missing symbol", func(b *OrderBookSnapshot) { b.Symbol = "" }},
		{"zero bid price", func(b *OrderBookSnapshot) { b.Bids[0].Price = 0 }},
		{"negative ask quantity", func(b *OrderBookSnapshot) { b.Asks[1].Quantity = -1 }},
		{"bids not descending", func(b *OrderBookSnapshot) { b.Bids[1].Price = 50001 }},
		{"asks not ascending", func(b *OrderBookSnapshot) { b.Asks[1].Price = 50010 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBook()
			tt.mutate(b)
			assert.Error(t, b.Validate())
		})
	}
}

func TestBestQuotes(t *testing.T) {
	b := validBook()

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, 50000.0, bid.Price)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 50010.0, ask.Price)

	empty := &OrderBookSnapshot{Venue: "v", Symbol: "s"}
	_, ok = empty.BestBid()
	assert.False(t, ok)
	_, ok = empty.BestAsk()
	assert.False(t, ok)
}

func TestSideLevels(t *testing.T) {
	b := validBook()
	assert.Equal(t, b.Asks, b.SideLevels(market.Buy))
	assert.Equal(t, b.Bids, b.SideLevels(market.Sell))
}

func TestDepthAtOrBetter(t *testing.T) {
	b := validBook()

	// Whole ladder when no limit.
	assert.Equal(t, 5.0, b.DepthAtOrBetter(market.Buy, 0))
	assert.Equal(t, 7.0, b.DepthAtOrBetter(market.Sell, 0))

	// A buyer's limit caps at asks priced at or below it.
	assert.Equal(t, 1.0, b.DepthAtOrBetter(market.Buy, 50010))
	assert.Equal(t, 0.0, b.DepthAtOrBetter(market.Buy, 50000))

	// A seller's limit caps at bids priced at or above it.
	assert.Equal(t, 2.0, b.DepthAtOrBetter(market.Sell, 49995))
	assert.Equal(t, 7.0, b.DepthAtOrBetter(market.Sell, 49000))
}
