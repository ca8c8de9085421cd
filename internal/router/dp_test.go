package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/venue"
)

func eligibleWithAsks(id string, taker float64, asks ...liquidity.PriceLevel) EligibleVenue {
	book := &liquidity.OrderBookSnapshot{Venue: id, Symbol: "BTC-USD", Asks: asks}
	return EligibleVenue{
		Venue:   venue.Venue{ID: id, Fees: venue.FeeSchedule{TakerRate: taker}, Operational: true, TradingEnabled: true},
		Metrics: venue.Metrics{VenueID: id, FillRate: 1, Reliability: 1},
		Book:    book,
		Depth:   book.DepthAtOrBetter(market.Buy, 0),
	}
}

func eligibleWithBids(id string, taker float64, bids ...liquidity.PriceLevel) EligibleVenue {
	book := &liquidity.OrderBookSnapshot{Venue: id, Symbol: "BTC-USD", Bids: bids}
	return EligibleVenue{
		Venue:   venue.Venue{ID: id, Fees: venue.FeeSchedule{TakerRate: taker}, Operational: true, TradingEnabled: true},
		Metrics: venue.Metrics{VenueID: id, FillRate: 1, Reliability: 1},
		Book:    book,
		Depth:   book.DepthAtOrBetter(market.Sell, 0),
	}
}

func candidateCost(cand *candidate) float64 {
	total := 0.0
	for _, r := range cand.routes {
		total += r.Quantity*r.EstPrice + r.EstFee
	}
	return total
}

func TestDPAllocatesEverythingToCheapestVenue(t *testing.T) {
	r := &Router{cfg: DefaultConfig()}
	eligible := []EligibleVenue{
		eligibleWithAsks("cheap", 0.001, liquidity.PriceLevel{Price: 100, Quantity: 200}),
		eligibleWithAsks("dear", 0.001, liquidity.PriceLevel{Price: 101, Quantity: 200}),
	}

	cand := r.dpCandidate(buyOrder(100), eligible)
	require.NotNil(t, cand)
	require.Len(t, cand.routes, 1)
	assert.Equal(t, "cheap", cand.routes[0].Venue)
	assert.InDelta(t, 100.0, cand.routes[0].Quantity, 1e-9)
}

func TestDPSplitsWhenCheapVenueRunsOut(t *testing.T) {
	r := &Router{cfg: DefaultConfig()}
	eligible := []EligibleVenue{
		eligibleWithAsks("cheap", 0.001, liquidity.PriceLevel{Price: 100, Quantity: 50}),
		eligibleWithAsks("dear", 0.001, liquidity.PriceLevel{Price: 100.5, Quantity: 200}),
	}

	cand := r.dpCandidate(buyOrder(100), eligible)
	require.NotNil(t, cand)
	require.Len(t, cand.routes, 2)
	byVenue := map[string]float64{}
	for _, route := range cand.routes {
		byVenue[route.Venue] = route.Quantity
	}
	assert.InDelta(t, 50.0, byVenue["cheap"], 1e-9, "exhaust the cheap ladder before paying up")
	assert.InDelta(t, 50.0, byVenue["dear"], 1e-9)
}

func TestDPQuantityConservation(t *testing.T) {
	r := &Router{cfg: DefaultConfig()}
	eligible := []EligibleVenue{
		eligibleWithAsks("a", 0.001,
			liquidity.PriceLevel{Price: 100, Quantity: 30},
			liquidity.PriceLevel{Price: 100.5, Quantity: 30}),
		eligibleWithAsks("b", 0.002, liquidity.PriceLevel{Price: 100.2, Quantity: 25}),
		eligibleWithAsks("c", 0.0005, liquidity.PriceLevel{Price: 100.1, Quantity: 40}),
	}

	cand := r.dpCandidate(buyOrder(100), eligible)
	require.NotNil(t, cand)
	total := 0.0
	for _, route := range cand.routes {
		total += route.Quantity
		assert.Positive(t, route.Quantity)
	}
	assert.InDelta(t, 100.0, total, 1e-6, "split quantities must sum to the order quantity")
	assert.LessOrEqual(t, len(cand.routes), r.cfg.MaxSplits)
}

func TestDPRespectsMaxSplits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSplits = 2
	r := &Router{cfg: cfg}
	eligible := []EligibleVenue{
		eligibleWithAsks("a", 0.001, liquidity.PriceLevel{Price: 100.0, Quantity: 40}),
		eligibleWithAsks("b", 0.001, liquidity.PriceLevel{Price: 100.1, Quantity: 40}),
		eligibleWithAsks("c", 0.001, liquidity.PriceLevel{Price: 100.2, Quantity: 40}),
		eligibleWithAsks("d", 0.001, liquidity.PriceLevel{Price: 100.3, Quantity: 40}),
	}

	cand := r.dpCandidate(buyOrder(100), eligible)
	require.NotNil(t, cand)
	assert.LessOrEqual(t, len(cand.routes), 2)
}

func TestDPAllocationMonotonicInDepth(t *testing.T) {
	r := &Router{cfg: DefaultConfig()}
	order := buyOrder(60)

	// Growing one venue's cheap ladder, all else fixed, must never shrink
	// that venue's allocation.
	prev := 0.0
	for _, depth := range []float64{10, 20, 30, 40, 50, 60} {
		eligible := []EligibleVenue{
			eligibleWithAsks("grow", 0.001, liquidity.PriceLevel{Price: 100, Quantity: depth}),
			eligibleWithAsks("other", 0.001, liquidity.PriceLevel{Price: 100.5, Quantity: 200}),
		}
		cand := r.dpCandidate(order, eligible)
		require.NotNil(t, cand)

		alloc := 0.0
		for _, route := range cand.routes {
			if route.Venue == "grow" {
				alloc += route.Quantity
			}
		}
		assert.GreaterOrEqual(t, alloc+1e-9, prev, "depth %.0f", depth)
		prev = alloc
	}
	assert.InDelta(t, 60.0, prev, 1e-9, "full depth takes the whole order at the cheaper venue")
}

func TestDPCostMonotonicInQuantity(t *testing.T) {
	r := &Router{cfg: DefaultConfig()}
	eligible := []EligibleVenue{
		eligibleWithAsks("a", 0.001,
			liquidity.PriceLevel{Price: 100, Quantity: 60},
			liquidity.PriceLevel{Price: 101, Quantity: 60}),
		eligibleWithAsks("b", 0.001, liquidity.PriceLevel{Price: 100.5, Quantity: 80}),
	}

	prev := 0.0
	for _, qty := range []float64{25, 50, 75, 100} {
		cand := r.dpCandidate(buyOrder(qty), eligible)
		require.NotNil(t, cand, "qty %v", qty)
		cost := candidateCost(cand)
		assert.GreaterOrEqual(t, cost, prev, "cost must not fall as quantity grows")
		prev = cost
	}
}

func TestDPSellSidePrefersHighestBid(t *testing.T) {
	r := &Router{cfg: DefaultConfig()}
	eligible := []EligibleVenue{
		eligibleWithBids("low", 0.001, liquidity.PriceLevel{Price: 99, Quantity: 200}),
		eligibleWithBids("high", 0.001, liquidity.PriceLevel{Price: 100, Quantity: 200}),
	}

	order := buyOrder(100)
	order.Side = market.Sell
	cand := r.dpCandidate(order, eligible)
	require.NotNil(t, cand)
	require.Len(t, cand.routes, 1)
	assert.Equal(t, "high", cand.routes[0].Venue, "selling maximizes proceeds, not minimizes notional")
}

func TestDPPartialFillWhenDepthShort(t *testing.T) {
	r := &Router{cfg: DefaultConfig()}
	eligible := []EligibleVenue{
		eligibleWithAsks("a", 0.001, liquidity.PriceLevel{Price: 100, Quantity: 55}),
		eligibleWithAsks("b", 0.001, liquidity.PriceLevel{Price: 100.1, Quantity: 30}),
	}

	cand := r.dpCandidate(buyOrder(100), eligible)
	require.NotNil(t, cand)
	total := 0.0
	for _, route := range cand.routes {
		total += route.Quantity
	}
	assert.InDelta(t, 85.0, total, 1e-6, "fullest reachable fill given quoted depth")
}
