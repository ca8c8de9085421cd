package router

import (
	"sort"

	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/venue"
)

// EligibleVenue is a venue that passed the routing filter, with the state a
// candidate strategy needs to allocate against it.
type EligibleVenue struct {
	Venue   venue.Venue
	Metrics venue.Metrics
	Book    *liquidity.OrderBookSnapshot
	Depth   float64 // quantity available at-or-better than the order limit
}

// CandidateStrategy generates an allocation candidate for an order. Dark-pool
// and cross-venue-arbitrage strategies plug in through this interface; none
// are registered by default.
type CandidateStrategy interface {
	Name() string
	Generate(order *Order, snap *liquidity.Snapshot, eligible []EligibleVenue) []ExecutionRoute
}

// candidate pairs a strategy name with its proposed routes and score.
type candidate struct {
	strategy string
	routes   []ExecutionRoute
	score    float64
}

// ladderFill is the result of walking a venue's depth ladder for a quantity.
type ladderFill struct {
	notional float64 // price x quantity over consumed levels
	filled   float64 // quantity covered by quoted depth
	short    float64 // quantity beyond quoted depth
	topPrice float64 // best price on the consumed side
	avgPrice float64
}

// walkLadder simulates filling qty against the given side of a venue book.
// Quantity beyond quoted depth is priced at the deepest level plus the
// over-depth penalty.
func walkLadder(levels []liquidity.PriceLevel, qty, overDepthPenalty float64) ladderFill {
	fill := ladderFill{}
	if len(levels) == 0 || qty <= 0 {
		return fill
	}
	fill.topPrice = levels[0].Price
	remaining := qty
	lastPrice := fill.topPrice
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Quantity
		if take > remaining {
			take = remaining
		}
		fill.notional += take * lvl.Price
		fill.filled += take
		remaining -= take
		lastPrice = lvl.Price
	}
	if remaining > 0 {
		fill.short = remaining
		fill.notional += remaining * lastPrice * (1 + overDepthPenalty)
	}
	if qty > 0 {
		fill.avgPrice = fill.notional / qty
	}
	return fill
}

// buildRoute fills in the estimate fields for an allocation on one venue.
func (r *Router) buildRoute(ev EligibleVenue, side market.Side, qty float64, priority int) ExecutionRoute {
	fill := walkLadder(ev.Book.SideLevels(side), qty, r.cfg.OverDepthPenalty)
	slippage := 0.0
	if fill.topPrice > 0 {
		slippage = (fill.avgPrice - fill.topPrice) / fill.topPrice
		if side == market.Sell {
			slippage = -slippage
		}
		if slippage < 0 {
			slippage = 0
		}
	}
	return ExecutionRoute{
		Venue:       ev.Venue.ID,
		Quantity:    qty,
		EstPrice:    fill.avgPrice,
		EstFee:      fill.notional * ev.Venue.Fees.TakerRate,
		EstSlippage: slippage,
		LatencyMs:   ev.Metrics.AvgLatencyMs,
		Priority:    priority,
	}
}

// singleVenueCandidates proposes one candidate per venue whose own depth
// covers at least the configured fraction of the quantity.
func (r *Router) singleVenueCandidates(order *Order, eligible []EligibleVenue) []candidate {
	var out []candidate
	for _, ev := range eligible {
		if ev.Depth < order.Quantity*r.cfg.SingleVenueFillRatio {
			continue
		}
		qty := order.Quantity
		if ev.Depth < qty {
			qty = ev.Depth
		}
		out = append(out, candidate{
			strategy: "single-venue",
			routes:   []ExecutionRoute{r.buildRoute(ev, order.Side, qty, 0)},
		})
	}
	return out
}

// proportionalCandidate splits in proportion to depth available at-or-better
// than the limit price, dropping uneconomical slivers.
func (r *Router) proportionalCandidate(order *Order, eligible []EligibleVenue) *candidate {
	totalDepth := 0.0
	for _, ev := range eligible {
		totalDepth += ev.Depth
	}
	if totalDepth < order.Quantity*r.cfg.MinDepthRatio {
		return nil
	}

	var routes []ExecutionRoute
	for _, ev := range eligible {
		if ev.Depth <= 0 {
			continue
		}
		alloc := order.Quantity * ev.Depth / totalDepth
		if alloc > ev.Depth {
			alloc = ev.Depth
		}
		// Uneconomical when allocation is worth less than the configured
		// multiple of the venue's taker fee per unit.
		if alloc < r.cfg.EconomicalFeeMultiple*ev.Venue.Fees.TakerRate {
			continue
		}
		routes = append(routes, r.buildRoute(ev, order.Side, alloc, len(routes)))
	}
	if len(routes) == 0 {
		return nil
	}
	return &candidate{strategy: "proportional", routes: routes}
}

// timeWeightedCandidate pre-divides a large order into equal slices
// round-robined across venues with descending priority. It is a fallback
// schedule rather than an atomic allocation.
func (r *Router) timeWeightedCandidate(order *Order, eligible []EligibleVenue) *candidate {
	if len(eligible) == 0 {
		return nil
	}
	maxVenueDepth := 0.0
	for _, ev := range eligible {
		if ev.Depth > maxVenueDepth {
			maxVenueDepth = ev.Depth
		}
	}
	// Only worth scheduling over time when no single venue comes close.
	if maxVenueDepth >= order.Quantity*r.cfg.SingleVenueFillRatio {
		return nil
	}

	slices := r.cfg.TimeSliceCount
	if slices > 10 {
		slices = 10
	}
	sliceQty := order.Quantity / float64(slices)

	// Round-robin in descending reliability order.
	ordered := make([]EligibleVenue, len(eligible))
	copy(ordered, eligible)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Metrics.Reliability > ordered[j].Metrics.Reliability
	})

	routes := make([]ExecutionRoute, 0, slices)
	for i := 0; i < slices; i++ {
		ev := ordered[i%len(ordered)]
		routes = append(routes, r.buildRoute(ev, order.Side, sliceQty, i))
	}
	return &candidate{strategy: "time-weighted", routes: routes}
}
