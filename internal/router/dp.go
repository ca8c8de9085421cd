package router

import (
	"math"

	"github.com/liquidroute/liquidroute/internal/market"
)

// dpCandidate searches for the minimum-cost split across up to MaxSplits
// venues. Quantity is discretized into Resolution units; dp[i][j][s] is the
// minimum cost of filling j units with s venues drawn from the first i
// venues. Costs walk each venue's depth ladder with taker fees, penalizing
// quantity beyond quoted depth. The table is layered per venue so the chosen
// per-venue quantities can be reconstructed exactly by backtracking.
func (r *Router) dpCandidate(order *Order, eligible []EligibleVenue) *candidate {
	if len(eligible) == 0 {
		return nil
	}
	units := r.cfg.Resolution
	unitQty := order.Quantity / float64(units)
	maxSplits := r.cfg.MaxSplits
	if maxSplits > len(eligible) {
		maxSplits = len(eligible)
	}

	const inf = math.MaxFloat64

	// venueCost[i][u]: cost of taking u units from venue i.
	venueCost := make([][]float64, len(eligible))
	minUnits := make([]int, len(eligible))
	maxUnits := make([]int, len(eligible))
	for i, ev := range eligible {
		maxU := int(ev.Depth/unitQty + 1e-9)
		if maxU > units {
			maxU = units
		}
		maxUnits[i] = maxU

		// Minimum economical size: allocations worth less than the fee
		// multiple of the venue's per-unit taker fee are never considered.
		minQty := r.cfg.EconomicalFeeMultiple * ev.Venue.Fees.TakerRate
		minU := int(math.Ceil(minQty / unitQty))
		if minU < 1 {
			minU = 1
		}
		minUnits[i] = minU

		venueCost[i] = r.ladderCosts(ev, order.Side, unitQty, maxU)
	}

	// dp[i][j][s]: layered so backtracking can replay each transition.
	dp := make([][][]float64, len(eligible)+1)
	for i := range dp {
		dp[i] = make([][]float64, units+1)
		for j := range dp[i] {
			dp[i][j] = make([]float64, maxSplits+1)
			for s := range dp[i][j] {
				dp[i][j][s] = inf
			}
		}
	}
	dp[0][0][0] = 0

	for i := 1; i <= len(eligible); i++ {
		vi := i - 1
		for j := 0; j <= units; j++ {
			for s := 0; s <= maxSplits; s++ {
				// Skip venue i.
				best := dp[i-1][j][s]
				// Or fill u units from it.
				if s >= 1 {
					for u := minUnits[vi]; u <= maxUnits[vi] && u <= j; u++ {
						if dp[i-1][j-u][s-1] == inf {
							continue
						}
						if cost := dp[i-1][j-u][s-1] + venueCost[vi][u]; cost < best {
							best = cost
						}
					}
				}
				dp[i][j][s] = best
			}
		}
	}

	// Prefer the fullest reachable fill, then the cheapest split count.
	n := len(eligible)
	bestJ, bestS := -1, -1
	for j := units; j >= 1 && bestJ < 0; j-- {
		best := inf
		for s := 1; s <= maxSplits; s++ {
			if dp[n][j][s] < best {
				best = dp[n][j][s]
				bestJ, bestS = j, s
			}
		}
	}
	if bestJ < 0 {
		return nil
	}

	// Backtrack: at each layer, find the transition that produced the state.
	alloc := make(map[int]int)
	j, s := bestJ, bestS
	for i := n; i >= 1; i-- {
		vi := i - 1
		if dp[i][j][s] == dp[i-1][j][s] {
			continue // venue skipped
		}
		for u := minUnits[vi]; u <= maxUnits[vi] && u <= j; u++ {
			if s >= 1 && dp[i-1][j-u][s-1] != inf &&
				dp[i-1][j-u][s-1]+venueCost[vi][u] == dp[i][j][s] {
				alloc[vi] = u
				j -= u
				s--
				break
			}
		}
	}
	if len(alloc) == 0 {
		return nil
	}

	routes := make([]ExecutionRoute, 0, len(alloc))
	for i, ev := range eligible {
		u, ok := alloc[i]
		if !ok {
			continue
		}
		routes = append(routes, r.buildRoute(ev, order.Side, float64(u)*unitQty, len(routes)))
	}
	return &candidate{strategy: "dp-optimal", routes: routes}
}

// ladderCosts precomputes the fill cost for every unit count up to maxU by
// walking the venue's ladder once. Buy costs are notional plus taker fee;
// sell costs are negated net proceeds so minimization covers both sides.
func (r *Router) ladderCosts(ev EligibleVenue, side market.Side, unitQty float64, maxU int) []float64 {
	costs := make([]float64, maxU+1)
	levels := ev.Book.SideLevels(side)
	taker := ev.Venue.Fees.TakerRate

	levelIdx := 0
	levelLeft := 0.0
	lastPrice := 0.0
	if len(levels) > 0 {
		levelLeft = levels[0].Quantity
		lastPrice = levels[0].Price
	}
	notional := 0.0

	for u := 1; u <= maxU; u++ {
		remaining := unitQty
		for remaining > 0 {
			if levelIdx >= len(levels) {
				// Beyond quoted depth: penalized at the deepest price.
				notional += remaining * lastPrice * (1 + r.cfg.OverDepthPenalty)
				break
			}
			lvl := levels[levelIdx]
			lastPrice = lvl.Price
			take := levelLeft
			if take > remaining {
				take = remaining
			}
			notional += take * lvl.Price
			remaining -= take
			levelLeft -= take
			if levelLeft <= 0 {
				levelIdx++
				if levelIdx < len(levels) {
					levelLeft = levels[levelIdx].Quantity
				}
			}
		}
		if side == market.Buy {
			costs[u] = notional * (1 + taker)
		} else {
			costs[u] = -(notional * (1 - taker))
		}
	}
	return costs
}
