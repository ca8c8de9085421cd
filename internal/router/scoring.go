package router

import (
	"github.com/liquidroute/liquidroute/internal/market"
)

// objectiveWeights returns the scoring emphasis for each objective. Each set
// sums to 1.
type weights struct {
	cost        float64
	speed       float64
	size        float64
	reliability float64
}

func objectiveWeights(obj Objective) weights {
	switch obj {
	case ObjectiveCost:
		return weights{cost: 0.5, speed: 0.15, size: 0.2, reliability: 0.15}
	case ObjectiveSpeed:
		return weights{cost: 0.15, speed: 0.5, size: 0.2, reliability: 0.15}
	case ObjectiveSize:
		return weights{cost: 0.15, speed: 0.15, size: 0.5, reliability: 0.2}
	default:
		return weights{cost: 0.25, speed: 0.25, size: 0.25, reliability: 0.25}
	}
}

// scoreCandidate computes the weighted multi-objective score for a candidate.
// All component scores are normalized into (0,1].
func (r *Router) scoreCandidate(order *Order, cand *candidate, eligible map[string]EligibleVenue) float64 {
	var totalQty, totalNotional, totalFee, maxLatency, weightedReliability float64
	for _, route := range cand.routes {
		totalQty += route.Quantity
		totalNotional += route.Quantity * route.EstPrice
		totalFee += route.EstFee
		if route.LatencyMs > maxLatency {
			maxLatency = route.LatencyMs
		}
		if ev, ok := eligible[route.Venue]; ok {
			weightedReliability += route.Quantity * ev.Metrics.Reliability
		}
	}
	if totalQty == 0 {
		return 0
	}

	feePct := 0.0
	if totalNotional > 0 {
		feePct = totalFee / totalNotional * 100
	}
	costScore := 1 / (1 + feePct)
	speedScore := 1 / (1 + maxLatency/100)
	sizeScore := totalQty / order.Quantity
	if sizeScore > 1 {
		sizeScore = 1
	}
	reliabilityScore := weightedReliability / totalQty

	w := objectiveWeights(r.cfg.Objective)
	score := w.cost*costScore + w.speed*speedScore + w.size*sizeScore + w.reliability*reliabilityScore

	// Hybrid mode leans toward the operational simplicity of one venue when
	// a single-venue candidate is in contention.
	if r.cfg.Mode == ModeHybrid && cand.strategy == "single-venue" {
		score *= 1.02
	}
	return score
}

// confidence estimates how trustworthy the selected decision is given market
// state and fill coverage.
func (r *Router) confidence(order *Order, cand *candidate, snapVenues int, spreadPercent float64, condition market.Condition) float64 {
	conf := 0.9
	fillRatio := 0.0
	for _, route := range cand.routes {
		fillRatio += route.Quantity
	}
	fillRatio /= order.Quantity

	if fillRatio < 1 {
		conf -= (1 - fillRatio) * 0.5
	}
	if snapVenues <= 1 {
		conf -= 0.1
	}
	if spreadPercent > 0.5 {
		conf -= 0.1
	}
	switch condition {
	case market.ConditionVolatile:
		conf -= 0.15
	case market.ConditionExtreme:
		conf -= 0.3
	case market.ConditionCalm:
		conf += 0.05
	}
	if conf < 0.05 {
		conf = 0.05
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}
