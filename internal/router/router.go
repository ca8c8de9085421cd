// Package router turns an order plus the current liquidity snapshot and
// venue metrics into a routing decision across venues.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/liquidroute/liquidroute/internal/cache"
	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/venue"
)

// Aggregator is the liquidity dependency injected into the router.
type Aggregator interface {
	GetAggregatedLiquidity(symbol string) (*liquidity.Snapshot, error)
}

// Observer receives routing events. Implementations must not block.
type Observer interface {
	OrderRouted(order *Order, decision *RoutingDecision)
	MetricsUpdated(venueID string, metrics venue.Metrics)
}

// State is the read-only external view of router state.
type State struct {
	VenueMetrics    map[string]venue.Metrics `json:"venue_metrics"`
	MarketCondition market.Condition         `json:"market_condition"`
}

const recentDecisionCap = 256

// Router is the smart order router. It is safe for concurrent use: routing
// only reads the injected aggregator and tracker state.
type Router struct {
	cfg      Config
	agg      Aggregator
	tracker  *venue.Tracker
	registry *venue.Registry
	cache    cache.Store
	extra    []CandidateStrategy

	mu        sync.RWMutex
	condition market.Condition
	observers []Observer
	recent    map[string]*RoutingDecision
	recentIDs []string
}

// Option customizes router construction.
type Option func(*Router)

// WithDecisionCache replaces the default in-memory decision cache, e.g. with
// a Redis-backed store shared across instances.
func WithDecisionCache(store cache.Store) Option {
	return func(r *Router) { r.cache = store }
}

// WithStrategies registers additional candidate strategies such as dark-pool
// or cross-venue-arbitrage generators.
func WithStrategies(strategies ...CandidateStrategy) Option {
	return func(r *Router) { r.extra = append(r.extra, strategies...) }
}

// WithObserver subscribes an observer to routing events.
func WithObserver(obs Observer) Option {
	return func(r *Router) { r.observers = append(r.observers, obs) }
}

// New constructs a router with explicitly injected dependencies. There is no
// global router state; independent instances coexist freely.
func New(agg Aggregator, tracker *venue.Tracker, registry *venue.Registry, cfg Config, opts ...Option) (*Router, error) {
	if agg == nil || tracker == nil || registry == nil {
		return nil, fmt.Errorf("router requires aggregator, tracker, and registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("router config: %w", err)
	}
	r := &Router{
		cfg:       cfg,
		agg:       agg,
		tracker:   tracker,
		registry:  registry,
		cache:     cache.NewTTLStore(4096),
		condition: market.ConditionNormal,
		recent:    make(map[string]*RoutingDecision),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RouteOrder produces a routing decision for the order. It fails with
// *InsufficientLiquidityError when the merged book cannot cover enough of
// the quantity, *ValidationError for malformed orders, and *ExchangeError
// for upstream data faults.
func (r *Router) RouteOrder(ctx context.Context, order *Order) (*RoutingDecision, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cacheKey := decisionKey(order)
	if cached, ok := r.cache.Get(ctx, cacheKey); ok {
		var decision RoutingDecision
		if err := json.Unmarshal(cached, &decision); err == nil {
			return &decision, nil
		}
	}

	snap, err := r.freshSnapshot(order.Symbol)
	if err != nil {
		return nil, err
	}

	available := r.availableDepth(snap, order)
	if available < order.Quantity*r.cfg.MinDepthRatio {
		return nil, &InsufficientLiquidityError{
			Symbol:    order.Symbol,
			Side:      order.Side,
			Requested: order.Quantity,
			Available: available,
		}
	}

	eligible := r.eligibleVenues(order, snap)
	if len(eligible) == 0 {
		// Fail closed: never fabricate a decision from an empty pool.
		return nil, &InsufficientLiquidityError{
			Symbol:    order.Symbol,
			Side:      order.Side,
			Requested: order.Quantity,
			Available: 0,
		}
	}

	candidates := r.generateCandidates(order, snap, eligible)
	if len(candidates) == 0 {
		return nil, &InsufficientLiquidityError{
			Symbol:    order.Symbol,
			Side:      order.Side,
			Requested: order.Quantity,
			Available: available,
		}
	}

	eligibleByID := make(map[string]EligibleVenue, len(eligible))
	for _, ev := range eligible {
		eligibleByID[ev.Venue.ID] = ev
	}

	best := 0
	for i := range candidates {
		candidates[i].score = r.scoreCandidate(order, &candidates[i], eligibleByID)
		if candidates[i].score > candidates[best].score {
			best = i
		}
	}
	decision := r.buildDecision(order, best, candidates, snap, eligibleByID)

	if payload, err := json.Marshal(decision); err == nil {
		r.cache.Set(ctx, cacheKey, payload, r.cfg.DecisionTTL)
	}
	r.remember(decision)
	r.notifyRouted(order, decision)

	log.Debug().Str("order", order.ID).Str("strategy", decision.Strategy).
		Int("routes", len(decision.Routes)).Float64("confidence", decision.Confidence).
		Msg("Order routed")
	return decision, nil
}

// freshSnapshot fetches the liquidity snapshot, recomputing once if the
// cached merge has aged past its TTL. Staleness is handled here and never
// surfaced to callers.
func (r *Router) freshSnapshot(symbol string) (*liquidity.Snapshot, error) {
	snap, err := r.agg.GetAggregatedLiquidity(symbol)
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}
	if err := r.checkSnapshot(snap); err != nil {
		snap, err = r.agg.GetAggregatedLiquidity(symbol)
		if err != nil {
			return nil, &ExchangeError{Err: err}
		}
		if err := r.checkSnapshot(snap); err != nil {
			log.Warn().Str("symbol", symbol).Dur("age", snap.Age()).
				Msg("Snapshot still stale after recompute, proceeding degraded")
		}
	}
	return snap, nil
}

func (r *Router) checkSnapshot(snap *liquidity.Snapshot) error {
	if snap.Age() > 2*time.Second {
		return errStaleData
	}
	return nil
}

// availableDepth sums merged depth on the side the order consumes, at or
// better than the limit price for limit orders.
func (r *Router) availableDepth(snap *liquidity.Snapshot, order *Order) float64 {
	var levels []liquidity.AggregatedLevel
	if order.Side == market.Buy {
		levels = snap.Depth.Asks
	} else {
		levels = snap.Depth.Bids
	}
	total := 0.0
	for _, lvl := range levels {
		if order.Type == market.LimitOrder {
			if order.Side == market.Buy && lvl.Price > order.LimitPrice {
				break
			}
			if order.Side == market.Sell && lvl.Price < order.LimitPrice {
				break
			}
		}
		total += lvl.Quantity
	}
	return total
}

// eligibleVenues applies the venue filter: operational, trading-enabled,
// symbol support, order constraints, a live book in the snapshot, and
// quality thresholds. Critical urgency additionally requires low latency.
func (r *Router) eligibleVenues(order *Order, snap *liquidity.Snapshot) []EligibleVenue {
	var out []EligibleVenue
	for _, v := range r.registry.List() {
		if !v.Operational || !v.TradingEnabled || !v.SupportsSymbol(order.Symbol) {
			continue
		}
		if !order.Constraints.allowsVenue(v.ID) {
			continue
		}
		book, ok := snap.VenueBooks[v.ID]
		if !ok {
			continue
		}
		m := r.tracker.Get(v.ID)
		if m.FillRate < r.cfg.MinFillRate || m.Reliability < r.cfg.MinReliability {
			continue
		}
		if order.Urgency == market.UrgencyCritical && m.AvgLatencyMs > r.cfg.CriticalLatencyMs {
			continue
		}
		limit := 0.0
		if order.Type == market.LimitOrder {
			limit = order.LimitPrice
		}
		depth := book.DepthAtOrBetter(order.Side, limit)
		if depth <= 0 {
			continue
		}
		out = append(out, EligibleVenue{Venue: v, Metrics: m, Book: book, Depth: depth})
	}
	// Deterministic ordering keeps decisions reproducible across calls.
	sort.Slice(out, func(i, j int) bool { return out[i].Venue.ID < out[j].Venue.ID })
	return out
}

// generateCandidates runs every strategy enabled by the routing mode.
func (r *Router) generateCandidates(order *Order, snap *liquidity.Snapshot, eligible []EligibleVenue) []candidate {
	var out []candidate
	out = append(out, r.singleVenueCandidates(order, eligible)...)

	if r.cfg.Mode != ModeSingle {
		if cand := r.proportionalCandidate(order, eligible); cand != nil {
			out = append(out, *cand)
		}
		if cand := r.dpCandidate(order, eligible); cand != nil {
			out = append(out, *cand)
		}
		if cand := r.timeWeightedCandidate(order, eligible); cand != nil {
			out = append(out, *cand)
		}
		for _, strategy := range r.extra {
			if routes := strategy.Generate(order, snap, eligible); len(routes) > 0 {
				out = append(out, candidate{strategy: strategy.Name(), routes: routes})
			}
		}
	}
	return out
}

// buildDecision assembles the final decision from the selected candidate,
// applying latency ordering, backup flags, and the reasoning trace.
func (r *Router) buildDecision(order *Order, best int, all []candidate,
	snap *liquidity.Snapshot, eligible map[string]EligibleVenue) *RoutingDecision {

	selected := &all[best]
	routes := make([]ExecutionRoute, len(selected.routes))
	copy(routes, selected.routes)

	if r.cfg.Objective == ObjectiveSpeed {
		sort.SliceStable(routes, func(i, j int) bool { return routes[i].LatencyMs < routes[j].LatencyMs })
	}
	maxLatency := 0.0
	for i := range routes {
		routes[i].Priority = i
		if ev, ok := eligible[routes[i].Venue]; ok && ev.Metrics.FailureRate > r.cfg.BackupFailureRate {
			routes[i].Backup = true
		}
		if routes[i].LatencyMs > maxLatency {
			maxLatency = routes[i].LatencyMs
		}
	}

	var totalCost, slipWeighted, totalQty float64
	for _, route := range routes {
		totalCost += route.Quantity*route.EstPrice + route.EstFee
		slipWeighted += route.EstSlippage * route.Quantity
		totalQty += route.Quantity
	}
	expectedSlip := 0.0
	if totalQty > 0 {
		expectedSlip = slipWeighted / totalQty
	}

	r.mu.RLock()
	condition := r.condition
	r.mu.RUnlock()

	reasoning := []string{
		fmt.Sprintf("mode=%s objective=%s strategy=%s", r.cfg.Mode, r.cfg.Objective, selected.strategy),
		fmt.Sprintf("market condition %s, %d venues merged", condition, snap.VenuesMerged),
		fmt.Sprintf("split across %d venue(s), fill coverage %.1f%%", len(routes), totalQty/order.Quantity*100),
	}
	if snap.SpreadPercent > 0.5 {
		reasoning = append(reasoning, fmt.Sprintf("wide spread flag: %.2f%%", snap.SpreadPercent))
	}
	if len(snap.VenuesSkipped) > 0 {
		reasoning = append(reasoning, fmt.Sprintf("stale venues excluded: %v", snap.VenuesSkipped))
	}

	// Surface the runner-up as alternatives for callers that want a fallback.
	var alternatives []ExecutionRoute
	runnerUp := -1
	for i := range all {
		if i == best {
			continue
		}
		if all[i].strategy == selected.strategy && sameRoutes(all[i].routes, selected.routes) {
			continue
		}
		if runnerUp < 0 || all[i].score > all[runnerUp].score {
			runnerUp = i
		}
	}
	if runnerUp >= 0 {
		alternatives = append(alternatives, all[runnerUp].routes...)
	}

	return &RoutingDecision{
		ID:           uuid.NewString(),
		OrderID:      order.ID,
		Routes:       routes,
		TotalCost:    totalCost,
		ExpectedSlip: expectedSlip,
		ExpectedTime: time.Duration(maxLatency) * time.Millisecond,
		Confidence:   r.confidence(order, selected, snap.VenuesMerged, snap.SpreadPercent, condition),
		Alternatives: alternatives,
		Reasoning:    reasoning,
		Strategy:     selected.strategy,
		CreatedAt:    time.Now(),
	}
}

func sameRoutes(a, b []ExecutionRoute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Venue != b[i].Venue || a[i].Quantity != b[i].Quantity {
			return false
		}
	}
	return true
}

// RecordOutcome feeds execution feedback into the venue tracker and notifies
// observers of the metric change.
func (r *Router) RecordOutcome(outcome venue.ExecutionOutcome) {
	r.tracker.UpdateMetrics(outcome)
	m := r.tracker.Get(outcome.VenueID)
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, obs := range observers {
		obs.MetricsUpdated(outcome.VenueID, m)
	}
}

// UpdateMarketCondition sets the caller-supplied market regime.
func (r *Router) UpdateMarketCondition(condition market.Condition) error {
	if !condition.Valid() {
		return &ValidationError{Field: "condition", Reason: fmt.Sprintf("unknown value %q", condition)}
	}
	r.mu.Lock()
	r.condition = condition
	r.mu.Unlock()
	return nil
}

// GetState returns a read-only copy of venue metrics and market condition.
func (r *Router) GetState() State {
	r.mu.RLock()
	condition := r.condition
	r.mu.RUnlock()
	return State{
		VenueMetrics:    r.tracker.All(),
		MarketCondition: condition,
	}
}

// RecentDecision returns a previously issued decision by its ID.
func (r *Router) RecentDecision(id string) (*RoutingDecision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.recent[id]
	return d, ok
}

func (r *Router) remember(decision *RoutingDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recentIDs) >= recentDecisionCap {
		oldest := r.recentIDs[0]
		r.recentIDs = r.recentIDs[1:]
		delete(r.recent, oldest)
	}
	r.recent[decision.ID] = decision
	r.recentIDs = append(r.recentIDs, decision.ID)
}

func (r *Router) notifyRouted(order *Order, decision *RoutingDecision) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, obs := range observers {
		obs.OrderRouted(order, decision)
	}
}

func decisionKey(order *Order) string {
	return fmt.Sprintf("decision|%s|%s|%.8f|%s|%.8f",
		order.Symbol, order.Side, order.Quantity, order.Type, order.LimitPrice)
}
