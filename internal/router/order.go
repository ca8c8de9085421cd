package router

import (
	"time"

	"github.com/liquidroute/liquidroute/internal/market"
)

// Constraints narrows where an order may be routed.
type Constraints struct {
	PreferredVenues []string `json:"preferred_venues,omitempty"` // if set, only these
	AvoidVenues     []string `json:"avoid_venues,omitempty"`
}

// Order is one routing request.
type Order struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Side        market.Side      `json:"side"`
	Quantity    float64          `json:"quantity"`
	Type        market.OrderType `json:"type"`
	LimitPrice  float64          `json:"limit_price,omitempty"`
	Urgency     market.Urgency   `json:"urgency,omitempty"`
	Constraints Constraints      `json:"constraints,omitempty"`
}

// Validate rejects malformed orders before any market data is touched.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "required"}
	}
	if !o.Side.Valid() {
		return &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if o.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !o.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be market or limit"}
	}
	if o.Type == market.LimitOrder && o.LimitPrice <= 0 {
		return &ValidationError{Field: "limit_price", Reason: "required for limit orders"}
	}
	return nil
}

// allowsVenue applies the order's venue constraints.
func (c Constraints) allowsVenue(venueID string) bool {
	for _, v := range c.AvoidVenues {
		if v == venueID {
			return false
		}
	}
	if len(c.PreferredVenues) == 0 {
		return true
	}
	for _, v := range c.PreferredVenues {
		if v == venueID {
			return true
		}
	}
	return false
}

// ExecutionRoute is one per-venue child allocation. It is transient until
// attached to a RoutingDecision, then immutable.
type ExecutionRoute struct {
	Venue        string  `json:"venue"`
	Quantity     float64 `json:"quantity"`
	EstPrice     float64 `json:"est_price"`
	EstFee       float64 `json:"est_fee"`
	EstSlippage  float64 `json:"est_slippage"` // fraction of reference price
	LatencyMs    float64 `json:"latency_ms"`
	Priority     int     `json:"priority"`
	Backup       bool    `json:"backup"`
}

// RoutingDecision is the selected set of per-venue child allocations for one
// routing request, with the scoring context that produced it.
type RoutingDecision struct {
	ID            string           `json:"id"`
	OrderID       string           `json:"order_id"`
	Routes        []ExecutionRoute `json:"routes"`
	TotalCost     float64          `json:"total_cost"`
	ExpectedSlip  float64          `json:"expected_slippage"`
	ExpectedTime  time.Duration    `json:"expected_time"`
	Confidence    float64          `json:"confidence"`
	Alternatives  []ExecutionRoute `json:"alternatives,omitempty"`
	Reasoning     []string         `json:"reasoning"`
	Strategy      string           `json:"strategy"`
	CreatedAt     time.Time        `json:"created_at"`
}

// TotalQuantity sums the per-route allocations.
func (d *RoutingDecision) TotalQuantity() float64 {
	total := 0.0
	for _, r := range d.Routes {
		total += r.Quantity
	}
	return total
}
