package liquidity

import "time"

// AggregatedLevel is one price rung of the merged book with the venues that
// contribute quantity at that price.
type AggregatedLevel struct {
	Price      float64  `json:"price"`
	Quantity   float64  `json:"quantity"`
	Venues     []string `json:"venues"`
	OrderCount int      `json:"order_count"`
}

// AggregatedDepth is the merged two-sided book across all live venues.
// Bids are strictly descending by price, asks strictly ascending, with no
// duplicate prices on either side.
type AggregatedDepth struct {
	Bids            []AggregatedLevel `json:"bids"`
	Asks            []AggregatedLevel `json:"asks"`
	TotalBidVolume  float64           `json:"total_bid_volume"`
	TotalAskVolume  float64           `json:"total_ask_volume"`
	DepthImbalance  float64           `json:"depth_imbalance"`
	MidPrice        float64           `json:"mid_price"`
	WeightedMid     float64           `json:"weighted_mid"`
}

// BestQuote is a top-of-book price with the venue that owns it.
type BestQuote struct {
	Venue    string  `json:"venue"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Snapshot is the merged multi-venue liquidity view for one symbol. It is
// immutable once returned: consumers must never mutate its slices.
type Snapshot struct {
	Symbol        string                        `json:"symbol"`
	Timestamp     time.Time                     `json:"timestamp"`
	VenueBooks    map[string]*OrderBookSnapshot `json:"venue_books"`
	Depth         AggregatedDepth               `json:"depth"`
	BestBid       BestQuote                     `json:"best_bid"`
	BestAsk       BestQuote                     `json:"best_ask"`
	Spread        float64                       `json:"spread"`
	SpreadPercent float64                       `json:"spread_percent"`
	FlowImbalance float64                       `json:"flow_imbalance"`
	VenuesMerged  int                           `json:"venues_merged"`
	VenuesSkipped []string                      `json:"venues_skipped,omitempty"`
}

// Age returns how long ago the snapshot was merged.
func (s *Snapshot) Age() time.Duration { return time.Since(s.Timestamp) }
