package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
)

// ChildOrder is a single-venue order derived from a routing decision.
type ChildOrder struct {
	Venue      string
	Symbol     string
	Side       market.Side
	Quantity   float64
	LimitPrice float64
	Type       market.OrderType
}

// FillResult is what a venue reports back for a submitted child order.
type FillResult struct {
	OrderID      string
	FilledQty    float64
	AvgFillPrice float64
	FeePaid      float64
	LatencyMs    float64
	Rejected     bool
	Reason       string
}

// Adapter is the opaque per-venue connector. Wire protocols, authentication,
// and settlement live behind this boundary.
type Adapter interface {
	GetOrderBook(ctx context.Context, symbol string) (*liquidity.OrderBookSnapshot, error)
	SubmitOrder(ctx context.Context, order ChildOrder) (FillResult, error)
	GetTradingFees(ctx context.Context) (FeeSchedule, error)
	Healthy(ctx context.Context) bool
}

// BreakerAdapter wraps an Adapter with a circuit breaker so a failing venue
// sheds load instead of stacking timeouts on the routing path.
type BreakerAdapter struct {
	venueID string
	inner   Adapter
	breaker *gobreaker.CircuitBreaker
}

// BreakerConfig tunes the per-venue circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         3,
		Interval:            30 * time.Second,
		Timeout:             15 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// NewBreakerAdapter wraps the adapter for one venue.
func NewBreakerAdapter(venueID string, inner Adapter, cfg BreakerConfig) *BreakerAdapter {
	settings := gobreaker.Settings{
		Name:        venueID,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("venue", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Venue circuit breaker state change")
		},
	}
	return &BreakerAdapter{
		venueID: venueID,
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// GetOrderBook fetches the venue book through the breaker.
func (b *BreakerAdapter) GetOrderBook(ctx context.Context, symbol string) (*liquidity.OrderBookSnapshot, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.GetOrderBook(ctx, symbol)
	})
	if err != nil {
		return nil, fmt.Errorf("venue %s order book: %w", b.venueID, err)
	}
	return result.(*liquidity.OrderBookSnapshot), nil
}

// SubmitOrder submits through the breaker. A tripped breaker fails fast with
// the breaker's open-state error.
func (b *BreakerAdapter) SubmitOrder(ctx context.Context, order ChildOrder) (FillResult, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		fill, err := b.inner.SubmitOrder(ctx, order)
		if err != nil {
			return FillResult{}, err
		}
		return fill, nil
	})
	if err != nil {
		return FillResult{}, fmt.Errorf("venue %s submit: %w", b.venueID, err)
	}
	return result.(FillResult), nil
}

// GetTradingFees fetches fees through the breaker.
func (b *BreakerAdapter) GetTradingFees(ctx context.Context) (FeeSchedule, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.GetTradingFees(ctx)
	})
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("venue %s fees: %w", b.venueID, err)
	}
	return result.(FeeSchedule), nil
}

// Healthy reports the inner adapter's health unless the breaker is open.
func (b *BreakerAdapter) Healthy(ctx context.Context) bool {
	if b.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return b.inner.Healthy(ctx)
}

// State exposes the breaker state for diagnostics.
func (b *BreakerAdapter) State() gobreaker.State { return b.breaker.State() }
