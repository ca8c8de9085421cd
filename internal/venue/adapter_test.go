package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
)

type flakyAdapter struct {
	err     error
	submits int
}

func (f *flakyAdapter) GetOrderBook(context.Context, string) (*liquidity.OrderBookSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &liquidity.OrderBookSnapshot{Venue: "test", Symbol: "BTC-USD"}, nil
}

func (f *flakyAdapter) SubmitOrder(_ context.Context, order ChildOrder) (FillResult, error) {
	f.submits++
	if f.err != nil {
		return FillResult{}, f.err
	}
	return FillResult{FilledQty: order.Quantity, AvgFillPrice: 50000}, nil
}

func (f *flakyAdapter) GetTradingFees(context.Context) (FeeSchedule, error) {
	if f.err != nil {
		return FeeSchedule{}, f.err
	}
	return FeeSchedule{TakerRate: 0.001}, nil
}

func (f *flakyAdapter) Healthy(context.Context) bool { return f.err == nil }

func TestBreakerAdapterPassthrough(t *testing.T) {
	inner := &flakyAdapter{}
	b := NewBreakerAdapter("kraken", inner, DefaultBreakerConfig())
	ctx := context.Background()

	book, err := b.GetOrderBook(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", book.Symbol)

	fill, err := b.SubmitOrder(ctx, ChildOrder{Symbol: "BTC-USD", Side: market.Buy, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, fill.FilledQty)

	fees, err := b.GetTradingFees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.001, fees.TakerRate)

	assert.True(t, b.Healthy(ctx))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyAdapter{err: errors.New("venue down")}
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 3
	b := NewBreakerAdapter("kraken", inner, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.SubmitOrder(ctx, ChildOrder{Quantity: 1})
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())
	assert.False(t, b.Healthy(ctx))

	// Open breaker fails fast without reaching the venue.
	before := inner.submits
	_, err := b.SubmitOrder(ctx, ChildOrder{Quantity: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, inner.submits)
}

func TestBreakerErrorsCarryVenueID(t *testing.T) {
	inner := &flakyAdapter{err: errors.New("timeout")}
	b := NewBreakerAdapter("okx", inner, DefaultBreakerConfig())

	_, err := b.GetOrderBook(context.Background(), "BTC-USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "okx")
}
