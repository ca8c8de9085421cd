package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestOrderRoutedCounts(t *testing.T) {
	m := New()
	decision := &router.RoutingDecision{
		Strategy:   "dp-optimal",
		Confidence: 0.8,
		Routes: []router.ExecutionRoute{
			{Venue: "alpha", Quantity: 60},
			{Venue: "beta", Quantity: 40},
		},
	}
	m.OrderRouted(&router.Order{}, decision)
	m.OrderRouted(&router.Order{}, decision)

	families := gather(t, m)
	counter := families["liquidroute_decisions_total"]
	require.NotNil(t, counter)
	require.Len(t, counter.Metric, 1)
	assert.Equal(t, 2.0, counter.Metric[0].GetCounter().GetValue())
	require.Len(t, counter.Metric[0].Label, 1)
	assert.Equal(t, "dp-optimal", counter.Metric[0].Label[0].GetValue())

	hist := families["liquidroute_routes_per_order"]
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.Metric[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 4.0, hist.Metric[0].GetHistogram().GetSampleSum())
}

func TestMetricsUpdatedGauges(t *testing.T) {
	m := New()
	m.MetricsUpdated("alpha", venue.Metrics{
		FillRate:     0.95,
		Reliability:  0.9,
		AvgLatencyMs: 42,
		FailureRate:  0.02,
	})

	families := gather(t, m)
	fill := families["liquidroute_venue_fill_rate"]
	require.NotNil(t, fill)
	assert.Equal(t, 0.95, fill.Metric[0].GetGauge().GetValue())

	latency := families["liquidroute_venue_latency_ms"]
	require.NotNil(t, latency)
	assert.Equal(t, 42.0, latency.Metric[0].GetGauge().GetValue())
}

func TestFeedCounters(t *testing.T) {
	m := New()
	m.FeedMessage("alpha", "orderbook")
	m.FeedMessage("alpha", "orderbook")
	m.FeedMessage("alpha", "trade")
	m.FeedDrop("alpha")

	families := gather(t, m)
	msgs := families["liquidroute_feed_messages_total"]
	require.NotNil(t, msgs)
	total := 0.0
	for _, metric := range msgs.Metric {
		total += metric.GetCounter().GetValue()
	}
	assert.Equal(t, 3.0, total)

	drops := families["liquidroute_feed_dropped_total"]
	require.NotNil(t, drops)
	assert.Equal(t, 1.0, drops.Metric[0].GetCounter().GetValue())
}
