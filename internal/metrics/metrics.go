// Package metrics exposes routing and venue quality metrics through a
// Prometheus registry. It implements the router's observer interface so
// instrumentation stays out of the routing path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

// Metrics is the process metric set. Register it as a router observer and
// serve Registry() over promhttp.
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal  *prometheus.CounterVec
	routesPerOrder  prometheus.Histogram
	decisionConf    prometheus.Histogram
	expectedSlipPct prometheus.Histogram

	venueFillRate    *prometheus.GaugeVec
	venueReliability *prometheus.GaugeVec
	venueLatencyMs   *prometheus.GaugeVec
	venueFailureRate *prometheus.GaugeVec

	feedMessages *prometheus.CounterVec
	feedDrops    *prometheus.CounterVec
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidroute_decisions_total",
			Help: "Routing decisions issued, by strategy.",
		}, []string{"strategy"}),
		routesPerOrder: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidroute_routes_per_order",
			Help:    "Number of venue routes per decision.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 10},
		}),
		decisionConf: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidroute_decision_confidence",
			Help:    "Confidence of issued decisions.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		expectedSlipPct: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidroute_expected_slippage_pct",
			Help:    "Expected slippage of issued decisions, percent.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		venueFillRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "liquidroute_venue_fill_rate",
			Help: "EMA fill rate per venue.",
		}, []string{"venue"}),
		venueReliability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "liquidroute_venue_reliability",
			Help: "Composite reliability per venue.",
		}, []string{"venue"}),
		venueLatencyMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "liquidroute_venue_latency_ms",
			Help: "EMA execution latency per venue, milliseconds.",
		}, []string{"venue"}),
		venueFailureRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "liquidroute_venue_failure_rate",
			Help: "EMA failure rate per venue.",
		}, []string{"venue"}),
		feedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidroute_feed_messages_total",
			Help: "Feed messages consumed, by venue and type.",
		}, []string{"venue", "type"}),
		feedDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidroute_feed_dropped_total",
			Help: "Malformed or unknown feed messages dropped, by venue.",
		}, []string{"venue"}),
	}
	m.registry.MustRegister(
		m.decisionsTotal, m.routesPerOrder, m.decisionConf, m.expectedSlipPct,
		m.venueFillRate, m.venueReliability, m.venueLatencyMs, m.venueFailureRate,
		m.feedMessages, m.feedDrops,
	)
	return m
}

// Registry returns the backing registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// OrderRouted records one issued decision.
func (m *Metrics) OrderRouted(_ *router.Order, decision *router.RoutingDecision) {
	m.decisionsTotal.WithLabelValues(decision.Strategy).Inc()
	m.routesPerOrder.Observe(float64(len(decision.Routes)))
	m.decisionConf.Observe(decision.Confidence)
	m.expectedSlipPct.Observe(decision.ExpectedSlip * 100)
}

// MetricsUpdated mirrors a venue's tracker state into gauges.
func (m *Metrics) MetricsUpdated(venueID string, metrics venue.Metrics) {
	m.venueFillRate.WithLabelValues(venueID).Set(metrics.FillRate)
	m.venueReliability.WithLabelValues(venueID).Set(metrics.Reliability)
	m.venueLatencyMs.WithLabelValues(venueID).Set(metrics.AvgLatencyMs)
	m.venueFailureRate.WithLabelValues(venueID).Set(metrics.FailureRate)
}

// FeedMessage counts one consumed feed message.
func (m *Metrics) FeedMessage(venueID, msgType string) {
	m.feedMessages.WithLabelValues(venueID, msgType).Inc()
}

// FeedDrop counts one dropped feed message.
func (m *Metrics) FeedDrop(venueID string) {
	m.feedDrops.WithLabelValues(venueID).Inc()
}
