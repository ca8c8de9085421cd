package venue

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Metrics is the EMA-smoothed quality view of one venue. Rates are fractions
// in [0,1]; slippage is in basis points; latency in milliseconds.
type Metrics struct {
	VenueID        string    `json:"venue_id"`
	FillRate       float64   `json:"fill_rate"`
	AvgSlippageBps float64   `json:"avg_slippage_bps"`
	FailureRate    float64   `json:"failure_rate"`
	AvgLatencyMs   float64   `json:"avg_latency_ms"`
	LatencyP50Ms   float64   `json:"latency_p50_ms"`
	LatencyP99Ms   float64   `json:"latency_p99_ms"`
	Reliability    float64   `json:"reliability"`
	LiquidityScore float64   `json:"liquidity_score"`
	CostEfficiency float64   `json:"cost_efficiency"`
	Samples        int64     `json:"samples"`
	LastUpdate     time.Time `json:"last_update"`
}

// ExecutionOutcome is the feedback from one child order execution.
type ExecutionOutcome struct {
	VenueID       string
	RequestedQty  float64
	FilledQty     float64
	ExpectedPrice float64
	AvgFillPrice  float64
	LatencyMs     float64
	Failed        bool
	Timestamp     time.Time
}

// PerformanceReport is an authoritative out-of-band venue quality report.
// Its absolute values overwrite the locally estimated EMAs.
type PerformanceReport struct {
	VenueID         string    `json:"venue_id"`
	FillRate        float64   `json:"fill_rate"`
	SlippageBps     float64   `json:"slippage_bps"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	LatencyP50Ms    float64   `json:"latency_p50_ms"`
	LatencyP99Ms    float64   `json:"latency_p99_ms"`
	UptimePercent   float64   `json:"uptime_percent"`
	LiquidityScore  float64   `json:"liquidity_score"`
	VolatilityScore float64   `json:"volatility_score"`
	Timestamp       time.Time `json:"timestamp"`
}

const latencyWindow = 256

// Tracker maintains per-venue quality metrics. Reads are synchronous and
// non-blocking; updates are single-writer-per-venue and comparatively rare.
type Tracker struct {
	alpha float64

	mu        sync.RWMutex
	metrics   map[string]*Metrics
	latencies map[string][]float64 // bounded sample window for percentiles
}

// NewTracker creates a tracker with the given EMA weight. A non-positive
// alpha falls back to 0.1.
func NewTracker(alpha float64) *Tracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &Tracker{
		alpha:     alpha,
		metrics:   make(map[string]*Metrics),
		latencies: make(map[string][]float64),
	}
}

// seed returns the optimistic starting point for a venue with no history.
func seed(venueID string) *Metrics {
	return &Metrics{
		VenueID:        venueID,
		FillRate:       1.0,
		Reliability:    1.0,
		LiquidityScore: 0.5,
		CostEfficiency: 0.5,
	}
}

// UpdateMetrics applies one execution outcome with bounded EMA smoothing.
func (t *Tracker) UpdateMetrics(outcome ExecutionOutcome) {
	if outcome.VenueID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.metrics[outcome.VenueID]
	if !ok {
		m = seed(outcome.VenueID)
		t.metrics[outcome.VenueID] = m
	}

	fill := 0.0
	if outcome.RequestedQty > 0 {
		fill = clamp01(outcome.FilledQty / outcome.RequestedQty)
	}
	failure := 0.0
	if outcome.Failed {
		failure = 1.0
	}
	slippageBps := 0.0
	if outcome.ExpectedPrice > 0 && outcome.AvgFillPrice > 0 {
		slippageBps = math.Abs(outcome.AvgFillPrice-outcome.ExpectedPrice) / outcome.ExpectedPrice * 10000
	}

	m.FillRate = ema(m.FillRate, fill, t.alpha)
	m.FailureRate = ema(m.FailureRate, failure, t.alpha)
	m.AvgSlippageBps = ema(m.AvgSlippageBps, slippageBps, t.alpha)
	if outcome.LatencyMs > 0 {
		m.AvgLatencyMs = ema(m.AvgLatencyMs, outcome.LatencyMs, t.alpha)
		t.recordLatency(outcome.VenueID, outcome.LatencyMs, m)
	}
	m.Reliability = clamp01(m.FillRate * (1 - m.FailureRate))
	m.CostEfficiency = 1 / (1 + m.AvgSlippageBps/100)
	m.Samples++
	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	m.LastUpdate = ts
}

// IngestExternalReport overwrites a venue's metrics with absolute values
// from the periodic performance feed. Report values supersede local EMA
// estimates until the next report.
func (t *Tracker) IngestExternalReport(report PerformanceReport) {
	if report.VenueID == "" {
		log.Warn().Msg("Dropping performance report without venue id")
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.metrics[report.VenueID]
	if !ok {
		m = seed(report.VenueID)
		t.metrics[report.VenueID] = m
	}

	m.FillRate = clamp01(report.FillRate)
	m.AvgSlippageBps = report.SlippageBps
	m.AvgLatencyMs = report.AvgLatencyMs
	if report.LatencyP50Ms > 0 {
		m.LatencyP50Ms = report.LatencyP50Ms
	}
	if report.LatencyP99Ms > 0 {
		m.LatencyP99Ms = report.LatencyP99Ms
	}
	m.Reliability = clamp01(report.UptimePercent / 100)
	m.FailureRate = clamp01(1 - report.UptimePercent/100)
	if report.LiquidityScore > 0 {
		m.LiquidityScore = clamp01(report.LiquidityScore)
	}
	m.CostEfficiency = 1 / (1 + m.AvgSlippageBps/100)
	ts := report.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	m.LastUpdate = ts
}

// DecayReliability multiplies a venue's reliability by the factor. The feed
// watchdog calls this when a venue has gone silent instead of dropping it.
func (t *Tracker) DecayReliability(venueID string, factor float64) {
	if factor <= 0 || factor >= 1 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.metrics[venueID]
	if !ok {
		m = seed(venueID)
		t.metrics[venueID] = m
	}
	m.Reliability = clamp01(m.Reliability * factor)
}

// Get returns a copy of the venue's metrics. Unknown venues report the
// optimistic seed so new venues are not excluded before any history exists.
func (t *Tracker) Get(venueID string) Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if m, ok := t.metrics[venueID]; ok {
		return *m
	}
	return *seed(venueID)
}

// All returns copies of every tracked venue's metrics.
func (t *Tracker) All() map[string]Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Metrics, len(t.metrics))
	for id, m := range t.metrics {
		out[id] = *m
	}
	return out
}

// recordLatency keeps a bounded sample window and refreshes p50/p99.
// Caller must hold the write lock.
func (t *Tracker) recordLatency(venueID string, latencyMs float64, m *Metrics) {
	window := append(t.latencies[venueID], latencyMs)
	if len(window) > latencyWindow {
		window = window[len(window)-latencyWindow:]
	}
	t.latencies[venueID] = window

	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)
	m.LatencyP50Ms = percentile(sorted, 0.50)
	m.LatencyP99Ms = percentile(sorted, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ema(prev, sample, alpha float64) float64 {
	return prev*(1-alpha) + sample*alpha
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
