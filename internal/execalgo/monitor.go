package execalgo

import (
	"math"
)

// Metrics is the live execution-quality view of one parent order.
type Metrics struct {
	FilledQty        float64 `json:"filled_qty"`
	AvgFillPrice     float64 `json:"avg_fill_price"`
	FeesPaid         float64 `json:"fees_paid"`
	SlicesExecuted   int     `json:"slices_executed"`
	SlicesFailed     int     `json:"slices_failed"`
	ArrivalPrice     float64 `json:"arrival_price"`
	ShortfallBps     float64 `json:"shortfall_bps"`     // vs arrival price, adverse positive
	ScheduleDevPct   float64 `json:"schedule_dev_pct"`  // realized vs target cumulative fill
	Participation    float64 `json:"participation"`     // filled / observed market volume
	DetectionRisk    float64 `json:"detection_risk"`    // 0..1 footprint regularity heuristic
	VenueRotations   int     `json:"venue_rotations"`   // failovers to backup routes
}

// Alert is a threshold breach raised by the monitor.
type Alert struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// monitor accumulates fills and computes execution-quality metrics. It is
// only touched by the run loop; the handle copies metrics out under its own
// lock.
type monitor struct {
	cfg Config

	buy          bool
	arrival      float64
	filled       float64
	notional     float64
	fees         float64
	slices       int
	failures     int
	rotations    int
	sliceSizes   []float64
	targetedFrac float64
}

func newMonitor(cfg Config, buy bool) *monitor {
	return &monitor{cfg: cfg, buy: buy}
}

// recordSlice folds one executed slice into the running totals.
func (m *monitor) recordSlice(requestedQty, filledQty, avgPrice, fees float64, rotations int) {
	m.slices++
	m.rotations += rotations
	if filledQty <= 0 {
		m.failures++
		return
	}
	if m.arrival == 0 {
		m.arrival = avgPrice
	}
	m.filled += filledQty
	m.notional += filledQty * avgPrice
	m.fees += fees
	m.sliceSizes = append(m.sliceSizes, requestedQty)
}

// setScheduleTarget records the cumulative fraction of the parent that the
// schedule expected to be done by now.
func (m *monitor) setScheduleTarget(frac float64) { m.targetedFrac = frac }

// snapshot computes the current metrics for the given parent quantity and
// observed market volume since start.
func (m *monitor) snapshot(parentQty, marketVolume float64) Metrics {
	out := Metrics{
		FilledQty:      m.filled,
		FeesPaid:       m.fees,
		SlicesExecuted: m.slices,
		SlicesFailed:   m.failures,
		ArrivalPrice:   m.arrival,
		VenueRotations: m.rotations,
		DetectionRisk:  m.detectionRisk(),
	}
	if m.filled > 0 {
		out.AvgFillPrice = m.notional / m.filled
	}
	if m.arrival > 0 && out.AvgFillPrice > 0 {
		drift := (out.AvgFillPrice - m.arrival) / m.arrival
		if !m.buy {
			drift = -drift
		}
		out.ShortfallBps = drift * 10000
	}
	if parentQty > 0 && m.targetedFrac > 0 {
		realized := m.filled / parentQty
		out.ScheduleDevPct = (realized - m.targetedFrac) / m.targetedFrac * 100
	}
	if marketVolume > 0 {
		out.Participation = m.filled / marketVolume
	}
	return out
}

// alerts returns threshold breaches for the metrics. Zero thresholds are
// disabled.
func (m *monitor) alerts(metrics Metrics) []Alert {
	var out []Alert
	if t := m.cfg.MaxShortfallBps; t > 0 && metrics.ShortfallBps > t {
		out = append(out, Alert{
			Metric: "shortfall_bps", Value: metrics.ShortfallBps, Threshold: t,
			Message: "implementation shortfall beyond tolerance",
		})
	}
	if t := m.cfg.MaxScheduleDeviationPct; t > 0 && math.Abs(metrics.ScheduleDevPct) > t {
		out = append(out, Alert{
			Metric: "schedule_deviation_pct", Value: metrics.ScheduleDevPct, Threshold: t,
			Message: "fill pace drifted from the volume schedule",
		})
	}
	if t := m.cfg.MaxDetectionRisk; t > 0 && metrics.DetectionRisk > t {
		out = append(out, Alert{
			Metric: "detection_risk", Value: metrics.DetectionRisk, Threshold: t,
			Message: "slice footprint is too regular",
		})
	}
	return out
}

// detectionRisk scores how fingerprintable the slice sequence is: many
// slices of nearly identical size score high, irregular sizes score low.
func (m *monitor) detectionRisk() float64 {
	n := len(m.sliceSizes)
	if n < 3 {
		return 0
	}
	mean := 0.0
	for _, s := range m.sliceSizes {
		mean += s
	}
	mean /= float64(n)
	if mean <= 0 {
		return 0
	}
	variance := 0.0
	for _, s := range m.sliceSizes {
		variance += (s - mean) * (s - mean)
	}
	cv := math.Sqrt(variance/float64(n)) / mean

	regularity := 1 - cv/0.1
	if regularity < 0 {
		regularity = 0
	}
	exposure := float64(n) / float64(n+20)
	return regularity * exposure
}
