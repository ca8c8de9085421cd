package execalgo

import (
	"math"
	"math/rand"
	"time"
)

// slicePlan is one scheduled child: the quantity to request now and how long
// to wait before the next slice.
type slicePlan struct {
	qty  float64
	wait time.Duration
	done bool // schedule exhausted after this slice
}

// scheduler produces the next slice for a parent order. Implementations are
// single-goroutine: the run loop is the only caller.
type scheduler interface {
	next(remaining float64, observedVolume float64) slicePlan
}

func newScheduler(cfg Config, totalQty float64, rng *rand.Rand) scheduler {
	switch cfg.Algorithm {
	case VWAP:
		return &vwapScheduler{
			weights:  normalizeCurve(cfg.VolumeCurve, cfg.Slices),
			totalQty: totalQty,
			interval: cfg.Duration / time.Duration(cfg.Slices),
		}
	case POV:
		return &povScheduler{cfg: cfg}
	case Iceberg:
		return &icebergScheduler{cfg: cfg, rng: rng}
	default:
		return &twapScheduler{cfg: cfg, totalQty: totalQty, rng: rng}
	}
}

// twapScheduler emits equal slices at fixed intervals, optionally randomized
// within the configured variance to blur the footprint.
type twapScheduler struct {
	cfg      Config
	totalQty float64
	rng      *rand.Rand
	issued   int
}

func (s *twapScheduler) next(remaining, _ float64) slicePlan {
	s.issued++
	last := s.issued >= s.cfg.Slices
	qty := s.totalQty / float64(s.cfg.Slices)
	if s.cfg.RandomizeSlices && s.cfg.SizeVariancePct > 0 && !last {
		qty = randomize(qty, s.cfg.SizeVariancePct, s.rng)
	}
	if last || qty > remaining {
		qty = remaining
	}
	return slicePlan{
		qty:  qty,
		wait: s.cfg.Duration / time.Duration(s.cfg.Slices),
		done: last,
	}
}

// vwapScheduler weights slice sizes by the (normalized) intraday volume
// curve, so participation follows expected market volume.
type vwapScheduler struct {
	weights  []float64
	totalQty float64
	interval time.Duration
	issued   int
}

func (s *vwapScheduler) next(remaining, _ float64) slicePlan {
	idx := s.issued
	s.issued++
	last := s.issued >= len(s.weights)
	qty := s.totalQty * s.weights[idx]
	if last || qty > remaining {
		qty = remaining
	}
	return slicePlan{qty: qty, wait: s.interval, done: last}
}

// targetFraction is the cumulative share of the order that should be filled
// after the given number of slices.
func (s *vwapScheduler) targetFraction(slicesDone int) float64 {
	if slicesDone >= len(s.weights) {
		return 1
	}
	total := 0.0
	for i := 0; i < slicesDone; i++ {
		total += s.weights[i]
	}
	return total
}

// povScheduler sizes each slice as a share of volume observed since the
// previous slice, capped by the hard ceiling in thin markets. It runs until
// the parent is filled or cancelled.
type povScheduler struct {
	cfg Config
}

func (s *povScheduler) next(remaining, observedVolume float64) slicePlan {
	qty := s.cfg.TargetPOV * observedVolume
	if qty < s.cfg.MinSliceQty {
		qty = s.cfg.MinSliceQty
	}
	// The ceiling wins over the floor: never exceed MaxPOV of what the
	// market actually printed.
	if ceiling := s.cfg.MaxPOV * observedVolume; qty > ceiling {
		qty = ceiling
	}
	if qty > remaining {
		qty = remaining
	}
	return slicePlan{qty: qty, wait: s.cfg.Interval}
}

// icebergScheduler reveals the visible quantity repeatedly, randomizing each
// reveal's size so the sequence is harder to fingerprint.
type icebergScheduler struct {
	cfg Config
	rng *rand.Rand
}

func (s *icebergScheduler) next(remaining, _ float64) slicePlan {
	qty := s.cfg.VisibleQty
	if s.cfg.SizeVariancePct > 0 {
		qty = randomize(qty, s.cfg.SizeVariancePct, s.rng)
	}
	if qty > remaining {
		qty = remaining
	}
	wait := s.cfg.Interval
	if wait <= 0 {
		wait = time.Second
	}
	return slicePlan{qty: qty, wait: wait}
}

// randomize perturbs qty uniformly within +/- variance of its nominal size.
func randomize(qty, variance float64, rng *rand.Rand) float64 {
	factor := 1 + variance*(2*rng.Float64()-1)
	return qty * factor
}

// normalizeCurve scales the weights to sum to 1, generating a U-shaped
// intraday curve when none is configured.
func normalizeCurve(curve []float64, slices int) []float64 {
	if len(curve) == 0 {
		curve = uShapeCurve(slices)
	}
	total := 0.0
	for _, w := range curve {
		total += w
	}
	out := make([]float64, len(curve))
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i, w := range curve {
		out[i] = w / total
	}
	return out
}

// uShapeCurve approximates the classic intraday volume smile: heavy at the
// open and close, light midday.
func uShapeCurve(slices int) []float64 {
	if slices < 1 {
		slices = 1
	}
	out := make([]float64, slices)
	for i := range out {
		x := 0.0
		if slices > 1 {
			x = float64(i)/float64(slices-1)*2 - 1 // [-1, 1]
		}
		out[i] = 1 + 0.8*math.Pow(x, 2)
	}
	return out
}
