// Package execalgo schedules a parent order over time, issuing one routing
// request per slice. Time scheduling is fully decoupled from spatial routing.
package execalgo

import (
	"fmt"
	"time"
)

// Algorithm selects the slicing schedule for a parent order.
type Algorithm string

const (
	TWAP    Algorithm = "twap"    // equal slices at fixed intervals
	VWAP    Algorithm = "vwap"    // slices weighted by an intraday volume curve
	POV     Algorithm = "pov"     // hold a target share of observed volume
	Iceberg Algorithm = "iceberg" // repeatedly reveal a small visible quantity
)

// Valid reports whether the algorithm is one of the supported four.
func (a Algorithm) Valid() bool {
	switch a {
	case TWAP, VWAP, POV, Iceberg:
		return true
	}
	return false
}

// Config is the closed per-parent-order execution configuration.
type Config struct {
	Algorithm Algorithm `yaml:"algorithm"`

	// TWAP / VWAP.
	Duration time.Duration `yaml:"duration"`
	Slices   int           `yaml:"slices"`

	// VWAP volume curve weights, one per slice. Normalized at load; when
	// empty a U-shaped intraday curve is generated.
	VolumeCurve []float64 `yaml:"volume_curve"`

	// POV.
	TargetPOV   float64       `yaml:"target_pov"`    // target share of observed volume
	MaxPOV      float64       `yaml:"max_pov"`       // hard ceiling in thin markets
	MinSliceQty float64       `yaml:"min_slice_qty"` // floor before the ceiling applies
	Interval    time.Duration `yaml:"interval"`      // POV and Iceberg re-check cadence

	// Iceberg.
	VisibleQty float64 `yaml:"visible_qty"`

	// Size randomization, as a fraction of the nominal slice size. Iceberg
	// always randomizes; TWAP only when RandomizeSlices is set.
	SizeVariancePct float64 `yaml:"size_variance_pct"`
	RandomizeSlices bool    `yaml:"randomize_slices"`

	// Alert thresholds for the live monitor. Zero disables a threshold.
	MaxScheduleDeviationPct float64 `yaml:"max_schedule_deviation_pct"`
	MaxShortfallBps         float64 `yaml:"max_shortfall_bps"`
	MaxDetectionRisk        float64 `yaml:"max_detection_risk"`
}

// DefaultConfig returns a TWAP baseline with the standard alert thresholds.
func DefaultConfig() Config {
	return Config{
		Algorithm:               TWAP,
		Duration:                10 * time.Minute,
		Slices:                  10,
		TargetPOV:               0.10,
		MaxPOV:                  0.25,
		Interval:                5 * time.Second,
		SizeVariancePct:         0.20,
		MaxScheduleDeviationPct: 20,
		MaxShortfallBps:         50,
		MaxDetectionRisk:        0.8,
	}
}

// Validate rejects configurations that cannot produce a sane schedule.
func (c *Config) Validate() error {
	if !c.Algorithm.Valid() {
		return fmt.Errorf("unknown algorithm %q", c.Algorithm)
	}
	switch c.Algorithm {
	case TWAP, VWAP:
		if c.Duration <= 0 {
			return fmt.Errorf("%s requires a positive duration", c.Algorithm)
		}
		if c.Slices < 1 {
			return fmt.Errorf("%s requires at least one slice", c.Algorithm)
		}
		if c.Algorithm == VWAP && len(c.VolumeCurve) > 0 && len(c.VolumeCurve) != c.Slices {
			return fmt.Errorf("volume curve has %d weights for %d slices", len(c.VolumeCurve), c.Slices)
		}
		for _, w := range c.VolumeCurve {
			if w < 0 {
				return fmt.Errorf("volume curve weights must be non-negative")
			}
		}
	case POV:
		if c.TargetPOV <= 0 || c.TargetPOV > 1 {
			return fmt.Errorf("target_pov must be in (0,1], got %g", c.TargetPOV)
		}
		if c.MaxPOV < c.TargetPOV || c.MaxPOV > 1 {
			return fmt.Errorf("max_pov must be in [target_pov,1], got %g", c.MaxPOV)
		}
		if c.Interval <= 0 {
			return fmt.Errorf("pov requires a positive interval")
		}
	case Iceberg:
		if c.VisibleQty <= 0 {
			return fmt.Errorf("iceberg requires a positive visible_qty")
		}
	}
	if c.SizeVariancePct < 0 || c.SizeVariancePct >= 1 {
		return fmt.Errorf("size_variance_pct must be in [0,1), got %g", c.SizeVariancePct)
	}
	return nil
}
