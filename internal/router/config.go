package router

import (
	"fmt"
	"time"
)

// Mode selects how aggressively orders are split across venues.
type Mode string

const (
	ModeSingle Mode = "single" // best single venue only
	ModeSmart  Mode = "smart"  // full candidate generation
	ModeHybrid Mode = "hybrid" // smart, preferring single-venue when close
)

// Objective shifts the scoring emphasis.
type Objective string

const (
	ObjectiveCost     Objective = "cost"
	ObjectiveSpeed    Objective = "speed"
	ObjectiveSize     Objective = "size"
	ObjectiveBalanced Objective = "balanced"
)

// Config is the closed router configuration. Unrecognized YAML fields are
// rejected at load time by the config package.
type Config struct {
	Mode           Mode      `yaml:"mode"`
	Objective      Objective `yaml:"objective"`
	MaxSplits      int       `yaml:"max_splits"`
	VenueAnalysis  bool      `yaml:"venue_analysis"`
	DarkPoolAccess bool      `yaml:"dark_pool_access"`

	// Resolution is the DP discretization step count: quantity is split into
	// this many units when searching for the minimum-cost allocation. Higher
	// values tighten optimality at quadratic CPU cost.
	Resolution int `yaml:"resolution"`

	DecisionTTL time.Duration `yaml:"decision_ttl"`

	// Eligibility thresholds.
	MinDepthRatio     float64 `yaml:"min_depth_ratio"`     // reject below this fraction of quantity
	MinFillRate       float64 `yaml:"min_fill_rate"`       // venue filter
	MinReliability    float64 `yaml:"min_reliability"`     // venue filter
	CriticalLatencyMs float64 `yaml:"critical_latency_ms"` // extra filter for critical urgency

	// Candidate tuning.
	SingleVenueFillRatio  float64 `yaml:"single_venue_fill_ratio"`  // min own-depth coverage
	EconomicalFeeMultiple float64 `yaml:"economical_fee_multiple"`  // skip allocations below N x taker fee
	OverDepthPenalty      float64 `yaml:"over_depth_penalty"`       // cost penalty beyond quoted depth
	BackupFailureRate     float64 `yaml:"backup_failure_rate"`      // flag routes above this failure rate
	TimeSliceCount        int     `yaml:"time_slice_count"`         // slices for the time-weighted fallback
}

// DefaultConfig returns the documented routing defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeSmart,
		Objective:             ObjectiveBalanced,
		MaxSplits:             4,
		VenueAnalysis:         true,
		Resolution:            100,
		DecisionTTL:           5 * time.Second,
		MinDepthRatio:         0.8,
		MinFillRate:           0.5,
		MinReliability:        0.5,
		CriticalLatencyMs:     100,
		SingleVenueFillRatio:  0.95,
		EconomicalFeeMultiple: 10,
		OverDepthPenalty:      0.10,
		BackupFailureRate:     0.05,
		TimeSliceCount:        10,
	}
}

// Validate rejects unknown enum values and nonsensical tunings at
// construction.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSingle, ModeSmart, ModeHybrid:
	default:
		return fmt.Errorf("unknown routing mode %q", c.Mode)
	}
	switch c.Objective {
	case ObjectiveCost, ObjectiveSpeed, ObjectiveSize, ObjectiveBalanced:
	default:
		return fmt.Errorf("unknown objective %q", c.Objective)
	}
	if c.MaxSplits < 1 {
		return fmt.Errorf("max_splits must be at least 1, got %d", c.MaxSplits)
	}
	if c.Resolution < 1 {
		return fmt.Errorf("resolution must be at least 1, got %d", c.Resolution)
	}
	if c.MinDepthRatio <= 0 || c.MinDepthRatio > 1 {
		return fmt.Errorf("min_depth_ratio must be in (0,1], got %g", c.MinDepthRatio)
	}
	if c.TimeSliceCount < 1 {
		return fmt.Errorf("time_slice_count must be at least 1, got %d", c.TimeSliceCount)
	}
	return nil
}
