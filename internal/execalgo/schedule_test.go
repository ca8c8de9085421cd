package execalgo

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPOVSchedulerSizing(t *testing.T) {
	cfg := Config{
		Algorithm:   POV,
		TargetPOV:   0.10,
		MaxPOV:      0.25,
		MinSliceQty: 5,
		Interval:    time.Second,
	}
	s := &povScheduler{cfg: cfg}

	t.Run("normal market tracks the target", func(t *testing.T) {
		plan := s.next(1000, 1000)
		assert.InDelta(t, 100.0, plan.qty, 1e-9)
	})

	t.Run("thin market hits the hard ceiling", func(t *testing.T) {
		// Target would be 1, floored to 5, but the 25% ceiling of a
		// 10-unit print wins.
		plan := s.next(1000, 10)
		assert.InDelta(t, 2.5, plan.qty, 1e-9)
	})

	t.Run("floor applies when the ceiling allows", func(t *testing.T) {
		plan := s.next(1000, 40)
		assert.InDelta(t, 5.0, plan.qty, 1e-9, "pov 4 floored to the minimum slice")
	})

	t.Run("never exceeds remaining", func(t *testing.T) {
		plan := s.next(3, 1000)
		assert.InDelta(t, 3.0, plan.qty, 1e-9)
	})
}

func TestVWAPSchedulerFollowsCurve(t *testing.T) {
	cfg := Config{
		Algorithm:   VWAP,
		Duration:    40 * time.Second,
		Slices:      4,
		VolumeCurve: []float64{4, 1, 1, 2},
	}
	require.NoError(t, cfg.Validate())
	s := newScheduler(cfg, 80, rand.New(rand.NewSource(1))).(*vwapScheduler)

	expected := []float64{40, 10, 10, 20}
	remaining := 80.0
	for i, want := range expected {
		plan := s.next(remaining, 0)
		assert.InDelta(t, want, plan.qty, 1e-9, "slice %d", i)
		assert.Equal(t, 10*time.Second, plan.wait)
		remaining -= plan.qty
	}
	assert.InDelta(t, 0, remaining, 1e-9)

	assert.InDelta(t, 0.5, s.targetFraction(1), 1e-9)
	assert.InDelta(t, 0.625, s.targetFraction(2), 1e-9)
	assert.InDelta(t, 1.0, s.targetFraction(4), 1e-9)
}

func TestNormalizeCurve(t *testing.T) {
	t.Run("explicit weights normalize to one", func(t *testing.T) {
		out := normalizeCurve([]float64{2, 2, 4}, 3)
		assert.InDelta(t, 0.25, out[0], 1e-9)
		assert.InDelta(t, 0.25, out[1], 1e-9)
		assert.InDelta(t, 0.5, out[2], 1e-9)
	})

	t.Run("default u-shape is symmetric and heavy at the edges", func(t *testing.T) {
		out := normalizeCurve(nil, 5)
		require.Len(t, out, 5)
		sum := 0.0
		for _, w := range out {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.InDelta(t, out[0], out[4], 1e-9)
		assert.Greater(t, out[0], out[2], "open and close outweigh midday")
	})
}

func TestIcebergRevealVarianceBounds(t *testing.T) {
	cfg := Config{Algorithm: Iceberg, VisibleQty: 10, SizeVariancePct: 0.3, Interval: time.Second}
	s := &icebergScheduler{cfg: cfg, rng: rand.New(rand.NewSource(99))}

	distinct := map[float64]bool{}
	for i := 0; i < 200; i++ {
		plan := s.next(1e9, 0)
		assert.GreaterOrEqual(t, plan.qty, 7.0-1e-9)
		assert.LessOrEqual(t, plan.qty, 13.0+1e-9)
		distinct[math.Round(plan.qty*100)] = true
	}
	assert.Greater(t, len(distinct), 50, "reveals vary rather than repeating one size")
}

func TestMonitorShortfallSign(t *testing.T) {
	t.Run("buy paying up is adverse", func(t *testing.T) {
		m := newMonitor(Config{}, true)
		m.recordSlice(10, 10, 100, 1, 0)
		m.recordSlice(10, 10, 102, 1, 0)
		got := m.snapshot(20, 0)
		assert.InDelta(t, 100.0, got.ShortfallBps, 1, "avg 101 vs arrival 100 is ~100bps")
	})

	t.Run("sell receiving less is adverse", func(t *testing.T) {
		m := newMonitor(Config{}, false)
		m.recordSlice(10, 10, 100, 1, 0)
		m.recordSlice(10, 10, 98, 1, 0)
		got := m.snapshot(20, 0)
		assert.InDelta(t, 100.0, got.ShortfallBps, 1)
	})
}

func TestMonitorParticipationAndDeviation(t *testing.T) {
	m := newMonitor(Config{}, true)
	m.recordSlice(10, 10, 100, 0, 0)
	m.setScheduleTarget(0.25)
	got := m.snapshot(100, 500)

	assert.InDelta(t, 0.02, got.Participation, 1e-9, "10 filled of 500 traded")
	assert.InDelta(t, -60.0, got.ScheduleDevPct, 1e-9, "10% realized vs 25% target")
}

func TestMonitorDetectionRisk(t *testing.T) {
	uniform := newMonitor(Config{}, true)
	varied := newMonitor(Config{}, true)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 30; i++ {
		uniform.recordSlice(10, 10, 100, 0, 0)
		varied.recordSlice(randomize(10, 0.3, rng), 10, 100, 0, 0)
	}

	u := uniform.snapshot(1000, 0).DetectionRisk
	v := varied.snapshot(1000, 0).DetectionRisk
	assert.Greater(t, u, 0.5, "identical slice sizes are fingerprintable")
	assert.Less(t, v, u)
}

func TestMonitorAlerts(t *testing.T) {
	cfg := Config{
		MaxShortfallBps:         50,
		MaxScheduleDeviationPct: 20,
		MaxDetectionRisk:        0.8,
	}
	m := newMonitor(cfg, true)
	m.recordSlice(10, 10, 100, 0, 0)
	m.recordSlice(10, 10, 110, 0, 0) // ~476bps shortfall
	m.setScheduleTarget(0.9)

	alerts := m.alerts(m.snapshot(100, 0))
	metricsSeen := map[string]bool{}
	for _, a := range alerts {
		metricsSeen[a.Metric] = true
	}
	assert.True(t, metricsSeen["shortfall_bps"])
	assert.True(t, metricsSeen["schedule_deviation_pct"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "sniper" }, true},
		{"twap without duration", func(c *Config) { c.Duration = 0 }, true},
		{"twap without slices", func(c *Config) { c.Slices = 0 }, true},
		{"vwap curve length mismatch", func(c *Config) {
			c.Algorithm = VWAP
			c.VolumeCurve = []float64{1, 2}
			c.Slices = 3
		}, true},
		{"negative curve weight", func(c *Config) {
			c.Algorithm = VWAP
			c.Slices = 2
			c.VolumeCurve = []float64{1, -1}
		}, true},
		{"pov target out of range", func(c *Config) {
			c.Algorithm = POV
			c.TargetPOV = 1.5
		}, true},
		{"pov ceiling below target", func(c *Config) {
			c.Algorithm = POV
			c.TargetPOV = 0.3
			c.MaxPOV = 0.2
		}, true},
		{"iceberg without visible qty", func(c *Config) { c.Algorithm = Iceberg }, true},
		{"variance out of range", func(c *Config) { c.SizeVariancePct = 1.0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
