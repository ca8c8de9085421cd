package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidroute/liquidroute/internal/router"
)

func TestParseOverridesDefaults(t *testing.T) {
	doc := `
log_level: debug
http_addr: ":9090"
router:
  mode: hybrid
  objective: cost
  max_splits: 3
  resolution: 200
  decision_ttl: 2s
  min_depth_ratio: 0.8
  min_fill_rate: 0.5
  min_reliability: 0.5
  critical_latency_ms: 100
  single_venue_fill_ratio: 0.95
  economical_fee_multiple: 10
  over_depth_penalty: 0.1
  backup_failure_rate: 0.05
  time_slice_count: 10
venues:
  - id: alpha
    name: Alpha
    feed_url: wss://alpha.example/stream
    fees:
      maker_rate: 0.0002
      taker_rate: 0.0007
    symbols: [BTC-USD, ETH-USD]
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, router.ModeHybrid, cfg.Router.Mode)
	assert.Equal(t, 200, cfg.Router.Resolution)
	assert.Equal(t, 2*time.Second, cfg.Router.DecisionTTL)

	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, "alpha", cfg.Venues[0].ID)
	assert.Equal(t, 0.0007, cfg.Venues[0].Fees.TakerRate)

	// Untouched sections keep their defaults.
	assert.Equal(t, time.Second, cfg.Liquidity.SnapshotTTL)
	assert.Equal(t, uint32(5), cfg.Breaker.ConsecutiveFailures)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, router.ModeSmart, cfg.Router.Mode)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("turbo_mode: true\n"))
	require.Error(t, err, "closed config: unrecognized keys fail at load")

	_, err = Parse(strings.NewReader("router:\n  slippage_model: fancy\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("duplicate venue ids", func(t *testing.T) {
		cfg := Default()
		cfg.Venues = []VenueConfig{{ID: "alpha"}, {ID: "alpha"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing venue id", func(t *testing.T) {
		cfg := Default()
		cfg.Venues = []VenueConfig{{Name: "anon"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative fees", func(t *testing.T) {
		cfg := Default()
		cfg.Venues = []VenueConfig{{ID: "alpha"}}
		cfg.Venues[0].Fees.TakerRate = -0.001
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad router mode", func(t *testing.T) {
		cfg := Default()
		cfg.Router.Mode = "warp"
		assert.Error(t, cfg.Validate())
	})
}
