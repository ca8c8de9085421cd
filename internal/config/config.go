// Package config loads the closed application configuration. Unrecognized
// keys fail at load time rather than being silently ignored.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

// VenueConfig declares one venue: its adapter endpoints, fees, and symbols.
type VenueConfig struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	FeedURL      string             `yaml:"feed_url"`
	Fees         venue.FeeSchedule  `yaml:"fees"`
	Capabilities venue.Capabilities `yaml:"capabilities"`
	Symbols      []string           `yaml:"symbols"`
}

// RedisConfig enables the shared Redis decision cache when Addr is set.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// FeedConfig tunes the streaming consumers shared across venues.
type FeedConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`
	SilenceWindow  time.Duration `yaml:"silence_window"`
	DecayFactor    float64       `yaml:"decay_factor"`
	ReconnectRPS   float64       `yaml:"reconnect_rps"`
	ReconnectBurst int           `yaml:"reconnect_burst"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel   string `yaml:"log_level"`
	HTTPAddr   string `yaml:"http_addr"`
	JournalDSN string `yaml:"journal_dsn"`

	Redis     RedisConfig        `yaml:"redis"`
	Feed      FeedConfig         `yaml:"feed"`
	Liquidity liquidity.Config   `yaml:"liquidity"`
	Router    router.Config      `yaml:"router"`
	Breaker   venue.BreakerConfig `yaml:"breaker"`
	Venues    []VenueConfig      `yaml:"venues"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTPAddr: ":8080",
		Feed: FeedConfig{
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			MaxAttempts:    20,
			SilenceWindow:  10 * time.Second,
			DecayFactor:    0.9,
			ReconnectRPS:   1,
			ReconnectBurst: 3,
		},
		Liquidity: liquidity.DefaultConfig(),
		Router:    router.DefaultConfig(),
		Breaker:   venue.DefaultBreakerConfig(),
	}
}

// Load reads and validates the configuration file.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the defaults, rejecting unknown fields.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate applies cross-field checks after decoding.
func (c *Config) Validate() error {
	if err := c.Router.Validate(); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.ID == "" {
			return fmt.Errorf("venue %d: id is required", i)
		}
		if seen[v.ID] {
			return fmt.Errorf("venue %q declared twice", v.ID)
		}
		seen[v.ID] = true
		if v.Fees.TakerRate < 0 || v.Fees.MakerRate < 0 {
			return fmt.Errorf("venue %q: negative fee rate", v.ID)
		}
	}
	return nil
}
