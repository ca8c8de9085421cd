// Package feed consumes per-venue streaming market data and normalizes it
// into the liquidity aggregator. Each venue gets its own consumer goroutine;
// feed faults are contained here and never raised to routing callers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/ratelimit"
)

// Conn is the read side of one venue stream connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a venue stream connection. The production implementation
// wraps gorilla/websocket; tests inject scripted connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct {
	// HandshakeTimeout bounds the dial. Zero means the gorilla default.
	HandshakeTimeout time.Duration
}

// DialContext opens a websocket connection to the venue stream URL.
func (d *WSDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// BookSink receives normalized order books.
type BookSink interface {
	ApplyBook(book *liquidity.OrderBookSnapshot)
}

// TradeSink receives normalized trades.
type TradeSink interface {
	ApplyTrade(trade market.Trade)
}

// HealthSink is notified when a venue feed goes silent past the watchdog
// window, so venue reliability can decay instead of the venue being dropped.
type HealthSink interface {
	DecayReliability(venueID string, factor float64)
}

// Config tunes one venue consumer.
type Config struct {
	VenueID string `yaml:"venue_id"`
	URL     string `yaml:"url"`

	// Reconnect backoff: initial delay doubles up to the max. After
	// MaxAttempts consecutive failed dials the consumer gives up; zero
	// means retry forever.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`

	// SilenceWindow is the watchdog threshold: a feed quiet for longer
	// decays the venue's reliability each watchdog tick.
	SilenceWindow time.Duration `yaml:"silence_window"`
	DecayFactor   float64       `yaml:"decay_factor"`
}

// DefaultConfig returns the consumer defaults for a venue and URL.
func DefaultConfig(venueID, url string) Config {
	return Config{
		VenueID:        venueID,
		URL:            url,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    20,
		SilenceWindow:  10 * time.Second,
		DecayFactor:    0.9,
	}
}

// envelope is the wire shape of every feed message.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Consumer reads one venue's stream, normalizes messages, and feeds the
// sinks. It owns only its venue's books in the aggregator.
type Consumer struct {
	cfg     Config
	dialer  Dialer
	books   BookSink
	trades  TradeSink
	health  HealthSink
	limiter *ratelimit.Limiter
	onDrop  func(venueID string)

	now func() time.Time

	mu         sync.Mutex
	lastMsg    time.Time
	lastTicker map[string]market.Ticker
	reconnects int
	dropped    int64
}

// Option customizes a consumer.
type Option func(*Consumer)

// WithHealthSink registers the reliability-decay target for the watchdog.
func WithHealthSink(sink HealthSink) Option {
	return func(c *Consumer) { c.health = sink }
}

// WithReconnectLimiter paces reconnect attempts across all consumers.
func WithReconnectLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Consumer) { c.limiter = limiter }
}

// WithDropHook registers a callback invoked once per dropped message, e.g.
// a metrics counter.
func WithDropHook(hook func(venueID string)) Option {
	return func(c *Consumer) { c.onDrop = hook }
}

// WithNow replaces the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

// NewConsumer creates a consumer for one venue stream.
func NewConsumer(cfg Config, dialer Dialer, books BookSink, trades TradeSink, opts ...Option) (*Consumer, error) {
	if cfg.VenueID == "" || cfg.URL == "" {
		return nil, fmt.Errorf("feed consumer requires venue id and url")
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = 10 * time.Second
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.9
	}
	if dialer == nil || books == nil || trades == nil {
		return nil, fmt.Errorf("feed consumer requires dialer and sinks")
	}
	c := &Consumer{
		cfg:        cfg,
		dialer:     dialer,
		books:      books,
		trades:     trades,
		now:        time.Now,
		lastTicker: make(map[string]market.Ticker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run consumes the stream until ctx is cancelled, reconnecting with
// exponential backoff on every connection fault.
func (c *Consumer) Run(ctx context.Context) {
	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go c.watchdog(watchdogCtx)

	backoff := c.cfg.InitialBackoff
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, c.cfg.VenueID); err != nil {
				return
			}
		}
		conn, err := c.dialer.DialContext(ctx, c.cfg.URL)
		if err != nil {
			attempts++
			if c.cfg.MaxAttempts > 0 && attempts >= c.cfg.MaxAttempts {
				log.Error().Err(err).Str("venue", c.cfg.VenueID).
					Int("attempts", attempts).Msg("Feed reconnect attempts exhausted")
				return
			}
			log.Warn().Err(err).Str("venue", c.cfg.VenueID).
				Dur("backoff", backoff).Msg("Feed dial failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
			continue
		}

		log.Info().Str("venue", c.cfg.VenueID).Msg("Feed connected")
		backoff = c.cfg.InitialBackoff
		attempts = 0
		c.readLoop(ctx, conn)
		conn.Close()

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
	}
}

// readLoop pumps messages from one connection until it fails or ctx ends.
func (c *Consumer) readLoop(ctx context.Context, conn Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("venue", c.cfg.VenueID).Msg("Feed read failed")
			return
		}
		c.handle(payload)
	}
}

// handle normalizes one raw message. Malformed and unknown messages are
// logged and dropped, never raised.
func (c *Consumer) handle(payload []byte) {
	c.mu.Lock()
	c.lastMsg = c.now()
	c.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.drop("undecodable message", err)
		return
	}
	switch env.Type {
	case "orderbook":
		var book liquidity.OrderBookSnapshot
		if err := json.Unmarshal(env.Data, &book); err != nil {
			c.drop("bad orderbook payload", err)
			return
		}
		if book.Venue == "" {
			book.Venue = c.cfg.VenueID
		}
		if book.Timestamp.IsZero() {
			book.Timestamp = c.now()
		}
		c.books.ApplyBook(&book)
	case "trade":
		var trade market.Trade
		if err := json.Unmarshal(env.Data, &trade); err != nil {
			c.drop("bad trade payload", err)
			return
		}
		if trade.Venue == "" {
			trade.Venue = c.cfg.VenueID
		}
		if trade.Timestamp.IsZero() {
			trade.Timestamp = c.now()
		}
		c.trades.ApplyTrade(trade)
	case "ticker":
		var ticker market.Ticker
		if err := json.Unmarshal(env.Data, &ticker); err != nil {
			c.drop("bad ticker payload", err)
			return
		}
		c.mu.Lock()
		c.lastTicker[ticker.Symbol] = ticker
		c.mu.Unlock()
	default:
		c.drop(fmt.Sprintf("unknown message type %q", env.Type), nil)
	}
}

func (c *Consumer) drop(reason string, err error) {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
	if c.onDrop != nil {
		c.onDrop(c.cfg.VenueID)
	}
	log.Warn().Err(err).Str("venue", c.cfg.VenueID).Msg("Dropping feed message: " + reason)
}

// watchdog decays venue reliability while the feed stays silent past the
// window. Stale books age out of merging separately in the aggregator.
func (c *Consumer) watchdog(ctx context.Context) {
	if c.health == nil {
		return
	}
	ticker := time.NewTicker(c.cfg.SilenceWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			last := c.lastMsg
			c.mu.Unlock()
			if last.IsZero() || c.now().Sub(last) <= c.cfg.SilenceWindow {
				continue
			}
			log.Warn().Str("venue", c.cfg.VenueID).
				Time("last_message", last).Msg("Feed silent, decaying venue reliability")
			c.health.DecayReliability(c.cfg.VenueID, c.cfg.DecayFactor)
		}
	}
}

// LastTicker returns the latest ticker seen for the symbol, if any.
func (c *Consumer) LastTicker(symbol string) (market.Ticker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastTicker[symbol]
	return t, ok
}

// Stats reports consumer counters for diagnostics.
func (c *Consumer) Stats() (reconnects int, dropped int64, lastMsg time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects, c.dropped, c.lastMsg
}

func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
