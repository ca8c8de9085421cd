package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/liquidroute/liquidroute/internal/cache"
	"github.com/liquidroute/liquidroute/internal/feed"
	"github.com/liquidroute/liquidroute/internal/httpapi"
	"github.com/liquidroute/liquidroute/internal/journal"
	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/metrics"
	"github.com/liquidroute/liquidroute/internal/ratelimit"
	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the routing service",
		Long: `Connects to every configured venue feed, maintains the aggregated
liquidity view, and serves routing requests over HTTP.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := venue.NewRegistry()
	for _, vc := range cfg.Venues {
		registry.Upsert(venue.Venue{
			ID:             vc.ID,
			Name:           vc.Name,
			Fees:           vc.Fees,
			Capabilities:   vc.Capabilities,
			Symbols:        vc.Symbols,
			Operational:    true,
			TradingEnabled: true,
		})
	}

	tracker := venue.NewTracker(0.1)
	agg := liquidity.NewAggregator(cfg.Liquidity)
	promMetrics := metrics.New()

	routerOpts := []router.Option{router.WithObserver(promMetrics)}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, using in-memory decision cache")
		} else {
			routerOpts = append(routerOpts, router.WithDecisionCache(cache.NewRedisStore(client, cfg.Redis.KeyPrefix)))
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis decision cache enabled")
		}
	}

	var j *journal.Journal
	if cfg.JournalDSN != "" {
		j, err = journal.Open(ctx, cfg.JournalDSN)
		if err != nil {
			return err
		}
		defer j.Close()
		routerOpts = append(routerOpts, router.WithObserver(&journalObserver{journal: j}))
		log.Info().Msg("Decision journal enabled")
	}

	rtr, err := router.New(agg, tracker, registry, cfg.Router, routerOpts...)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(cfg.Feed.ReconnectRPS, cfg.Feed.ReconnectBurst)
	for _, vc := range cfg.Venues {
		if vc.FeedURL == "" {
			log.Warn().Str("venue", vc.ID).Msg("Venue has no feed URL, skipping consumer")
			continue
		}
		feedCfg := feed.DefaultConfig(vc.ID, vc.FeedURL)
		feedCfg.InitialBackoff = cfg.Feed.InitialBackoff
		feedCfg.MaxBackoff = cfg.Feed.MaxBackoff
		feedCfg.MaxAttempts = cfg.Feed.MaxAttempts
		feedCfg.SilenceWindow = cfg.Feed.SilenceWindow
		feedCfg.DecayFactor = cfg.Feed.DecayFactor

		sink := &meteredSink{venueID: vc.ID, agg: agg, metrics: promMetrics}
		consumer, err := feed.NewConsumer(feedCfg, &feed.WSDialer{}, sink, sink,
			feed.WithHealthSink(tracker),
			feed.WithReconnectLimiter(limiter),
			feed.WithDropHook(promMetrics.FeedDrop))
		if err != nil {
			return err
		}
		go consumer.Run(ctx)
	}

	srv := httpapi.New(cfg.HTTPAddr, rtr, promMetrics.Registry())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// meteredSink forwards feed updates into the aggregator and counts them.
type meteredSink struct {
	venueID string
	agg     *liquidity.Aggregator
	metrics *metrics.Metrics
}

func (s *meteredSink) ApplyBook(book *liquidity.OrderBookSnapshot) {
	s.metrics.FeedMessage(s.venueID, "orderbook")
	s.agg.ApplyBook(book)
}

func (s *meteredSink) ApplyTrade(trade market.Trade) {
	s.metrics.FeedMessage(s.venueID, "trade")
	s.agg.ApplyTrade(trade)
}

// journalObserver bridges router events into the Postgres journal.
type journalObserver struct {
	journal *journal.Journal
}

func (o *journalObserver) OrderRouted(_ *router.Order, decision *router.RoutingDecision) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o.journal.RecordDecision(ctx, decision)
}

func (o *journalObserver) MetricsUpdated(string, venue.Metrics) {}
