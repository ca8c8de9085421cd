package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/liquidroute/liquidroute/internal/liquidity"
	"github.com/liquidroute/liquidroute/internal/market"
	"github.com/liquidroute/liquidroute/internal/router"
	"github.com/liquidroute/liquidroute/internal/venue"
)

// bookFile is the offline input for one-shot routing: venue definitions plus
// the per-venue books captured at a point in time.
type bookFile struct {
	Venues []venue.Venue                `json:"venues"`
	Books  []liquidity.OrderBookSnapshot `json:"books"`
}

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route one order against a captured book",
		Long: `Routes a single order against venue books captured in a JSON file and
prints the decision. Useful for replaying production books and for tuning
router settings offline.`,
		RunE: runRoute,
	}
	cmd.Flags().String("book", "", "Path to captured book JSON (required)")
	cmd.Flags().String("symbol", "", "Trading symbol, e.g. BTC-USD (required)")
	cmd.Flags().String("side", "buy", "Order side (buy|sell)")
	cmd.Flags().Float64("qty", 0, "Order quantity (required)")
	cmd.Flags().String("type", "market", "Order type (market|limit)")
	cmd.Flags().Float64("limit-price", 0, "Limit price for limit orders")
	cmd.Flags().String("urgency", "normal", "Urgency (low|normal|high|critical)")
	cmd.MarkFlagRequired("book")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func runRoute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	bookPath, _ := cmd.Flags().GetString("book")
	raw, err := os.ReadFile(bookPath)
	if err != nil {
		return fmt.Errorf("read book file: %w", err)
	}
	var input bookFile
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parse book file: %w", err)
	}
	if len(input.Books) == 0 {
		return fmt.Errorf("book file has no books")
	}

	registry := venue.NewRegistry()
	for _, v := range input.Venues {
		v.Operational = true
		v.TradingEnabled = true
		registry.Upsert(v)
	}

	agg := liquidity.NewAggregator(cfg.Liquidity)
	now := time.Now()
	for i := range input.Books {
		book := input.Books[i]
		if book.Timestamp.IsZero() {
			book.Timestamp = now
		}
		agg.ApplyBook(&book)
	}

	rtr, err := router.New(agg, venue.NewTracker(0.1), registry, cfg.Router)
	if err != nil {
		return err
	}

	symbol, _ := cmd.Flags().GetString("symbol")
	side, _ := cmd.Flags().GetString("side")
	qty, _ := cmd.Flags().GetFloat64("qty")
	orderType, _ := cmd.Flags().GetString("type")
	limitPrice, _ := cmd.Flags().GetFloat64("limit-price")
	urgency, _ := cmd.Flags().GetString("urgency")

	order := &router.Order{
		Symbol:     symbol,
		Side:       market.Side(side),
		Quantity:   qty,
		Type:       market.OrderType(orderType),
		LimitPrice: limitPrice,
		Urgency:    market.Urgency(urgency),
	}

	decision, err := rtr.RouteOrder(cmd.Context(), order)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(decision)
}
