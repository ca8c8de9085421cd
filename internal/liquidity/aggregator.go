// Package liquidity maintains per-venue order books from streaming feeds and
// merges them on demand into a single aggregated snapshot per symbol.
package liquidity

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/liquidroute/liquidroute/internal/market"
)

// Config controls merge behavior and caching.
type Config struct {
	SnapshotTTL    time.Duration `yaml:"snapshot_ttl"`     // serve cached merges younger than this
	MaxBookAge     time.Duration `yaml:"max_book_age"`     // venue books older than this are excluded
	MaxLevels      int           `yaml:"max_levels"`       // per-side cap on merged levels
	ImbalanceDepth int           `yaml:"imbalance_depth"`  // levels per side for flow imbalance
	TapeCapacity   int           `yaml:"tape_capacity"`    // trades retained per venue-symbol
}

// DefaultConfig returns the aggregation defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotTTL:    time.Second,
		MaxBookAge:     10 * time.Second,
		MaxLevels:      100,
		ImbalanceDepth: 10,
		TapeCapacity:   1000,
	}
}

// bookSlot holds the latest snapshot for one venue-symbol pair. Writers swap
// whole immutable snapshots; readers load without locking.
type bookSlot struct {
	venue  string
	symbol string
	book   atomic.Pointer[OrderBookSnapshot]
}

// Aggregator merges per-venue order books into liquidity snapshots. Each
// venue feed writes only its own slots; merging is a read-only pass over the
// latest per-venue state.
type Aggregator struct {
	cfg Config
	now func() time.Time

	mu    sync.RWMutex
	slots map[string][]*bookSlot // symbol -> registered venue slots
	tapes map[string]*tradeTape  // venue|symbol -> rolling trade tape

	cacheMu sync.Mutex
	cached  map[string]*Snapshot // symbol -> last merged snapshot
}

// NewAggregator creates an aggregator with the given configuration. Zero
// config fields fall back to defaults.
func NewAggregator(cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = def.SnapshotTTL
	}
	if cfg.MaxBookAge <= 0 {
		cfg.MaxBookAge = def.MaxBookAge
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = def.MaxLevels
	}
	if cfg.ImbalanceDepth <= 0 {
		cfg.ImbalanceDepth = def.ImbalanceDepth
	}
	if cfg.TapeCapacity <= 0 {
		cfg.TapeCapacity = def.TapeCapacity
	}
	return &Aggregator{
		cfg:    cfg,
		now:    time.Now,
		slots:  make(map[string][]*bookSlot),
		tapes:  make(map[string]*tradeTape),
		cached: make(map[string]*Snapshot),
	}
}

// ApplyBook installs a venue's latest order book. Invalid books are logged
// and dropped; they never invalidate the previously installed snapshot.
func (a *Aggregator) ApplyBook(book *OrderBookSnapshot) {
	if err := book.Validate(); err != nil {
		log.Warn().Str("venue", book.Venue).Str("symbol", book.Symbol).
			Err(err).Msg("Dropping malformed order book")
		return
	}
	if book.Timestamp.IsZero() {
		book.Timestamp = a.now()
	}
	slot := a.slot(book.Venue, book.Symbol)
	prev := slot.book.Load()
	if prev != nil && book.Sequence > 0 && book.Sequence <= prev.Sequence {
		// Out-of-order replay from a reconnect; keep the newer book.
		return
	}
	slot.book.Store(book)
}

// ApplyTrade appends a trade to the venue's rolling tape.
func (a *Aggregator) ApplyTrade(trade market.Trade) {
	if trade.Price <= 0 || trade.Quantity <= 0 {
		log.Warn().Str("venue", trade.Venue).Str("symbol", trade.Symbol).
			Msg("Dropping malformed trade")
		return
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = a.now()
	}
	a.tape(trade.Venue, trade.Symbol).append(trade)
}

// BookAges reports the age of each venue's current book for a symbol.
// Venues that registered but never delivered a book are omitted.
func (a *Aggregator) BookAges(symbol string) map[string]time.Duration {
	a.mu.RLock()
	slots := a.slots[symbol]
	a.mu.RUnlock()

	ages := make(map[string]time.Duration, len(slots))
	now := a.now()
	for _, slot := range slots {
		if book := slot.book.Load(); book != nil {
			ages[slot.venue] = now.Sub(book.Timestamp)
		}
	}
	return ages
}

// GetAggregatedLiquidity returns the merged liquidity snapshot for a symbol,
// serving a cached merge while it is younger than the snapshot TTL. A venue
// outage degrades the available depth but never fails the merge.
func (a *Aggregator) GetAggregatedLiquidity(symbol string) (*Snapshot, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	a.cacheMu.Lock()
	if snap, ok := a.cached[symbol]; ok && a.now().Sub(snap.Timestamp) < a.cfg.SnapshotTTL {
		a.cacheMu.Unlock()
		return snap, nil
	}
	a.cacheMu.Unlock()

	snap := a.merge(symbol)

	a.cacheMu.Lock()
	a.cached[symbol] = snap
	a.cacheMu.Unlock()
	return snap, nil
}

// merge builds a fresh snapshot from every live venue book.
func (a *Aggregator) merge(symbol string) *Snapshot {
	a.mu.RLock()
	slots := a.slots[symbol]
	a.mu.RUnlock()

	now := a.now()
	snap := &Snapshot{
		Symbol:     symbol,
		Timestamp:  now,
		VenueBooks: make(map[string]*OrderBookSnapshot),
	}

	bidLevels := make(map[float64]*AggregatedLevel)
	askLevels := make(map[float64]*AggregatedLevel)

	for _, slot := range slots {
		book := slot.book.Load()
		if book == nil {
			continue
		}
		if now.Sub(book.Timestamp) > a.cfg.MaxBookAge {
			snap.VenuesSkipped = append(snap.VenuesSkipped, slot.venue)
			continue
		}
		snap.VenueBooks[slot.venue] = book
		snap.VenuesMerged++

		for _, lvl := range book.Bids {
			mergeLevel(bidLevels, lvl, slot.venue)
		}
		for _, lvl := range book.Asks {
			mergeLevel(askLevels, lvl, slot.venue)
		}

		if top, ok := book.BestBid(); ok && top.Price > snap.BestBid.Price {
			snap.BestBid = BestQuote{Venue: slot.venue, Price: top.Price, Quantity: top.Quantity}
		}
		if top, ok := book.BestAsk(); ok && (snap.BestAsk.Price == 0 || top.Price < snap.BestAsk.Price) {
			snap.BestAsk = BestQuote{Venue: slot.venue, Price: top.Price, Quantity: top.Quantity}
		}
	}
	sort.Strings(snap.VenuesSkipped)

	snap.Depth.Bids = sortAndCap(bidLevels, true, a.cfg.MaxLevels)
	snap.Depth.Asks = sortAndCap(askLevels, false, a.cfg.MaxLevels)
	for _, lvl := range snap.Depth.Bids {
		snap.Depth.TotalBidVolume += lvl.Quantity
	}
	for _, lvl := range snap.Depth.Asks {
		snap.Depth.TotalAskVolume += lvl.Quantity
	}
	if total := snap.Depth.TotalBidVolume + snap.Depth.TotalAskVolume; total > 0 {
		snap.Depth.DepthImbalance = (snap.Depth.TotalBidVolume - snap.Depth.TotalAskVolume) / total
	}

	if snap.BestBid.Price > 0 && snap.BestAsk.Price > 0 {
		snap.Depth.MidPrice = (snap.BestBid.Price + snap.BestAsk.Price) / 2
		snap.Spread = snap.BestAsk.Price - snap.BestBid.Price
		snap.SpreadPercent = snap.Spread / snap.Depth.MidPrice * 100
		if qty := snap.BestBid.Quantity + snap.BestAsk.Quantity; qty > 0 {
			// Microprice: each side weighted by the opposing top-of-book size.
			snap.Depth.WeightedMid = (snap.BestBid.Price*snap.BestAsk.Quantity +
				snap.BestAsk.Price*snap.BestBid.Quantity) / qty
		}
	}

	snap.FlowImbalance = flowImbalance(snap.Depth.Bids, snap.Depth.Asks, a.cfg.ImbalanceDepth)
	return snap
}

// slot returns the registered slot for a venue-symbol pair, creating it on
// first use. Slots are append-only so readers can hold them without locks.
func (a *Aggregator) slot(venue, symbol string) *bookSlot {
	a.mu.RLock()
	for _, s := range a.slots[symbol] {
		if s.venue == venue {
			a.mu.RUnlock()
			return s
		}
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slots[symbol] {
		if s.venue == venue {
			return s
		}
	}
	s := &bookSlot{venue: venue, symbol: symbol}
	a.slots[symbol] = append(a.slots[symbol], s)
	return s
}

func (a *Aggregator) tape(venue, symbol string) *tradeTape {
	key := venue + "|" + symbol
	a.mu.RLock()
	t, ok := a.tapes[key]
	a.mu.RUnlock()
	if ok {
		return t
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.tapes[key]; ok {
		return t
	}
	t = newTradeTape(a.cfg.TapeCapacity)
	a.tapes[key] = t
	return t
}

func mergeLevel(levels map[float64]*AggregatedLevel, lvl PriceLevel, venue string) {
	agg, ok := levels[lvl.Price]
	if !ok {
		agg = &AggregatedLevel{Price: lvl.Price}
		levels[lvl.Price] = agg
	}
	agg.Quantity += lvl.Quantity
	agg.OrderCount += lvl.OrderCount
	agg.Venues = append(agg.Venues, venue)
}

func sortAndCap(levels map[float64]*AggregatedLevel, descending bool, max int) []AggregatedLevel {
	out := make([]AggregatedLevel, 0, len(levels))
	for _, lvl := range levels {
		sort.Strings(lvl.Venues)
		out = append(out, *lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// flowImbalance computes (bidVol-askVol)/(bidVol+askVol) over the top N
// levels of each side. Positive values mean buy pressure.
func flowImbalance(bids, asks []AggregatedLevel, depth int) float64 {
	bidVol, askVol := 0.0, 0.0
	for i, lvl := range bids {
		if i >= depth {
			break
		}
		bidVol += lvl.Quantity
	}
	for i, lvl := range asks {
		if i >= depth {
			break
		}
		askVol += lvl.Quantity
	}
	if bidVol+askVol == 0 {
		return 0
	}
	return (bidVol - askVol) / (bidVol + askVol)
}
