package liquidity

import (
	"sort"
	"sync"
	"time"

	"github.com/liquidroute/liquidroute/internal/market"
)

// VenueMarketData is the rolling 24h view of one venue's trading in a symbol.
type VenueMarketData struct {
	Venue      string  `json:"venue"`
	Volume24h  float64 `json:"volume_24h"`
	High24h    float64 `json:"high_24h"`
	Low24h     float64 `json:"low_24h"`
	VWAP24h    float64 `json:"vwap_24h"`
	TradeCount int     `json:"trade_count"`
}

// MarketData combines per-venue rolling statistics with their aggregate.
type MarketData struct {
	Symbol    string                     `json:"symbol"`
	Timestamp time.Time                  `json:"timestamp"`
	Venues    map[string]VenueMarketData `json:"venues"`
	Aggregate VenueMarketData            `json:"aggregate"`
}

// tradeTape is a bounded ring buffer of recent trades for one venue-symbol
// pair. Oldest entries are overwritten once the capacity is reached.
type tradeTape struct {
	mu     sync.Mutex
	trades []market.Trade
	next   int
	full   bool
}

func newTradeTape(capacity int) *tradeTape {
	return &tradeTape{trades: make([]market.Trade, capacity)}
}

func (t *tradeTape) append(trade market.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades[t.next] = trade
	t.next++
	if t.next == len(t.trades) {
		t.next = 0
		t.full = true
	}
}

// since returns all retained trades at or after the cutoff.
func (t *tradeTape) since(cutoff time.Time) []market.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.full {
		n = len(t.trades)
	}
	out := make([]market.Trade, 0, n)
	for i := 0; i < n; i++ {
		if !t.trades[i].Timestamp.Before(cutoff) {
			out = append(out, t.trades[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// GetMarketData computes rolling 24h volume/high/low/VWAP/trade-count per
// venue and in aggregate from the capped trade tapes.
func (a *Aggregator) GetMarketData(symbol string) *MarketData {
	cutoff := a.now().Add(-24 * time.Hour)
	md := &MarketData{
		Symbol:    symbol,
		Timestamp: a.now(),
		Venues:    make(map[string]VenueMarketData),
		Aggregate: VenueMarketData{Venue: "aggregate"},
	}

	a.mu.RLock()
	tapes := make(map[string]*tradeTape)
	suffix := "|" + symbol
	for key, tape := range a.tapes {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			tapes[key[:len(key)-len(suffix)]] = tape
		}
	}
	a.mu.RUnlock()

	var aggNotional float64
	for venue, tape := range tapes {
		trades := tape.since(cutoff)
		if len(trades) == 0 {
			continue
		}
		v := VenueMarketData{Venue: venue, Low24h: trades[0].Price}
		notional := 0.0
		for _, tr := range trades {
			v.Volume24h += tr.Quantity
			notional += tr.Price * tr.Quantity
			v.TradeCount++
			if tr.Price > v.High24h {
				v.High24h = tr.Price
			}
			if tr.Price < v.Low24h {
				v.Low24h = tr.Price
			}
		}
		if v.Volume24h > 0 {
			v.VWAP24h = notional / v.Volume24h
		}
		md.Venues[venue] = v

		md.Aggregate.Volume24h += v.Volume24h
		md.Aggregate.TradeCount += v.TradeCount
		aggNotional += notional
		if v.High24h > md.Aggregate.High24h {
			md.Aggregate.High24h = v.High24h
		}
		if md.Aggregate.Low24h == 0 || v.Low24h < md.Aggregate.Low24h {
			md.Aggregate.Low24h = v.Low24h
		}
	}
	if md.Aggregate.Volume24h > 0 {
		md.Aggregate.VWAP24h = aggNotional / md.Aggregate.Volume24h
	}
	return md
}

// VolumeSince sums aggregate traded quantity for a symbol after the cutoff.
// The POV execution algorithm uses this to observe real-time market volume.
func (a *Aggregator) VolumeSince(symbol string, cutoff time.Time) float64 {
	a.mu.RLock()
	tapes := make([]*tradeTape, 0)
	suffix := "|" + symbol
	for key, tape := range a.tapes {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			tapes = append(tapes, tape)
		}
	}
	a.mu.RUnlock()

	total := 0.0
	for _, tape := range tapes {
		for _, tr := range tape.since(cutoff) {
			total += tr.Quantity
		}
	}
	return total
}
