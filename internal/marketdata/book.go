// Package marketdata implements market-data subscription bookkeeping and
// book normalization (component C6): MarketDataRequest emission, snapshot
// replace-whole-book handling, and incremental per-entry refresh.
//
// The per-symbol book generalizes the teacher's two-sided YES/NO token
// book to a single generic side-keyed book, and its staleness derivation
// is kept the same shape, now over decimal.Decimal prices
// instead of float64-parsed strings.
package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fixengine/pkg/types"
)

// Book mirrors one symbol's top-of-book and last trade. MDEntryID indexes
// individual resting entries so incremental Change/Delete actions can
// target them without a full replace.
type Book struct {
	mu      sync.RWMutex
	symbol  string
	bids    map[string]types.PriceLevel // MDEntryID -> level
	asks    map[string]types.PriceLevel
	lastPx  decimal.Decimal
	lastSz  decimal.Decimal
	updated time.Time
}

// NewBook creates an empty book for symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   make(map[string]types.PriceLevel),
		asks:   make(map[string]types.PriceLevel),
	}
}

// ReplaceSnapshot discards the existing book and installs bids/asks
// wholesale, keyed by MDEntryID, per a MarketDataSnapshot message.
func (b *Book) ReplaceSnapshot(bids, asks map[string]types.PriceLevel, last *types.PriceLevel, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = bids
	b.asks = asks
	if last != nil {
		b.lastPx = last.Price
		b.lastSz = last.Size
	}
	b.updated = at
}

// ApplyEntry applies one incremental-refresh entry: action 0 adds or
// replaces an entry id, 1 changes an existing one's price/size, 2 deletes
// it. An unknown id on a Change is treated as an add, matching how most
// venues behave when a refresh arrives before the corresponding snapshot.
func (b *Book) ApplyEntry(side types.MDEntryType, action string, entryID string, level types.PriceLevel, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var target map[string]types.PriceLevel
	switch side {
	case types.MDBid:
		target = b.bids
	case types.MDOffer:
		target = b.asks
	case types.MDTrade:
		b.lastPx = level.Price
		b.lastSz = level.Size
		b.updated = at
		return
	default:
		return
	}

	switch action {
	case "2": // Delete
		delete(target, entryID)
	default: // "0" New, "1" Change
		target[entryID] = level
	}
	b.updated = at
}

// BestBidAsk returns the best bid and ask price levels, ok is false if
// either side is empty.
func (b *Book) BestBidAsk() (bid, ask types.PriceLevel, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 || len(b.asks) == 0 {
		return types.PriceLevel{}, types.PriceLevel{}, false
	}
	return bestOf(b.bids, true), bestOf(b.asks, false), true
}

func bestOf(levels map[string]types.PriceLevel, highest bool) types.PriceLevel {
	var best types.PriceLevel
	first := true
	for _, lvl := range levels {
		if first {
			best = lvl
			first = false
			continue
		}
		if highest && lvl.Price.GreaterThan(best.Price) {
			best = lvl
		}
		if !highest && lvl.Price.LessThan(best.Price) {
			best = lvl
		}
	}
	return best
}

// Normalized renders the book's current state as the caller-facing
// NormalizedUpdate, combining top of book with the last trade.
func (b *Book) Normalized() types.NormalizedUpdate {
	bid, ask, _ := b.BestBidAsk()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return types.NormalizedUpdate{
		Symbol:    b.symbol,
		BidPrice:  bid.Price,
		BidSize:   bid.Size,
		AskPrice:  ask.Price,
		AskSize:   ask.Size,
		LastPrice: b.lastPx,
		LastSize:  b.lastSz,
		Timestamp: b.updated,
	}
}

// IsStale reports whether the book hasn't been updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration, now time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updated.IsZero() {
		return true
	}
	return now.Sub(b.updated) > maxAge
}
