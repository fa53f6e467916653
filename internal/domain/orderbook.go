package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+size entry on one side of the book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook holds the reconstructed book for one outcome token. Bids are
// sorted descending by price, asks ascending, and no side ever holds two
// levels at the same price or a level with zero size.
//
// OrderBook is not safe for concurrent use; the feed goroutine is its single
// writer and hands out deep copies via Clone.
type OrderBook struct {
	Bids       []PriceLevel
	Asks       []PriceLevel
	LastUpdate time.Time
}

// ApplySnapshot replaces the whole book with the given levels, restoring the
// per-side sort order. Zero-size levels are discarded.
func (b *OrderBook) ApplySnapshot(bids, asks []PriceLevel, ts time.Time) {
	b.Bids = normalizeLevels(bids, true)
	b.Asks = normalizeLevels(asks, false)
	b.LastUpdate = ts
}

// ApplyDelta applies one incremental level update. A zero size removes the
// level at that exact price; a positive size replaces an existing level or
// inserts a new one in sorted position.
func (b *OrderBook) ApplyDelta(side Side, price, size decimal.Decimal, ts time.Time) {
	levels := b.Bids
	desc := true
	if side == SideSell {
		levels = b.Asks
		desc = false
	}

	idx := -1
	for i := range levels {
		if levels[i].Price.Equal(price) {
			idx = i
			break
		}
	}

	switch {
	case idx >= 0 && size.IsZero():
		levels = append(levels[:idx], levels[idx+1:]...)
	case idx >= 0:
		levels[idx].Size = size
	case size.IsPositive():
		levels = insertLevel(levels, PriceLevel{Price: price, Size: size}, desc)
	default:
		return
	}

	if side == SideSell {
		b.Asks = levels
	} else {
		b.Bids = levels
	}
	b.LastUpdate = ts
}

// BestBid returns the highest resting bid.
func (b *OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest resting ask.
func (b *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Spread returns best ask minus best bid, false when either side is empty.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Decimal{}, false
	}
	return ask.Price.Sub(bid.Price), true
}

// MidPrice returns the midpoint of best bid and best ask, false when either
// side is empty.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Decimal{}, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// TwoSided reports whether both sides of the book hold at least one level.
func (b *OrderBook) TwoSided() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0
}

// Clone returns a deep copy safe to publish across goroutines.
func (b *OrderBook) Clone() OrderBook {
	out := OrderBook{LastUpdate: b.LastUpdate}
	if len(b.Bids) > 0 {
		out.Bids = make([]PriceLevel, len(b.Bids))
		copy(out.Bids, b.Bids)
	}
	if len(b.Asks) > 0 {
		out.Asks = make([]PriceLevel, len(b.Asks))
		copy(out.Asks, b.Asks)
	}
	return out
}

// normalizeLevels drops zero-size entries, deduplicates by price (last entry
// wins, matching delta semantics) and sorts the side.
func normalizeLevels(levels []PriceLevel, desc bool) []PriceLevel {
	byPrice := make(map[string]PriceLevel, len(levels))
	for _, lvl := range levels {
		if !lvl.Size.IsPositive() {
			continue
		}
		byPrice[lvl.Price.String()] = lvl
	}
	out := make([]PriceLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// insertLevel places lvl into an already sorted side, keeping the order.
func insertLevel(levels []PriceLevel, lvl PriceLevel, desc bool) []PriceLevel {
	pos := sort.Search(len(levels), func(i int) bool {
		if desc {
			return levels[i].Price.LessThan(lvl.Price)
		}
		return levels[i].Price.GreaterThan(lvl.Price)
	})
	levels = append(levels, PriceLevel{})
	copy(levels[pos+1:], levels[pos:])
	levels[pos] = lvl
	return levels
}
