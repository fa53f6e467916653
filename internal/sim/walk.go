package sim

import (
	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
)

// walkBook computes the average execution price for a market order of the
// given size by consuming book levels: asks from cheapest up for a BUY, bids
// from highest down for a SELL. When the requested size exceeds the visible
// depth the remainder fills at the deepest visible price, so an oversized
// order degrades gracefully instead of erroring.
//
// The second return is false when the relevant side is empty.
func walkBook(book domain.OrderBook, side domain.Side, size decimal.Decimal) (decimal.Decimal, bool) {
	if !size.IsPositive() {
		return decimal.Zero, false
	}

	levels := book.Asks
	if side == domain.SideSell {
		levels = book.Bids
	}
	if len(levels) == 0 {
		return decimal.Decimal{}, false
	}

	remaining := size
	cost := decimal.Zero
	last := levels[0].Price
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		fill := decimal.Min(remaining, lvl.Size)
		cost = cost.Add(fill.Mul(lvl.Price))
		remaining = remaining.Sub(fill)
		last = lvl.Price
	}
	if remaining.IsPositive() {
		cost = cost.Add(remaining.Mul(last))
	}

	return cost.Div(size), true
}
