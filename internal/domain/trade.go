package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the taker side of a trade or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is one observed market trade, immutable once created.
type Trade struct {
	Timestamp time.Time
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Notional  decimal.Decimal
}

// NewTrade builds a Trade with its notional precomputed.
func NewTrade(ts time.Time, side Side, price, size decimal.Decimal) Trade {
	return Trade{
		Timestamp: ts,
		Side:      side,
		Price:     price,
		Size:      size,
		Notional:  price.Mul(size),
	}
}

// SimulatedTrade is a fill produced by the simulation engine.
type SimulatedTrade struct {
	ID        string
	Timestamp time.Time
	TokenID   string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Notional  decimal.Decimal
	Strategy  string
}
