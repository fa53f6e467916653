package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the current holding in one outcome token. Shares are never
// negative; a fully sold position is deleted rather than kept at zero.
// TotalCost always equals AveragePrice * Shares.
type Position struct {
	TokenID       string
	Outcome       string
	Shares        decimal.Decimal
	AveragePrice  decimal.Decimal
	TotalCost     decimal.Decimal
	FirstPurchase time.Time
	LastPurchase  time.Time
}

// PortfolioSnapshot is an immutable view of the ledger for rendering and
// tests. Slices and values are copies; mutating them has no effect on the
// ledger.
type PortfolioSnapshot struct {
	Positions     []Position
	TotalCost     decimal.Decimal
	CurrentValue  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	Timestamp     time.Time
}
