package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRef is an optional last-traded price reference.
type PriceRef struct {
	Price decimal.Decimal
	Time  time.Time
	Valid bool
}

// MarketUpdate is the immutable state snapshot the feed publishes after every
// applied frame and on connectivity transitions. Consumers (engine, renderer)
// must treat it as read-only; Book and Trades are deep copies.
type MarketUpdate struct {
	TokenID   string
	Book      OrderBook
	Trades    []Trade // newest first, bounded
	LastPrice PriceRef
	Connected bool
	Timestamp time.Time
}

// Snapshot is the combined view handed to the renderer once simulation is
// active: the market state plus the simulated trades and ledger state.
type Snapshot struct {
	Market    MarketUpdate
	SimTrades []SimulatedTrade // newest first, bounded
	Portfolio PortfolioSnapshot
}
