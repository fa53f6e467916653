// Package strategy defines the decision units evaluated by the simulation
// engine and the registry that constructs them by name.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
	"github.com/marciob/polywatch/internal/history"
)

// Context is the read-only view a strategy evaluates against. It is rebuilt
// by the engine on every feed update and every tick and never mutated in
// place. Zero-valued prices mean "not observed yet".
type Context struct {
	TokenID      string
	MarketName   string
	Outcome      string
	CurrentPrice decimal.Decimal
	BestBid      decimal.Decimal
	BestAsk      decimal.Decimal
	Timestamp    time.Time
	History      *history.PriceHistory
}

// TradeIntent is a strategy's request to trade. Price and TokenID are
// optional: a nil Price makes the engine walk the book for the execution
// price, an empty TokenID targets the watched instrument.
type TradeIntent struct {
	Side    domain.Side
	Size    decimal.Decimal
	Price   *decimal.Decimal
	TokenID string
}

// Strategy is the contract every decision unit implements.
//
// Evaluate must be a pure function of the context and the strategy's own
// state: no I/O, no blocking. A nil return means no action this tick.
type Strategy interface {
	Name() string
	Init(ctx Context) error
	Evaluate(ctx Context) *TradeIntent
	OnFill(fill domain.SimulatedTrade)
	Close() error
}
