// Package sim owns the periodic strategy-evaluation loop. It consumes market
// updates published by the feed, evaluates every enabled strategy against the
// latest snapshot, prices resulting intents by walking the book, and posts
// fills to the portfolio ledger.
package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
	"github.com/marciob/polywatch/internal/history"
	"github.com/marciob/polywatch/internal/portfolio"
	"github.com/marciob/polywatch/internal/strategy"
)

const (
	// DefaultTickInterval is the evaluation period, independent of how fast
	// feed frames arrive.
	DefaultTickInterval = time.Second

	// simTradeCapacity bounds the simulated-trade ring (newest first).
	simTradeCapacity = 1000
)

// Member is one strategy slot. Disabled members are skipped by the tick but
// still closed on shutdown.
type Member struct {
	Strategy strategy.Strategy
	Enabled  bool
}

// PublishFunc receives the combined snapshot after every state change.
type PublishFunc func(domain.Snapshot)

// Engine evaluates strategies on a fixed ticker against the most recently
// published market state. The feed goroutine pushes updates in via
// OnMarketUpdate; the tick never sees a book mid-delta because updates arrive
// as already-applied immutable snapshots.
type Engine struct {
	instrument domain.Instrument
	tick       time.Duration
	members    []Member
	ledger     *portfolio.Ledger
	hist       *history.PriceHistory
	publish    PublishFunc
	logger     *slog.Logger

	mu        sync.Mutex
	market    domain.MarketUpdate
	hasMarket bool
	seenBook  bool
	simTrades []domain.SimulatedTrade

	closeOnce sync.Once
}

// NewEngine creates an Engine. A nil publish is allowed and disables
// snapshot publication (useful in tests). A non-positive tick falls back to
// DefaultTickInterval.
func NewEngine(
	instrument domain.Instrument,
	tick time.Duration,
	members []Member,
	ledger *portfolio.Ledger,
	hist *history.PriceHistory,
	publish PublishFunc,
	logger *slog.Logger,
) *Engine {
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Engine{
		instrument: instrument,
		tick:       tick,
		members:    members,
		ledger:     ledger,
		hist:       hist,
		publish:    publish,
		logger:     logger.With(slog.String("component", "sim_engine")),
	}
}

// OnMarketUpdate ingests a feed snapshot. It refreshes the engine's held
// context, records the price in the history, updates the ledger's
// mark-to-market input, and republishes the combined snapshot. This runs on
// every feed update, outside the tick, so the next tick always sees fresh
// prices.
func (e *Engine) OnMarketUpdate(update domain.MarketUpdate) {
	e.mu.Lock()
	e.market = update
	e.hasMarket = true
	if update.Book.TwoSided() {
		e.seenBook = true
	}
	e.mu.Unlock()

	price := referencePrice(update)
	if price.IsPositive() {
		bid := decimal.Zero
		ask := decimal.Zero
		if lvl, ok := update.Book.BestBid(); ok {
			bid = lvl.Price
		}
		if lvl, ok := update.Book.BestAsk(); ok {
			ask = lvl.Price
		}
		e.hist.Add(price, bid, ask, update.Timestamp)
		e.ledger.MarkPrice(e.instrument.TokenID, price)
	}

	e.publishSnapshot()
}

// Run initializes every enabled strategy once, then drives the evaluation
// ticker until ctx is cancelled. On return every strategy, enabled or not,
// has been closed exactly once.
func (e *Engine) Run(ctx context.Context) error {
	defer e.closeStrategies()

	initCtx := e.buildContext(time.Now())
	for _, m := range e.members {
		if !m.Enabled {
			continue
		}
		if err := m.Strategy.Init(initCtx); err != nil {
			e.logger.Error("strategy init failed",
				slog.String("strategy", m.Strategy.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("simulation engine started",
		slog.Duration("tick", e.tick),
		slog.Int("strategies", len(e.members)),
	)
	defer e.logger.Info("simulation engine stopped")

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			e.step(now)
		}
	}
}

// step runs one evaluation pass against the latest snapshot.
func (e *Engine) step(now time.Time) {
	e.mu.Lock()
	ready := e.seenBook
	market := e.market
	e.mu.Unlock()

	if !ready {
		return
	}

	sctx := e.contextFrom(market, now)
	filled := false
	for _, m := range e.members {
		if !m.Enabled {
			continue
		}
		intent := e.safeEvaluate(m.Strategy, sctx)
		if intent == nil {
			continue
		}
		if e.execute(m.Strategy, *intent, sctx, market) {
			filled = true
		}
	}

	if filled {
		e.publishSnapshot()
	}
}

// safeEvaluate isolates a strategy fault so one panicking strategy cannot
// stop the others or the engine.
func (e *Engine) safeEvaluate(s strategy.Strategy, sctx strategy.Context) (intent *strategy.TradeIntent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy evaluate panicked",
				slog.String("strategy", s.Name()),
				slog.Any("panic", r),
			)
			intent = nil
		}
	}()
	return s.Evaluate(sctx)
}

// execute prices the intent, records the simulated trade, notifies the
// strategy, and posts the fill to the ledger. Returns whether a fill was
// applied.
func (e *Engine) execute(s strategy.Strategy, intent strategy.TradeIntent, sctx strategy.Context, market domain.MarketUpdate) bool {
	if !intent.Size.IsPositive() {
		return false
	}

	tokenID := intent.TokenID
	if tokenID == "" {
		tokenID = e.instrument.TokenID
	}

	var price decimal.Decimal
	switch {
	case intent.Price != nil:
		price = *intent.Price
	default:
		walked, ok := walkBook(market.Book, intent.Side, intent.Size)
		if ok {
			price = walked
		} else if intent.Side == domain.SideBuy && sctx.BestAsk.IsPositive() {
			price = sctx.BestAsk
		} else if intent.Side == domain.SideSell && sctx.BestBid.IsPositive() {
			price = sctx.BestBid
		} else {
			price = sctx.CurrentPrice
		}
	}
	if !price.IsPositive() {
		return false
	}

	fill := domain.SimulatedTrade{
		ID:        uuid.NewString(),
		Timestamp: sctx.Timestamp,
		TokenID:   tokenID,
		Side:      intent.Side,
		Price:     price,
		Size:      intent.Size,
		Notional:  price.Mul(intent.Size),
		Strategy:  s.Name(),
	}

	e.mu.Lock()
	e.simTrades = append([]domain.SimulatedTrade{fill}, e.simTrades...)
	if len(e.simTrades) > simTradeCapacity {
		e.simTrades = e.simTrades[:simTradeCapacity]
	}
	e.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("strategy fill handler panicked",
					slog.String("strategy", s.Name()),
					slog.Any("panic", r),
				)
			}
		}()
		s.OnFill(fill)
	}()

	applied := e.ledger.ApplyFill(tokenID, e.instrument.Outcome, fill.Side, fill.Price, fill.Size, fill.Timestamp)
	e.logger.Info("simulated fill",
		slog.String("strategy", s.Name()),
		slog.String("side", string(fill.Side)),
		slog.String("price", fill.Price.String()),
		slog.String("size", fill.Size.String()),
		slog.Bool("applied", applied),
	)
	return true
}

// SimTrades returns a copy of the simulated-trade ring, newest first.
func (e *Engine) SimTrades() []domain.SimulatedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.SimulatedTrade, len(e.simTrades))
	copy(out, e.simTrades)
	return out
}

// buildContext assembles a context from the latest held market state.
func (e *Engine) buildContext(now time.Time) strategy.Context {
	e.mu.Lock()
	market := e.market
	e.mu.Unlock()
	return e.contextFrom(market, now)
}

// contextFrom derives the ephemeral strategy context from a market snapshot.
func (e *Engine) contextFrom(market domain.MarketUpdate, now time.Time) strategy.Context {
	sctx := strategy.Context{
		TokenID:    e.instrument.TokenID,
		MarketName: e.instrument.MarketName,
		Outcome:    e.instrument.Outcome,
		Timestamp:  now,
		History:    e.hist,
	}
	if lvl, ok := market.Book.BestBid(); ok {
		sctx.BestBid = lvl.Price
	}
	if lvl, ok := market.Book.BestAsk(); ok {
		sctx.BestAsk = lvl.Price
	}
	sctx.CurrentPrice = referencePrice(market)
	return sctx
}

// publishSnapshot hands the combined state to the publish sink.
func (e *Engine) publishSnapshot() {
	if e.publish == nil {
		return
	}
	e.mu.Lock()
	market := e.market
	has := e.hasMarket
	simTrades := make([]domain.SimulatedTrade, len(e.simTrades))
	copy(simTrades, e.simTrades)
	e.mu.Unlock()
	if !has {
		return
	}
	e.publish(domain.Snapshot{
		Market:    market,
		SimTrades: simTrades,
		Portfolio: e.ledger.Snapshot(),
	})
}

// closeStrategies closes every strategy exactly once, enabled or not.
func (e *Engine) closeStrategies() {
	e.closeOnce.Do(func() {
		for _, m := range e.members {
			if err := m.Strategy.Close(); err != nil {
				e.logger.Warn("strategy close failed",
					slog.String("strategy", m.Strategy.Name()),
					slog.String("error", err.Error()),
				)
			}
		}
	})
}

// referencePrice picks the mark-to-market price for an update: the last
// traded price when known, the mid price otherwise.
func referencePrice(update domain.MarketUpdate) decimal.Decimal {
	if update.LastPrice.Valid && update.LastPrice.Price.IsPositive() {
		return update.LastPrice.Price
	}
	if mid, ok := update.Book.MidPrice(); ok {
		return mid
	}
	return decimal.Zero
}
