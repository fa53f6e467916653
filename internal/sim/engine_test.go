package sim

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marciob/polywatch/internal/domain"
	"github.com/marciob/polywatch/internal/history"
	"github.com/marciob/polywatch/internal/portfolio"
	"github.com/marciob/polywatch/internal/strategy"
)

const testToken = "1234567890123456"

// scriptedStrategy returns a fixed intent on every evaluation and records
// what the engine calls back with.
type scriptedStrategy struct {
	name   string
	intent *strategy.TradeIntent
	panics bool
	evals  int
	fills  []domain.SimulatedTrade
	closed int
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Init(strategy.Context) error { return nil }

func (s *scriptedStrategy) Evaluate(strategy.Context) *strategy.TradeIntent {
	s.evals++
	if s.panics {
		panic("scripted failure")
	}
	return s.intent
}

func (s *scriptedStrategy) OnFill(fill domain.SimulatedTrade) { s.fills = append(s.fills, fill) }
func (s *scriptedStrategy) Close() error                      { s.closed++; return nil }

func newTestEngine(t *testing.T, members []Member, publish PublishFunc) (*Engine, *portfolio.Ledger) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ledger := portfolio.NewLedger(logger)
	instrument := domain.Instrument{TokenID: testToken, MarketName: "Test market", Outcome: "Yes"}
	return NewEngine(instrument, time.Second, members, ledger, history.New(100), publish, logger), ledger
}

func twoSidedUpdate() domain.MarketUpdate {
	return domain.MarketUpdate{
		TokenID: testToken,
		Book: bookOf(
			[]domain.PriceLevel{lvl("0.38", "5")},
			[]domain.PriceLevel{lvl("0.40", "2"), lvl("0.45", "3")},
		),
		Connected: true,
		Timestamp: time.Now(),
	}
}

func TestStepWaitsForTwoSidedBook(t *testing.T) {
	s := &scriptedStrategy{name: "scripted", intent: &strategy.TradeIntent{Side: domain.SideBuy, Size: d("1")}}
	e, _ := newTestEngine(t, []Member{{Strategy: s, Enabled: true}}, nil)

	// No update at all.
	e.step(time.Now())
	assert.Zero(t, s.evals)

	// One-sided book is still not tradable.
	e.OnMarketUpdate(domain.MarketUpdate{
		TokenID:   testToken,
		Book:      bookOf(nil, []domain.PriceLevel{lvl("0.40", "2")}),
		Timestamp: time.Now(),
	})
	e.step(time.Now())
	assert.Zero(t, s.evals)

	e.OnMarketUpdate(twoSidedUpdate())
	e.step(time.Now())
	assert.Equal(t, 1, s.evals)
}

func TestStepExecutesIntentAtWalkedPrice(t *testing.T) {
	s := &scriptedStrategy{name: "scripted", intent: &strategy.TradeIntent{Side: domain.SideBuy, Size: d("4")}}
	e, ledger := newTestEngine(t, []Member{{Strategy: s, Enabled: true}}, nil)

	e.OnMarketUpdate(twoSidedUpdate())
	now := time.Now()
	e.step(now)

	trades := e.SimTrades()
	require.Len(t, trades, 1)
	fill := trades[0]
	assert.True(t, fill.Price.Equal(d("0.425")), "price %s", fill.Price)
	assert.True(t, fill.Size.Equal(d("4")))
	assert.Equal(t, testToken, fill.TokenID)
	assert.Equal(t, "scripted", fill.Strategy)
	assert.NotEmpty(t, fill.ID)
	assert.Equal(t, now, fill.Timestamp)

	// The strategy saw its own fill and the ledger holds the position.
	require.Len(t, s.fills, 1)
	snap := ledger.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.True(t, snap.Positions[0].Shares.Equal(d("4")))
	assert.True(t, snap.Positions[0].AveragePrice.Equal(d("0.425")))
}

func TestStepHonorsExplicitIntentPrice(t *testing.T) {
	limit := d("0.39")
	s := &scriptedStrategy{name: "scripted", intent: &strategy.TradeIntent{Side: domain.SideBuy, Size: d("1"), Price: &limit}}
	e, _ := newTestEngine(t, []Member{{Strategy: s, Enabled: true}}, nil)

	e.OnMarketUpdate(twoSidedUpdate())
	e.step(time.Now())

	trades := e.SimTrades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(limit))
}

func TestStepSkipsDisabledMembers(t *testing.T) {
	enabled := &scriptedStrategy{name: "on"}
	disabled := &scriptedStrategy{name: "off", intent: &strategy.TradeIntent{Side: domain.SideBuy, Size: d("1")}}
	e, _ := newTestEngine(t, []Member{
		{Strategy: enabled, Enabled: true},
		{Strategy: disabled, Enabled: false},
	}, nil)

	e.OnMarketUpdate(twoSidedUpdate())
	e.step(time.Now())

	assert.Equal(t, 1, enabled.evals)
	assert.Zero(t, disabled.evals)
	assert.Empty(t, e.SimTrades())
}

func TestPanickingStrategyIsIsolated(t *testing.T) {
	bad := &scriptedStrategy{name: "bad", panics: true}
	good := &scriptedStrategy{name: "good", intent: &strategy.TradeIntent{Side: domain.SideBuy, Size: d("1")}}
	e, _ := newTestEngine(t, []Member{
		{Strategy: bad, Enabled: true},
		{Strategy: good, Enabled: true},
	}, nil)

	e.OnMarketUpdate(twoSidedUpdate())
	require.NotPanics(t, func() { e.step(time.Now()) })

	assert.Equal(t, 1, bad.evals)
	assert.Equal(t, 1, good.evals)
	assert.Len(t, e.SimTrades(), 1, "the healthy strategy still trades")
}

func TestOnMarketUpdateMarksAndRecordsHistory(t *testing.T) {
	hist := history.New(100)
	logger := slog.New(slog.DiscardHandler)
	ledger := portfolio.NewLedger(logger)
	instrument := domain.Instrument{TokenID: testToken, Outcome: "Yes"}
	e := NewEngine(instrument, time.Second, nil, ledger, hist, nil, logger)

	update := twoSidedUpdate()
	update.LastPrice = domain.PriceRef{Price: d("0.42"), Time: update.Timestamp, Valid: true}
	e.OnMarketUpdate(update)

	// Last trade beats mid as the reference price.
	last, ok := hist.Last()
	require.True(t, ok)
	assert.True(t, last.Price.Equal(d("0.42")), "got %s", last.Price)
	assert.True(t, last.BestBid.Equal(d("0.38")))
	assert.True(t, last.BestAsk.Equal(d("0.40")))

	// Without a trade the mid is used.
	e.OnMarketUpdate(twoSidedUpdate())
	last, ok = hist.Last()
	require.True(t, ok)
	assert.True(t, last.Price.Equal(d("0.39")), "got %s", last.Price)
}

func TestPublishSnapshotCombinesState(t *testing.T) {
	var published []domain.Snapshot
	s := &scriptedStrategy{name: "scripted", intent: &strategy.TradeIntent{Side: domain.SideBuy, Size: d("1")}}
	e, _ := newTestEngine(t, []Member{{Strategy: s, Enabled: true}}, func(snap domain.Snapshot) {
		published = append(published, snap)
	})

	e.OnMarketUpdate(twoSidedUpdate())
	e.step(time.Now())

	require.NotEmpty(t, published)
	last := published[len(published)-1]
	assert.True(t, last.Market.Connected)
	require.Len(t, last.SimTrades, 1)
	require.Len(t, last.Portfolio.Positions, 1)
}

func TestCloseStrategiesClosesEveryMemberOnce(t *testing.T) {
	on := &scriptedStrategy{name: "on"}
	off := &scriptedStrategy{name: "off"}
	e, _ := newTestEngine(t, []Member{
		{Strategy: on, Enabled: true},
		{Strategy: off, Enabled: false},
	}, nil)

	e.closeStrategies()
	e.closeStrategies()

	assert.Equal(t, 1, on.closed)
	assert.Equal(t, 1, off.closed)
}
