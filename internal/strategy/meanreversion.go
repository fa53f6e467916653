package strategy

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
)

const (
	defaultMRPeriod    = 20
	defaultMRThreshold = 2.0
)

// MeanReversion buys when the current price sits well below its recent
// moving average and sells when it sits well above, with "well" measured in
// multiples of the trailing standard deviation. Sells that exceed the held
// position are dropped downstream by the ledger.
type MeanReversion struct {
	period    int
	threshold float64
	size      decimal.Decimal
	logger    *slog.Logger
}

// DefaultMeanReversionConfig returns the stock mean_reversion configuration.
// Disabled by default; it only makes sense once the history has warmed up.
func DefaultMeanReversionConfig() Config {
	return Config{
		MeanReversion: MeanReversionConfig{
			Period:          defaultMRPeriod,
			StdDevThreshold: defaultMRThreshold,
			Size:            decimal.NewFromInt(1),
		},
	}
}

// NewMeanReversion constructs a MeanReversion from cfg.MeanReversion.
func NewMeanReversion(cfg Config, logger *slog.Logger) (Strategy, error) {
	mr := &MeanReversion{
		period:    cfg.MeanReversion.Period,
		threshold: cfg.MeanReversion.StdDevThreshold,
		size:      cfg.MeanReversion.Size,
		logger:    logger.With(slog.String("strategy", "mean_reversion")),
	}
	if mr.period <= 0 {
		mr.period = defaultMRPeriod
	}
	if mr.threshold <= 0 {
		mr.threshold = defaultMRThreshold
	}
	if !mr.size.IsPositive() {
		mr.size = decimal.NewFromInt(1)
	}
	return mr, nil
}

func (mr *MeanReversion) Name() string { return "mean_reversion" }

func (mr *MeanReversion) Init(_ Context) error { return nil }

func (mr *MeanReversion) Evaluate(ctx Context) *TradeIntent {
	if ctx.History == nil || ctx.CurrentPrice.IsZero() {
		return nil
	}
	avg, ok := ctx.History.MovingAverage(mr.period)
	if !ok {
		return nil
	}
	vol, ok := ctx.History.Volatility(mr.period)
	if !ok || vol == 0 {
		return nil
	}

	deviation := ctx.CurrentPrice.Sub(avg).InexactFloat64() / vol
	switch {
	case deviation <= -mr.threshold:
		return &TradeIntent{Side: domain.SideBuy, Size: mr.size}
	case deviation >= mr.threshold:
		return &TradeIntent{Side: domain.SideSell, Size: mr.size}
	default:
		return nil
	}
}

func (mr *MeanReversion) OnFill(fill domain.SimulatedTrade) {
	mr.logger.Info("fill executed",
		slog.String("side", string(fill.Side)),
		slog.String("price", fill.Price.String()),
	)
}

func (mr *MeanReversion) Close() error { return nil }
