package strategy

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
)

const defaultPollInterval = 15 * time.Second

// PollBuy fires exactly one BUY intent every interval of wall-clock time,
// measured from its previous fire. The first evaluation after Init fires
// immediately; ticks arriving before the interval has elapsed are ignored.
type PollBuy struct {
	interval time.Duration
	size     decimal.Decimal
	lastFire time.Time
	logger   *slog.Logger
}

// DefaultPollBuyConfig returns the stock poll_buy configuration: one share
// every 15 seconds.
func DefaultPollBuyConfig() Config {
	return Config{
		Enabled: true,
		PollBuy: PollBuyConfig{
			IntervalSeconds: 15,
			Size:            decimal.NewFromInt(1),
		},
	}
}

// NewPollBuy constructs a PollBuy from cfg.PollBuy.
func NewPollBuy(cfg Config, logger *slog.Logger) (Strategy, error) {
	interval := defaultPollInterval
	if cfg.PollBuy.IntervalSeconds > 0 {
		interval = time.Duration(cfg.PollBuy.IntervalSeconds) * time.Second
	}
	size := cfg.PollBuy.Size
	if !size.IsPositive() {
		size = decimal.NewFromInt(1)
	}
	return &PollBuy{
		interval: interval,
		size:     size,
		logger:   logger.With(slog.String("strategy", "poll_buy")),
	}, nil
}

func (p *PollBuy) Name() string { return "poll_buy" }

func (p *PollBuy) Init(_ Context) error {
	p.lastFire = time.Time{}
	return nil
}

// Evaluate fires when the interval has elapsed since the previous fire,
// judged by the context timestamp so evaluation stays pure.
func (p *PollBuy) Evaluate(ctx Context) *TradeIntent {
	if !p.lastFire.IsZero() && ctx.Timestamp.Sub(p.lastFire) < p.interval {
		return nil
	}
	p.lastFire = ctx.Timestamp
	return &TradeIntent{Side: domain.SideBuy, Size: p.size}
}

func (p *PollBuy) OnFill(fill domain.SimulatedTrade) {
	p.logger.Debug("fill executed",
		slog.String("side", string(fill.Side)),
		slog.String("price", fill.Price.String()),
		slog.String("size", fill.Size.String()),
	)
}

func (p *PollBuy) Close() error { return nil }
