package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/config"
	"github.com/marciob/polywatch/internal/domain"
	"github.com/marciob/polywatch/internal/feed"
	"github.com/marciob/polywatch/internal/history"
	"github.com/marciob/polywatch/internal/platform/polymarket"
	"github.com/marciob/polywatch/internal/portfolio"
	"github.com/marciob/polywatch/internal/sim"
	"github.com/marciob/polywatch/internal/strategy"
	"github.com/marciob/polywatch/internal/ui"
)

// Deps bundles every wired component. Construction happens once at startup;
// nothing here is global.
type Deps struct {
	Instrument domain.Instrument
	Feed       *feed.Client
	Engine     *sim.Engine
	Renderer   *ui.Renderer
	Ledger     *portfolio.Ledger
	History    *history.PriceHistory
	Registry   *strategy.Registry

	// updates carries feed snapshots to the dispatch loop; snapshots
	// carries combined state to the renderer. Both are latest-wins.
	updates   chan domain.MarketUpdate
	snapshots chan domain.Snapshot
}

// Wire resolves the watched instrument and constructs the component graph:
// resolver → feed → engine → renderer, connected by channels.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	instrument, err := gamma.ResolveInstrument(ctx, cfg.Market.Ref, cfg.Market.Outcome)
	if err != nil {
		return nil, fmt.Errorf("app: resolve market %q: %w", cfg.Market.Ref, err)
	}
	logger.Info("market resolved",
		slog.String("token_id", instrument.TokenID),
		slog.String("market", instrument.MarketName),
		slog.String("outcome", instrument.Outcome),
		slog.Int("siblings", len(instrument.Siblings)),
	)

	deps := &Deps{
		Instrument: instrument,
		History:    history.New(cfg.Simulation.HistorySize),
		Ledger:     portfolio.NewLedger(logger),
		Registry:   strategy.NewDefaultRegistry(),
		updates:    make(chan domain.MarketUpdate, 16),
		snapshots:  make(chan domain.Snapshot, 16),
	}

	deps.Feed = feed.NewClient(cfg.Polymarket.WsHost, instrument.TokenID, func(update domain.MarketUpdate) {
		offerLatest(deps.updates, update)
	}, logger)

	if cfg.Simulation.Enabled {
		members, err := buildStrategies(deps.Registry, cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.Engine = sim.NewEngine(
			instrument,
			cfg.Simulation.TickInterval.Duration,
			members,
			deps.Ledger,
			deps.History,
			func(snap domain.Snapshot) { offerLatest(deps.snapshots, snap) },
			logger,
		)
	}

	if cfg.UI.Enabled {
		deps.Renderer = ui.NewRenderer(os.Stdout, instrument, cfg.UI.MaxTrades)
	}

	return deps, nil
}

// buildStrategies instantiates every configured strategy through the
// registry, carrying the enabled flags into engine members.
func buildStrategies(reg *strategy.Registry, cfg *config.Config, logger *slog.Logger) ([]sim.Member, error) {
	overrides := map[string]struct {
		enabled bool
		cfg     strategy.Config
	}{
		"poll_buy": {
			enabled: cfg.Strategy.PollBuy.Enabled,
			cfg: strategy.Config{
				Enabled: cfg.Strategy.PollBuy.Enabled,
				PollBuy: strategy.PollBuyConfig{
					IntervalSeconds: cfg.Strategy.PollBuy.IntervalSeconds,
					Size:            decimal.NewFromFloat(cfg.Strategy.PollBuy.Size),
				},
				Params: cfg.Strategy.Params,
			},
		},
		"mean_reversion": {
			enabled: cfg.Strategy.MeanReversion.Enabled,
			cfg: strategy.Config{
				Enabled: cfg.Strategy.MeanReversion.Enabled,
				MeanReversion: strategy.MeanReversionConfig{
					Period:          cfg.Strategy.MeanReversion.Period,
					StdDevThreshold: cfg.Strategy.MeanReversion.StdDevThreshold,
					Size:            decimal.NewFromFloat(cfg.Strategy.MeanReversion.Size),
				},
				Params: cfg.Strategy.Params,
			},
		},
	}

	members := make([]sim.Member, 0, len(overrides))
	for _, name := range reg.List() {
		ov, ok := overrides[name]
		if !ok {
			continue
		}
		s, err := reg.Create(name, ov.cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("app: build strategy %s: %w", name, err)
		}
		members = append(members, sim.Member{Strategy: s, Enabled: ov.enabled})
	}
	return members, nil
}

// offerLatest enqueues without ever blocking the producer: when the buffer
// is full the oldest entry is dropped so consumers always converge on the
// freshest state. Every entry is a full snapshot, so skipping intermediates
// loses nothing.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
