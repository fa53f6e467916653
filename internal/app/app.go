// Package app provides the top-level application lifecycle: it wires the
// resolver, feed, simulation engine, and renderer together and supervises
// their goroutines.
package app

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/marciob/polywatch/internal/config"
	"github.com/marciob/polywatch/internal/domain"
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu   sync.Mutex
	deps *Deps
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies and blocks until the context is cancelled or a
// component fails. The feed, the engine ticker, and the renderer run as
// independently schedulable goroutines; state crosses between them only as
// immutable snapshots over channels.
func (a *App) Run(ctx context.Context) error {
	deps, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.deps = deps
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Feed.Run(gctx)
	})

	if deps.Engine != nil {
		g.Go(func() error {
			return deps.Engine.Run(gctx)
		})
	}

	g.Go(func() error {
		return a.dispatch(gctx, deps)
	})

	if deps.Renderer != nil {
		g.Go(func() error {
			return deps.Renderer.Run(gctx, deps.snapshots)
		})
	}

	err = g.Wait()
	if err == context.Canceled {
		return context.Canceled
	}
	return err
}

// dispatch routes feed updates into the engine (which republishes combined
// snapshots) or, with the simulation off, straight to the renderer.
func (a *App) dispatch(ctx context.Context, deps *Deps) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-deps.updates:
			if deps.Engine != nil {
				deps.Engine.OnMarketUpdate(update)
				continue
			}
			offerLatest(deps.snapshots, domain.Snapshot{
				Market:    update,
				Portfolio: deps.Ledger.Snapshot(),
			})
		}
	}
}

// Close tears down the feed transport. Safe to call multiple times.
func (a *App) Close() {
	a.mu.Lock()
	deps := a.deps
	a.mu.Unlock()
	if deps != nil && deps.Feed != nil {
		_ = deps.Feed.Close()
	}
}
