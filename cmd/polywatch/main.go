// Command polywatch watches a single Polymarket outcome token: it
// reconstructs the live order book from the CLOB websocket feed, runs the
// configured simulation strategies against it, and renders book, trades, and
// portfolio state to the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marciob/polywatch/internal/app"
	"github.com/marciob/polywatch/internal/config"
)

func main() {
	configPath := flag.String("config", "polywatch.toml", "path to configuration file")
	marketRef := flag.String("market", "", "market URL, slug, or token id (overrides config)")
	outcome := flag.String("outcome", "", "outcome label to watch, e.g. Yes (overrides config)")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *marketRef != "" {
		cfg.Market.Ref = *marketRef
	}
	if *outcome != "" {
		cfg.Market.Outcome = *outcome
	}

	// Structured JSON logger on stderr so the dashboard owns stdout.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("polywatch starting",
		slog.String("market", cfg.Market.Ref),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("polywatch stopped")
}
