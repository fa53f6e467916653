// Package config defines the top-level configuration for polywatch and
// provides validation helpers.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYWATCH_* environment
// variables.
type Config struct {
	Market     MarketConfig     `toml:"market"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Simulation SimulationConfig `toml:"simulation"`
	Strategy   StrategyConfig   `toml:"strategy"`
	UI         UIConfig         `toml:"ui"`
	LogLevel   string           `toml:"log_level"`
}

// MarketConfig names the market to watch.
type MarketConfig struct {
	// Ref is a polymarket.com URL, a market slug, or a raw CLOB token id.
	Ref string `toml:"ref"`
	// Outcome selects which outcome token to watch, e.g. "Yes". Empty
	// selects the market's first outcome.
	Outcome string `toml:"outcome"`
}

// PolymarketConfig holds API endpoints.
type PolymarketConfig struct {
	WsHost    string `toml:"ws_host"`
	GammaHost string `toml:"gamma_host"`
}

// SimulationConfig holds engine parameters.
type SimulationConfig struct {
	Enabled      bool     `toml:"enabled"`
	TickInterval duration `toml:"tick_interval"`
	HistorySize  int      `toml:"history_size"`
}

// StrategyConfig holds the per-strategy sections.
type StrategyConfig struct {
	PollBuy       PollBuyConfig       `toml:"poll_buy"`
	MeanReversion MeanReversionConfig `toml:"mean_reversion"`
	// Params is the fallback bag for extension fields no typed section
	// models yet.
	Params map[string]any `toml:"params"`
}

// PollBuyConfig configures the poll_buy strategy.
type PollBuyConfig struct {
	Enabled         bool    `toml:"enabled"`
	IntervalSeconds int     `toml:"interval_seconds"`
	Size            float64 `toml:"size"`
}

// MeanReversionConfig configures the mean_reversion strategy.
type MeanReversionConfig struct {
	Enabled         bool    `toml:"enabled"`
	Period          int     `toml:"period"`
	StdDevThreshold float64 `toml:"std_dev_threshold"`
	Size            float64 `toml:"size"`
}

// UIConfig holds terminal renderer parameters.
type UIConfig struct {
	Enabled bool `toml:"enabled"`
	// MaxTrades caps how many recent trades the panel shows.
	MaxTrades int `toml:"max_trades"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "1s", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration, pointed at the public
// Polymarket endpoints with the simulation on.
func Defaults() Config {
	return Config{
		Market: MarketConfig{Outcome: "Yes"},
		Polymarket: PolymarketConfig{
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			GammaHost: "https://gamma-api.polymarket.com",
		},
		Simulation: SimulationConfig{
			Enabled:      true,
			TickInterval: duration{time.Second},
			HistorySize:  1000,
		},
		Strategy: StrategyConfig{
			PollBuy: PollBuyConfig{
				Enabled:         true,
				IntervalSeconds: 15,
				Size:            1,
			},
			MeanReversion: MeanReversionConfig{
				Period:          20,
				StdDevThreshold: 2.0,
				Size:            1,
			},
		},
		UI:       UIConfig{Enabled: true, MaxTrades: 10},
		LogLevel: "info",
	}
}

// Validate checks the configuration for obvious mistakes. It is invoked by
// main after Load.
func (c *Config) Validate() error {
	if c.Market.Ref == "" {
		return fmt.Errorf("config: market.ref is required (URL, slug, or token id)")
	}
	if c.Polymarket.WsHost == "" {
		return fmt.Errorf("config: polymarket.ws_host is required")
	}
	if c.Polymarket.GammaHost == "" {
		return fmt.Errorf("config: polymarket.gamma_host is required")
	}
	if c.Simulation.TickInterval.Duration < 0 {
		return fmt.Errorf("config: simulation.tick_interval must not be negative")
	}
	if c.Simulation.HistorySize < 0 {
		return fmt.Errorf("config: simulation.history_size must not be negative")
	}
	if c.Strategy.PollBuy.IntervalSeconds < 0 {
		return fmt.Errorf("config: strategy.poll_buy.interval_seconds must not be negative")
	}
	if c.Strategy.PollBuy.Size < 0 || c.Strategy.MeanReversion.Size < 0 {
		return fmt.Errorf("config: strategy sizes must not be negative")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
