package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYWATCH_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the defaults plus
// environment are enough to run. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators point the watcher at a market without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Market.Ref, "POLYWATCH_MARKET_REF")
	setStr(&cfg.Market.Outcome, "POLYWATCH_MARKET_OUTCOME")

	setStr(&cfg.Polymarket.WsHost, "POLYWATCH_WS_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYWATCH_GAMMA_HOST")

	setBool(&cfg.Simulation.Enabled, "POLYWATCH_SIMULATION_ENABLED")
	setDuration(&cfg.Simulation.TickInterval, "POLYWATCH_SIMULATION_TICK_INTERVAL")
	setInt(&cfg.Simulation.HistorySize, "POLYWATCH_SIMULATION_HISTORY_SIZE")

	setBool(&cfg.Strategy.PollBuy.Enabled, "POLYWATCH_STRATEGY_POLL_BUY_ENABLED")
	setInt(&cfg.Strategy.PollBuy.IntervalSeconds, "POLYWATCH_STRATEGY_POLL_BUY_INTERVAL_SECONDS")
	setFloat64(&cfg.Strategy.PollBuy.Size, "POLYWATCH_STRATEGY_POLL_BUY_SIZE")
	setBool(&cfg.Strategy.MeanReversion.Enabled, "POLYWATCH_STRATEGY_MEAN_REVERSION_ENABLED")
	setInt(&cfg.Strategy.MeanReversion.Period, "POLYWATCH_STRATEGY_MEAN_REVERSION_PERIOD")
	setFloat64(&cfg.Strategy.MeanReversion.StdDevThreshold, "POLYWATCH_STRATEGY_MEAN_REVERSION_STD_DEV_THRESHOLD")
	setFloat64(&cfg.Strategy.MeanReversion.Size, "POLYWATCH_STRATEGY_MEAN_REVERSION_SIZE")

	setBool(&cfg.UI.Enabled, "POLYWATCH_UI_ENABLED")
	setInt(&cfg.UI.MaxTrades, "POLYWATCH_UI_MAX_TRADES")

	setStr(&cfg.LogLevel, "POLYWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
