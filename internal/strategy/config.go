package strategy

import "github.com/shopspring/decimal"

// Config is the per-strategy configuration record. Each strategy type has an
// explicit typed section; Params is the fallback bag for extension fields no
// section models yet.
type Config struct {
	Type    string
	Enabled bool

	PollBuy       PollBuyConfig
	MeanReversion MeanReversionConfig

	Params map[string]any
}

// PollBuyConfig configures the poll_buy strategy.
type PollBuyConfig struct {
	IntervalSeconds int
	Size            decimal.Decimal
}

// MeanReversionConfig configures the mean_reversion strategy.
type MeanReversionConfig struct {
	Period          int
	StdDevThreshold float64
	Size            decimal.Decimal
}

// merge lays the override on top of base: set fields win, zero fields keep
// the base value. Params are merged key-wise with override precedence.
func merge(base, override Config) Config {
	out := base
	if override.Type != "" {
		out.Type = override.Type
	}
	out.Enabled = override.Enabled

	if override.PollBuy.IntervalSeconds > 0 {
		out.PollBuy.IntervalSeconds = override.PollBuy.IntervalSeconds
	}
	if override.PollBuy.Size.IsPositive() {
		out.PollBuy.Size = override.PollBuy.Size
	}
	if override.MeanReversion.Period > 0 {
		out.MeanReversion.Period = override.MeanReversion.Period
	}
	if override.MeanReversion.StdDevThreshold > 0 {
		out.MeanReversion.StdDevThreshold = override.MeanReversion.StdDevThreshold
	}
	if override.MeanReversion.Size.IsPositive() {
		out.MeanReversion.Size = override.MeanReversion.Size
	}

	if len(override.Params) > 0 {
		merged := make(map[string]any, len(base.Params)+len(override.Params))
		for k, v := range base.Params {
			merged[k] = v
		}
		for k, v := range override.Params {
			merged[k] = v
		}
		out.Params = merged
	}
	return out
}
