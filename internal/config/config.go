package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable for the simulation engine. All values come from
// the environment and carry defaults, so a bare `go run ./cmd/server` works.
type Config struct {
	Port         string `envconfig:"PORT" default:"8080"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"market_sim.db"`
	JWTSecret    string `envconfig:"JWT_SECRET" default:"market-sim-secret-key"`

	// Price process parameters.
	TickIntervalSecs  float64 `envconfig:"TICK_INTERVAL_SECS" default:"2.0"`
	DefaultDrift      float64 `envconfig:"DEFAULT_DRIFT" default:"0.0001"`
	DefaultVolatility float64 `envconfig:"DEFAULT_VOLATILITY" default:"0.02"`
	MaxTickPct        float64 `envconfig:"MAX_TICK_PCT" default:"0.05"`
	TickRetention     int     `envconfig:"TICK_RETENTION" default:"1000"`

	MarketTimezone string `envconfig:"MARKET_TIMEZONE" default:"America/New_York"`

	// Candle aggregation.
	CandleAggregationSecs int `envconfig:"CANDLE_AGGREGATION_FREQUENCY" default:"300"`
	CandleBackfillDays    int `envconfig:"CANDLE_BACKFILL_DAYS" default:"30"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}

	if cfg.TickIntervalSecs <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", cfg.TickIntervalSecs)
	}
	if cfg.MaxTickPct <= 0 || cfg.MaxTickPct >= 1 {
		return nil, fmt.Errorf("max tick percentage must be in (0, 1), got %v", cfg.MaxTickPct)
	}
	if _, err := time.LoadLocation(cfg.MarketTimezone); err != nil {
		return nil, fmt.Errorf("invalid market timezone %q: %w", cfg.MarketTimezone, err)
	}

	return &cfg, nil
}

// TickInterval returns the price engine cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSecs * float64(time.Second))
}

// AggregationInterval returns the candle aggregator cadence as a duration.
func (c *Config) AggregationInterval() time.Duration {
	return time.Duration(c.CandleAggregationSecs) * time.Second
}

// MarketLocation resolves the configured market timezone. Load has already
// validated it, so failures here fall back to UTC.
func (c *Config) MarketLocation() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
