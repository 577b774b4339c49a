package backtest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taurusjun/barbacktest/pkg/engine"
)

// Config is the YAML-loadable configuration for a backtest run, grounded on
// the teacher's BacktestConfig (pkg/backtest/config.go): the same
// backtest/strategy/engine nesting, adapted from tick replay over NATS/date
// ranges to bar-file replay over a single CSV (or, optionally, a NATS bar
// feed).
type Config struct {
	Backtest BacktestSettings `yaml:"backtest"`
	Strategy StrategySettings `yaml:"strategy"`
	Engine   EngineSettings   `yaml:"engine"`
}

// BacktestSettings holds the run's identity, data source and output options.
type BacktestSettings struct {
	Name   string         `yaml:"name"`
	Data   DataSettings   `yaml:"data"`
	Output OutputSettings `yaml:"output"`
}

// DataSettings selects where bars come from: a CSV file, or (if NATSAddr is
// set on EngineSettings) a live bars.<symbol>.<timeframe> subject instead.
type DataSettings struct {
	CSVPath string `yaml:"csv_path"`
}

// OutputSettings controls report/export generation, mirroring the teacher's
// OutputSettings one-for-one.
type OutputSettings struct {
	ResultDir      string `yaml:"result_dir"`
	SaveTrades     bool   `yaml:"save_trades"`
	SaveDailyPNL   bool   `yaml:"save_daily_pnl"`
	GenerateReport bool   `yaml:"generate_report"`
	ReportFormat   string `yaml:"report_format"` // markdown, json
}

// StrategySettings names the registered strategy and its parameters, same
// shape as the teacher's StrategySettings.
type StrategySettings struct {
	Type       string                 `yaml:"type"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

// EngineSettings carries the spec's engine configuration keys plus an
// optional NATS feed address for streaming mode.
type EngineSettings struct {
	InitialBalance         float64 `yaml:"initial_balance"`
	CommissionPerUnit      float64 `yaml:"commission_per_unit"`
	TickSize               float64 `yaml:"tick_size"`
	ProgressUpdateInterval int     `yaml:"progress_update_interval"`
	HistoryLimit           int     `yaml:"history_limit"`
	Symbol                 string  `yaml:"symbol"`
	Timeframe              string  `yaml:"timeframe"`
	NATSAddr               string  `yaml:"nats_addr"`
}

// LoadConfig loads and validates a backtest configuration from YAML,
// mirroring the teacher's LoadBacktestConfig.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the structural requirements a Config must satisfy before
// a Runner can use it, mirroring the teacher's BacktestConfig.Validate.
func (c *Config) Validate() error {
	if c.Backtest.Data.CSVPath == "" && c.Engine.NATSAddr == "" {
		return fmt.Errorf("either backtest.data.csv_path or engine.nats_addr is required")
	}
	if c.Engine.InitialBalance <= 0 {
		return fmt.Errorf("engine.initial_balance must be positive")
	}
	if c.Engine.TickSize <= 0 {
		return fmt.Errorf("engine.tick_size must be positive")
	}
	if c.Strategy.Type == "" {
		return fmt.Errorf("strategy.type is required")
	}
	if c.Engine.Symbol == "" {
		return fmt.Errorf("engine.symbol is required")
	}
	return nil
}

// EngineConfig builds the pkg/engine.Config this Config describes.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.Config{
		InitialBalance:         c.Engine.InitialBalance,
		CommissionPerUnit:      c.Engine.CommissionPerUnit,
		TickSize:               c.Engine.TickSize,
		ProgressUpdateInterval: c.Engine.ProgressUpdateInterval,
		HistoryLimit:           c.Engine.HistoryLimit,
		Symbol:                 c.Engine.Symbol,
		Timeframe:              c.Engine.Timeframe,
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10000
	}
	if cfg.ProgressUpdateInterval <= 0 {
		cfg.ProgressUpdateInterval = 1
	}
	return cfg
}
