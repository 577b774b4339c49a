package backtest

import (
	"fmt"
	"log"
	"time"

	"github.com/taurusjun/barbacktest/pkg/engine"
	"github.com/taurusjun/barbacktest/pkg/feed"
	"github.com/taurusjun/barbacktest/pkg/strategy"
)

// Runner coordinates config loading, bar-feed selection, strategy
// construction and engine execution for one backtest, grounded on the
// teacher's BacktestRunner (pkg/backtest/runner.go): the same
// initialize -> load data -> start -> replay -> generate statistics -> report
// pipeline, collapsed onto the synchronous Engine instead of a NATS-wired
// order router and Trader process.
type Runner struct {
	cfg      *Config
	registry *strategy.Registry

	Engine *engine.Engine
}

// NewRunner builds a Runner for cfg, using registry to resolve
// cfg.Strategy.Type (strategy.DefaultRegistry() if registry is nil).
func NewRunner(cfg *Config, registry *strategy.Registry) *Runner {
	if registry == nil {
		registry = strategy.DefaultRegistry()
	}
	return &Runner{cfg: cfg, registry: registry}
}

// Run executes one full backtest: loads bars, wires the configured
// strategy into a fresh Engine, runs it to completion, and computes
// statistics. Generates reports afterward if cfg.Backtest.Output requests
// them.
func (r *Runner) Run() (*BacktestResult, error) {
	log.Printf("[Backtest] starting run %q", r.cfg.Backtest.Name)

	strat, err := r.registry.Create(r.cfg.Strategy.Type, r.cfg.Strategy.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to build strategy: %w", err)
	}

	r.Engine = engine.New(r.cfg.EngineConfig())
	if err := r.Engine.AddStrategy(strat); err != nil {
		return nil, fmt.Errorf("failed to add strategy: %w", err)
	}

	var runResult *engine.RunResult
	if r.cfg.Engine.NATSAddr != "" {
		runResult, err = r.runStreaming()
	} else {
		runResult, err = r.runFromCSV()
	}
	if err != nil {
		return nil, err
	}

	stats := NewStatistics(r.cfg.Engine.InitialBalance)
	start := time.Unix(runResult.StartTime, 0).UTC()
	end := time.Unix(runResult.EndTime, 0).UTC()
	result := stats.Compute(start, end, runResult.ClosedTrades, runResult.EquityCurve, runResult.FinalEquity)

	out := r.cfg.Backtest.Output
	if out.GenerateReport || out.SaveTrades || out.SaveDailyPNL {
		gen := NewReportGenerator(r.cfg, result)
		if err := gen.Generate(); err != nil {
			log.Printf("[Backtest] report generation failed: %v", err)
		}
	}

	log.Printf("[Backtest] run %q complete: %d trades, final equity %.2f",
		r.cfg.Backtest.Name, result.TotalTrades, result.FinalCash)
	return result, nil
}

func (r *Runner) runFromCSV() (*engine.RunResult, error) {
	log.Printf("[Backtest] loading bars from %s", r.cfg.Backtest.Data.CSVPath)
	bars, err := feed.NewCSVBarReader(r.cfg.Backtest.Data.CSVPath).LoadBars()
	if err != nil {
		return nil, fmt.Errorf("failed to load bars: %w", err)
	}
	log.Printf("[Backtest] loaded %d bars", len(bars))
	if err := r.Engine.LoadBars(bars, nil); err != nil {
		return nil, fmt.Errorf("failed to load bars into engine: %w", err)
	}
	return r.Engine.Start()
}

func (r *Runner) runStreaming() (*engine.RunResult, error) {
	log.Printf("[Backtest] connecting to NATS bar feed at %s", r.cfg.Engine.NATSAddr)
	nf, err := feed.NewNATSBarFeed(r.cfg.Engine.NATSAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect bar feed: %w", err)
	}
	defer nf.Close()
	if err := nf.Subscribe(r.cfg.Engine.Symbol, r.cfg.Engine.Timeframe); err != nil {
		return nil, fmt.Errorf("failed to subscribe bar feed: %w", err)
	}
	return r.Engine.StartStreaming(nf.Bars())
}

// RunBatch runs the same strategy/config over several bar files in
// sequence, one fresh Runner/Engine per file, mirroring the teacher's
// RunBatch (pkg/backtest/runner.go) which re-ran a BacktestRunner per date;
// here "date" becomes "CSV file" since this engine replays bars rather than
// a NATS tick stream keyed by calendar day.
func RunBatch(cfg *Config, registry *strategy.Registry, csvPaths []string) ([]*BacktestResult, error) {
	results := make([]*BacktestResult, 0, len(csvPaths))

	for i, path := range csvPaths {
		log.Printf("[BatchBacktest] running %d/%d: %s", i+1, len(csvPaths), path)

		runCfg := *cfg
		runCfg.Backtest.Data.CSVPath = path
		runner := NewRunner(&runCfg, registry)

		result, err := runner.Run()
		if err != nil {
			log.Printf("[BatchBacktest] run failed for %s: %v", path, err)
			continue
		}
		results = append(results, result)
	}

	summary := Summarize(results)
	log.Printf("[BatchBacktest] %d runs, total PNL %.2f, avg daily PNL %.2f, win rate %.1f%%",
		summary.RunCount, summary.TotalPNL, summary.AverageDailyPNL, summary.OverallWinRate*100)
	return results, nil
}
