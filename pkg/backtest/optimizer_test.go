package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/taurusjun/barbacktest/pkg/strategy"
)

func writeBarsCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")

	closes := []float64{100, 101, 99, 102, 105, 103, 108, 112, 110, 115, 120, 118, 125, 130, 128, 126, 132, 135, 140, 138}
	contents := "time,open,high,low,close,volume\n"
	for i, c := range closes {
		ts := int64(1700000000 + i*60)
		o := c - 1
		h := c + 2
		l := c - 2
		contents += fmt.Sprintf("%d,%.2f,%.2f,%.2f,%.2f,%d\n", ts, o, h, l, c, 1000)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func baseOptimizerConfig(t *testing.T) *Config {
	return &Config{
		Backtest: BacktestSettings{
			Name: "optimizer-test",
			Data: DataSettings{CSVPath: writeBarsCSV(t)},
		},
		Strategy: StrategySettings{
			Type: "sma_cross",
			Parameters: map[string]interface{}{
				"contract_id": "TEST",
				"quantity":    1.0,
			},
		},
		Engine: EngineSettings{
			InitialBalance:    100000,
			CommissionPerUnit: 0,
			TickSize:          0.01,
			Symbol:            "TEST",
			Timeframe:         "1m",
		},
	}
}

func TestGridSearchRunsEveryCombination(t *testing.T) {
	cfg := baseOptimizerConfig(t)
	opt := NewOptimizer(cfg, strategy.DefaultRegistry())
	opt.AddParamRange(ParamRange{Name: "fast_period", Min: 2, Max: 3, Step: 1, Int: true})
	opt.AddParamRange(ParamRange{Name: "slow_period", Min: 4, Max: 5, Step: 1, Int: true})
	opt.SetMaxWorkers(2)

	results, err := opt.GridSearch()
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 combinations, got %d", len(results))
	}
	for i, r := range results {
		if r.Rank != i+1 {
			t.Fatalf("result %d has rank %d, want %d", i, r.Rank, i+1)
		}
		if i > 0 && results[i-1].Score < r.Score {
			t.Fatalf("results not sorted descending by score at index %d", i)
		}
	}
}

func TestGridSearchRanksByRequestedGoal(t *testing.T) {
	cfg := baseOptimizerConfig(t)
	opt := NewOptimizer(cfg, strategy.DefaultRegistry())
	opt.AddParamRange(ParamRange{Name: "fast_period", Min: 2, Max: 2, Step: 1, Int: true})
	opt.SetGoal(GoalTotalPNL)

	results, err := opt.GridSearch()
	if err != nil {
		t.Fatalf("GridSearch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 combination, got %d", len(results))
	}
	if results[0].Score != results[0].Result.TotalPNL {
		t.Fatalf("expected score to equal TotalPNL for GoalTotalPNL, got score=%f pnl=%f", results[0].Score, results[0].Result.TotalPNL)
	}
}

func TestGridSearchNoRangesErrors(t *testing.T) {
	cfg := baseOptimizerConfig(t)
	opt := NewOptimizer(cfg, strategy.DefaultRegistry())
	if _, err := opt.GridSearch(); err == nil {
		t.Fatal("expected error when no parameter ranges configured")
	}
}

func TestGenerateCombinationsIsCartesianProduct(t *testing.T) {
	cfg := baseOptimizerConfig(t)
	opt := NewOptimizer(cfg, strategy.DefaultRegistry())
	opt.AddParamRange(ParamRange{Name: "a", Min: 0, Max: 1, Step: 1, Int: true})
	opt.AddParamRange(ParamRange{Name: "b", Min: 0, Max: 2, Step: 1, Int: true})

	combos := opt.generateCombinations()
	if len(combos) != 6 {
		t.Fatalf("expected 2*3=6 combinations, got %d", len(combos))
	}
	for _, c := range combos {
		if _, ok := c["a"]; !ok {
			t.Fatal("combination missing key a")
		}
		if _, ok := c["b"]; !ok {
			t.Fatal("combination missing key b")
		}
	}
}

func TestSetMaxWorkersClampsRange(t *testing.T) {
	cfg := baseOptimizerConfig(t)
	opt := NewOptimizer(cfg, strategy.DefaultRegistry())
	opt.SetMaxWorkers(0)
	if opt.maxWorkers != 1 {
		t.Fatalf("expected clamp to 1, got %d", opt.maxWorkers)
	}
	opt.SetMaxWorkers(100)
	if opt.maxWorkers != 16 {
		t.Fatalf("expected clamp to 16, got %d", opt.maxWorkers)
	}
}
