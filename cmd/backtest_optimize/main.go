package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/taurusjun/barbacktest/pkg/backtest"
)

var (
	configFile = flag.String("config", "config/backtest.yaml", "Backtest configuration file")
	params     = flag.String("params", "", "Parameters to sweep (format: name:min:max:step,name:min:max:step)")
	goal       = flag.String("goal", "sharpe", "Optimization goal: sharpe, pnl, win_rate, profit_factor, calmar")
	workers    = flag.Int("workers", 4, "Number of parallel workers")
	topN       = flag.Int("top", 10, "Number of top results to print")
)

func main() {
	flag.Parse()

	log.Println("========================================")
	log.Println("Parameter Optimization Tool")
	log.Println("========================================")

	config, err := backtest.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	optimizer := backtest.NewOptimizer(config, nil)
	optimizer.SetMaxWorkers(*workers)
	optimizer.SetGoal(parseGoal(*goal))

	if *params == "" {
		log.Fatal("no parameters specified; use -params (e.g. -params fast_period:5:20:5,slow_period:20:60:10)")
	}
	for _, spec := range strings.Split(*params, ",") {
		r, err := parseParamRange(spec)
		if err != nil {
			log.Fatalf("invalid parameter spec %q: %v", spec, err)
		}
		optimizer.AddParamRange(r)
		log.Printf("added parameter range: %s [%.2f, %.2f] step %.2f", r.Name, r.Min, r.Max, r.Step)
	}

	results, err := optimizer.GridSearch()
	if err != nil {
		log.Fatalf("optimization failed: %v", err)
	}

	n := *topN
	if n > len(results) {
		n = len(results)
	}
	log.Printf("\ntop %d of %d combinations (goal=%s):", n, len(results), *goal)
	for i := 0; i < n; i++ {
		r := results[i]
		fmt.Printf("#%d  score=%.4f  sharpe=%.2f  pnl=%.2f  win_rate=%.1f%%  trades=%d  params=%v\n",
			r.Rank, r.Score, r.Result.SharpeRatio, r.Result.TotalPNL, r.Result.WinRate*100, r.Result.TotalTrades, r.Parameters)
	}
}

func parseGoal(s string) backtest.OptimizationGoal {
	switch s {
	case "sharpe":
		return backtest.GoalSharpeRatio
	case "pnl":
		return backtest.GoalTotalPNL
	case "win_rate":
		return backtest.GoalWinRate
	case "profit_factor":
		return backtest.GoalProfitFactor
	case "calmar":
		return backtest.GoalCalmarRatio
	default:
		log.Fatalf("unknown optimization goal: %s", s)
		return backtest.GoalSharpeRatio
	}
}

func parseParamRange(spec string) (backtest.ParamRange, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if len(parts) != 4 {
		return backtest.ParamRange{}, fmt.Errorf("expected format name:min:max:step")
	}
	name := parts[0]
	min, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return backtest.ParamRange{}, fmt.Errorf("invalid min: %w", err)
	}
	max, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return backtest.ParamRange{}, fmt.Errorf("invalid max: %w", err)
	}
	step, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return backtest.ParamRange{}, fmt.Errorf("invalid step: %w", err)
	}
	isInt := step >= 1.0 && min == float64(int(min)) && max == float64(int(max))
	return backtest.ParamRange{Name: name, Min: min, Max: max, Step: step, Int: isInt}, nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Backtest Parameter Optimization Tool\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -config config/backtest.yaml -params fast_period:5:20:5,slow_period:20:60:10 -goal sharpe -workers 8\n", os.Args[0])
	}
}
