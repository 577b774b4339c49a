package backtest

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/taurusjun/barbacktest/pkg/strategy"
)

// ParamRange defines a grid-search sweep over one numeric strategy
// parameter, grounded on the teacher's ParamRange/ParamType
// (pkg/backtest/optimizer.go).
type ParamRange struct {
	Name string
	Min  float64
	Max  float64
	Step float64
	Int  bool // round each generated value to an int, for parameters like period counts
}

// OptimizationGoal selects which BacktestResult metric ranks combinations,
// mirroring the teacher's OptimizationGoal enum.
type OptimizationGoal string

const (
	GoalSharpeRatio  OptimizationGoal = "sharpe"
	GoalTotalPNL     OptimizationGoal = "pnl"
	GoalWinRate      OptimizationGoal = "win_rate"
	GoalProfitFactor OptimizationGoal = "profit_factor"
	GoalCalmarRatio  OptimizationGoal = "calmar"
)

// OptimizationResult is the outcome of one parameter combination's backtest,
// mirroring the teacher's OptimizationResult.
type OptimizationResult struct {
	Parameters map[string]float64
	Result     *BacktestResult
	Rank       int
	Score      float64
}

// Optimizer runs a grid search over a base Config's strategy parameters,
// grounded on the teacher's ParameterOptimizer: a bounded worker pool of
// goroutines (semaphore + WaitGroup), one Runner per combination, ranked by
// a configurable goal metric.
type Optimizer struct {
	baseConfig *Config
	registry   *strategy.Registry
	ranges     map[string]ParamRange
	goal       OptimizationGoal
	maxWorkers int
}

// NewOptimizer builds an Optimizer over baseConfig. Strategy parameters not
// swept are taken verbatim from baseConfig.Strategy.Parameters.
func NewOptimizer(baseConfig *Config, registry *strategy.Registry) *Optimizer {
	return &Optimizer{
		baseConfig: baseConfig,
		registry:   registry,
		ranges:     make(map[string]ParamRange),
		goal:       GoalSharpeRatio,
		maxWorkers: 4,
	}
}

// AddParamRange adds a swept parameter.
func (o *Optimizer) AddParamRange(r ParamRange) {
	o.ranges[r.Name] = r
}

// SetGoal sets the ranking metric.
func (o *Optimizer) SetGoal(goal OptimizationGoal) { o.goal = goal }

// SetMaxWorkers bounds parallelism, mirroring the teacher's 1..16 clamp.
func (o *Optimizer) SetMaxWorkers(n int) {
	if n < 1 {
		n = 1
	}
	if n > 16 {
		n = 16
	}
	o.maxWorkers = n
}

// GridSearch runs every parameter combination's backtest concurrently
// (bounded by maxWorkers) and returns results ranked best-first.
func (o *Optimizer) GridSearch() ([]*OptimizationResult, error) {
	combinations := o.generateCombinations()
	if len(combinations) == 0 {
		return nil, fmt.Errorf("no parameter combinations to test")
	}
	log.Printf("[Optimizer] running %d parameter combinations, goal=%s, workers=%d", len(combinations), o.goal, o.maxWorkers)

	results := make([]*OptimizationResult, 0, len(combinations))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.maxWorkers)
	start := time.Now()

	for i, params := range combinations {
		wg.Add(1)
		go func(idx int, paramSet map[string]float64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := o.runWithParams(paramSet)
			if err != nil {
				log.Printf("[Optimizer] combination %d/%d failed: %v", idx+1, len(combinations), err)
				return
			}

			mu.Lock()
			results = append(results, result)
			log.Printf("[Optimizer] progress %d/%d: score=%.4f", len(results), len(combinations), result.Score)
			mu.Unlock()
		}(i, params)
	}
	wg.Wait()

	log.Printf("[Optimizer] grid search finished in %v (%d/%d succeeded)", time.Since(start), len(results), len(combinations))

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i, r := range results {
		r.Rank = i + 1
	}
	return results, nil
}

func (o *Optimizer) runWithParams(params map[string]float64) (*OptimizationResult, error) {
	cfg := *o.baseConfig
	cfg.Strategy.Parameters = mergeParams(o.baseConfig.Strategy.Parameters, params, o.ranges)

	runner := NewRunner(&cfg, o.registry)
	result, err := runner.Run()
	if err != nil {
		return nil, fmt.Errorf("backtest failed: %w", err)
	}

	return &OptimizationResult{
		Parameters: params,
		Result:     result,
		Score:      o.score(result),
	}, nil
}

func mergeParams(base map[string]interface{}, overrides map[string]float64, ranges map[string]ParamRange) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		if r, ok := ranges[k]; ok && !r.Int {
			merged[k] = v
			continue
		}
		merged[k] = int(v)
	}
	return merged
}

func (o *Optimizer) score(result *BacktestResult) float64 {
	switch o.goal {
	case GoalTotalPNL:
		return result.TotalPNL
	case GoalWinRate:
		return result.WinRate
	case GoalProfitFactor:
		return result.ProfitFactor
	case GoalCalmarRatio:
		return result.CalmarRatio
	default:
		return result.SharpeRatio
	}
}

// generateCombinations expands o.ranges into every parameter combination,
// mirroring the teacher's generateCombinations/generateCombinationsRecursive
// (sorted parameter names for deterministic ordering, recursive Cartesian
// product).
func (o *Optimizer) generateCombinations() []map[string]float64 {
	names := make([]string, 0, len(o.ranges))
	for name := range o.ranges {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([][]float64, len(names))
	for i, name := range names {
		r := o.ranges[name]
		var vs []float64
		for v := r.Min; v <= r.Max; v += r.Step {
			if r.Int {
				v = float64(int(v))
			}
			vs = append(vs, v)
		}
		values[i] = vs
	}

	var combinations []map[string]float64
	var recurse func(depth int, current map[string]float64)
	recurse = func(depth int, current map[string]float64) {
		if depth == len(names) {
			combo := make(map[string]float64, len(current))
			for k, v := range current {
				combo[k] = v
			}
			combinations = append(combinations, combo)
			return
		}
		for _, v := range values[depth] {
			current[names[depth]] = v
			recurse(depth+1, current)
		}
	}
	recurse(0, make(map[string]float64))
	return combinations
}
