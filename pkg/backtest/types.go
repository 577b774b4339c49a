package backtest

import (
	"time"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// DailyPNL represents one day's aggregated trading result, grounded on the
// teacher's pkg/backtest/types.go DailyPNL (same fields, Volume expressed
// in contract units rather than lots).
type DailyPNL struct {
	Date       string
	PNL        float64
	Return     float64
	MaxPNL     float64
	MinPNL     float64
	TradeCount int
	Volume     float64
}

// BacktestResult is the complete output of one Runner.Run, mirroring the
// teacher's BacktestResult shape (basic info, trade records, performance
// metrics, trade statistics) but carrying this engine's ClosedTrade/equity
// curve instead of tick-level Trade/Fill records.
type BacktestResult struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	InitialCash float64
	FinalCash   float64

	Trades      []types.ClosedTrade
	DailyPNL    []DailyPNL
	EquityCurve []float64

	TotalPNL    float64
	TotalReturn float64

	AnnualizedReturn       float64
	SharpeRatio            float64
	SortinoRatio           float64
	MaxDrawdown            float64
	MaxDrawdownDuration    time.Duration
	WinRate                float64
	ProfitFactor           float64
	CalmarRatio            float64
	AverageDailyReturn     float64
	AverageDailyVolatility float64

	TotalTrades     int
	WinTrades       int
	LossTrades      int
	AvgWin          float64
	AvgLoss         float64
	MaxWin          float64
	MaxLoss         float64
	AvgTradeSize    float64
	TotalCommission float64
}

// BatchSummary aggregates several BacktestResult runs, grounded on the
// teacher's printBatchSummary (RunBatch over multiple dates; here, over
// multiple bar files or parameter sets).
type BatchSummary struct {
	RunCount        int
	TotalPNL        float64
	AverageDailyPNL float64
	TotalTrades     int
	OverallWinRate  float64
}

// Summarize computes a BatchSummary over results, grounded on the teacher's
// printBatchSummary aggregation logic.
func Summarize(results []*BacktestResult) BatchSummary {
	var summary BatchSummary
	summary.RunCount = len(results)
	if len(results) == 0 {
		return summary
	}

	var totalWins int
	for _, r := range results {
		summary.TotalPNL += r.TotalPNL
		summary.TotalTrades += r.TotalTrades
		totalWins += r.WinTrades
	}
	summary.AverageDailyPNL = summary.TotalPNL / float64(len(results))
	if summary.TotalTrades > 0 {
		summary.OverallWinRate = float64(totalWins) / float64(summary.TotalTrades)
	}
	return summary
}
