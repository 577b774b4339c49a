package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// Statistics turns a completed Engine run's closed trades and equity curve
// into a BacktestResult, grounded on the teacher's BacktestStatistics
// (pkg/backtest/statistics.go): same daily-PNL bucketing, win/loss/Sharpe/
// Sortino/Calmar/max-drawdown computation, adapted from a running
// cash-balance/position tracker (fed by async NATS order updates) to a
// single post-run pass over the ledger's already-closed trades, since the
// engine's ledger is the authoritative source of realized P&L here.
type Statistics struct {
	initialBalance float64
}

// NewStatistics creates a Statistics collector seeded with the run's
// initial balance.
func NewStatistics(initialBalance float64) *Statistics {
	return &Statistics{initialBalance: initialBalance}
}

// Compute builds a BacktestResult from a completed run's trades, equity
// curve and the timestamps of its first and last processed bars.
func (s *Statistics) Compute(start, end time.Time, trades []types.ClosedTrade, equityCurve []float64, finalEquity float64) *BacktestResult {
	result := &BacktestResult{
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		InitialCash: s.initialBalance,
		FinalCash:   finalEquity,
		Trades:      trades,
		EquityCurve: equityCurve,
	}

	result.TotalPNL = result.FinalCash - result.InitialCash
	if result.InitialCash != 0 {
		result.TotalReturn = result.TotalPNL / result.InitialCash
	}

	result.DailyPNL = s.dailyPNL(trades, result.InitialCash)
	result.TotalTrades = len(trades)
	s.tradeStats(result)
	s.performanceMetrics(result)
	return result
}

// dailyPNL buckets closed trades by their exit date, mirroring the
// teacher's dateKey-keyed map plus cumulative-PNL sweep.
func (s *Statistics) dailyPNL(trades []types.ClosedTrade, initialCash float64) []DailyPNL {
	byDate := make(map[string]*DailyPNL)
	for _, t := range trades {
		dateKey := time.Unix(t.ExitTime, 0).UTC().Format("2006-01-02")
		d, ok := byDate[dateKey]
		if !ok {
			d = &DailyPNL{Date: dateKey}
			byDate[dateKey] = d
		}
		d.PNL += t.ProfitOrLoss
		d.TradeCount++
		d.Volume += t.Size
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	out := make([]DailyPNL, 0, len(dates))
	var cum float64
	for _, date := range dates {
		d := byDate[date]
		if initialCash != 0 {
			d.Return = d.PNL / initialCash
		}
		cum += d.PNL
		if cum > d.MaxPNL {
			d.MaxPNL = cum
		}
		if cum < d.MinPNL || d.MinPNL == 0 {
			d.MinPNL = cum
		}
		out = append(out, *d)
	}
	return out
}

// tradeStats computes win rate, average/max win/loss and profit factor,
// mirroring the teacher's calculateTradeStats.
func (s *Statistics) tradeStats(result *BacktestResult) {
	if len(result.Trades) == 0 {
		return
	}
	var totalWin, totalLoss, totalSize float64
	for _, t := range result.Trades {
		totalSize += t.Size
		result.TotalCommission += t.Commission
		switch {
		case t.ProfitOrLoss > 0:
			result.WinTrades++
			totalWin += t.ProfitOrLoss
			if t.ProfitOrLoss > result.MaxWin {
				result.MaxWin = t.ProfitOrLoss
			}
		case t.ProfitOrLoss < 0:
			result.LossTrades++
			totalLoss += -t.ProfitOrLoss
			if t.ProfitOrLoss < result.MaxLoss {
				result.MaxLoss = t.ProfitOrLoss
			}
		}
	}
	result.WinRate = float64(result.WinTrades) / float64(result.TotalTrades)
	if result.WinTrades > 0 {
		result.AvgWin = totalWin / float64(result.WinTrades)
	}
	if result.LossTrades > 0 {
		result.AvgLoss = totalLoss / float64(result.LossTrades)
	}
	result.AvgTradeSize = totalSize / float64(result.TotalTrades)
	if totalLoss > 0 {
		result.ProfitFactor = totalWin / totalLoss
	}
}

// performanceMetrics computes Sharpe/Sortino/annualized-return/max-drawdown/
// Calmar from the daily PNL series, mirroring the teacher's
// calculatePerformanceMetrics/calculateMaxDrawdown (252 trading-day
// annualization convention retained as-is).
func (s *Statistics) performanceMetrics(result *BacktestResult) {
	if len(result.DailyPNL) == 0 {
		return
	}
	returns := make([]float64, len(result.DailyPNL))
	for i, d := range result.DailyPNL {
		returns[i] = d.Return
	}

	result.AverageDailyReturn = mean(returns)
	result.AverageDailyVolatility = stdDev(returns)

	tradingDays := float64(len(result.DailyPNL))
	if tradingDays > 0 {
		result.AnnualizedReturn = result.TotalReturn * (252.0 / tradingDays)
	}
	if result.AverageDailyVolatility > 0 {
		result.SharpeRatio = result.AverageDailyReturn / result.AverageDailyVolatility * math.Sqrt(252)
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) > 0 {
		if dd := stdDev(downside); dd > 0 {
			result.SortinoRatio = result.AverageDailyReturn / dd * math.Sqrt(252)
		}
	}

	result.MaxDrawdown, result.MaxDrawdownDuration = maxDrawdown(result.DailyPNL)
	if result.MaxDrawdown > 0 {
		result.CalmarRatio = result.AnnualizedReturn / result.MaxDrawdown
	}
}

func maxDrawdown(daily []DailyPNL) (float64, time.Duration) {
	var maxDD float64
	var maxDDDuration time.Duration
	var peak float64
	var peakTime time.Time
	var cum float64

	for _, d := range daily {
		cum += d.PNL
		if cum > peak {
			peak = cum
			peakTime, _ = time.Parse("2006-01-02", d.Date)
		}
		if peak > 0 {
			drawdown := (peak - cum) / peak
			if drawdown > maxDD {
				maxDD = drawdown
				current, _ := time.Parse("2006-01-02", d.Date)
				maxDDDuration = current.Sub(peakTime)
			}
		}
	}
	return maxDD, maxDDDuration
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}
