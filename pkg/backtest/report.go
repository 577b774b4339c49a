package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReportGenerator writes a completed BacktestResult to disk in the formats
// requested by Config.Backtest.Output, grounded on the teacher's
// ReportGenerator (pkg/backtest/report.go): Markdown summary, JSON dump,
// trades CSV, daily-PNL CSV, in English rather than the teacher's Chinese
// report copy.
type ReportGenerator struct {
	cfg    *Config
	result *BacktestResult
}

// NewReportGenerator builds a generator for result under cfg's output
// settings.
func NewReportGenerator(cfg *Config, result *BacktestResult) *ReportGenerator {
	return &ReportGenerator{cfg: cfg, result: result}
}

// Generate writes every report artifact cfg.Backtest.Output enables.
func (g *ReportGenerator) Generate() error {
	if g.cfg.Backtest.Output.GenerateReport {
		switch g.cfg.Backtest.Output.ReportFormat {
		case "json":
			if err := g.GenerateJSON(); err != nil {
				return err
			}
		default:
			if err := g.GenerateMarkdown(); err != nil {
				return err
			}
		}
	}
	if g.cfg.Backtest.Output.SaveTrades {
		if err := g.SaveTrades(); err != nil {
			return err
		}
	}
	if g.cfg.Backtest.Output.SaveDailyPNL {
		if err := g.SaveDailyPNL(); err != nil {
			return err
		}
	}
	return nil
}

func (g *ReportGenerator) outputDir() (string, error) {
	dir := g.cfg.Backtest.Output.ResultDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// GenerateMarkdown writes a human-readable summary report.
func (g *ReportGenerator) GenerateMarkdown() error {
	dir, err := g.outputDir()
	if err != nil {
		return err
	}
	timestamp := g.result.EndTime.Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("backtest_report_%s.md", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	g.writeMarkdown(file)
	fmt.Printf("[Report] markdown report saved: %s\n", path)
	return nil
}

func (g *ReportGenerator) writeMarkdown(file *os.File) {
	r := g.result
	fmt.Fprintf(file, "# Backtest Report\n\n")
	fmt.Fprintf(file, "**Strategy**: %s\n", g.cfg.Strategy.Type)
	fmt.Fprintf(file, "**Period**: %s to %s\n", r.StartTime.Format("2006-01-02"), r.EndTime.Format("2006-01-02"))
	fmt.Fprintf(file, "**Initial Capital**: %.2f\n", r.InitialCash)
	fmt.Fprintf(file, "**Final Capital**: %.2f\n\n", r.FinalCash)
	fmt.Fprintf(file, "---\n\n")

	fmt.Fprintf(file, "## Performance Summary\n\n")
	fmt.Fprintf(file, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(file, "| Total PnL | %.2f |\n", r.TotalPNL)
	fmt.Fprintf(file, "| Total Return | %.2f%% |\n", r.TotalReturn*100)
	fmt.Fprintf(file, "| Annualized Return | %.2f%% |\n", r.AnnualizedReturn*100)
	fmt.Fprintf(file, "| Sharpe Ratio | %.2f |\n", r.SharpeRatio)
	fmt.Fprintf(file, "| Sortino Ratio | %.2f |\n", r.SortinoRatio)
	fmt.Fprintf(file, "| Max Drawdown | %.2f%% |\n", r.MaxDrawdown*100)
	fmt.Fprintf(file, "| Max Drawdown Duration | %s |\n", r.MaxDrawdownDuration.String())
	fmt.Fprintf(file, "| Win Rate | %.2f%% |\n", r.WinRate*100)
	fmt.Fprintf(file, "| Profit Factor | %.2f |\n", r.ProfitFactor)
	fmt.Fprintf(file, "| Calmar Ratio | %.2f |\n\n", r.CalmarRatio)

	fmt.Fprintf(file, "## Trade Statistics\n\n")
	fmt.Fprintf(file, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(file, "| Total Trades | %d |\n", r.TotalTrades)
	fmt.Fprintf(file, "| Winning Trades | %d |\n", r.WinTrades)
	fmt.Fprintf(file, "| Losing Trades | %d |\n", r.LossTrades)
	fmt.Fprintf(file, "| Average Win | %.2f |\n", r.AvgWin)
	fmt.Fprintf(file, "| Average Loss | %.2f |\n", r.AvgLoss)
	fmt.Fprintf(file, "| Largest Win | %.2f |\n", r.MaxWin)
	fmt.Fprintf(file, "| Largest Loss | %.2f |\n", r.MaxLoss)
	fmt.Fprintf(file, "| Average Trade Size | %.2f |\n", r.AvgTradeSize)
	fmt.Fprintf(file, "| Total Commission | %.2f |\n\n", r.TotalCommission)

	if len(r.DailyPNL) > 0 {
		fmt.Fprintf(file, "## Daily PnL (first 10 days)\n\n")
		fmt.Fprintf(file, "| Date | PnL | Return | Trades | Volume |\n|---|---|---|---|---|\n")
		limit := 10
		if len(r.DailyPNL) < limit {
			limit = len(r.DailyPNL)
		}
		for i := 0; i < limit; i++ {
			d := r.DailyPNL[i]
			fmt.Fprintf(file, "| %s | %.2f | %.2f%% | %d | %.0f |\n", d.Date, d.PNL, d.Return*100, d.TradeCount, d.Volume)
		}
		fmt.Fprintf(file, "\n")
		if len(r.DailyPNL) > limit {
			fmt.Fprintf(file, "*...%d days total, showing first %d*\n\n", len(r.DailyPNL), limit)
		}
	}

	fmt.Fprintf(file, "---\n\n")
	fmt.Fprintf(file, "**Report generated**: %s\n", time.Now().Format("2006-01-02 15:04:05"))
}

// GenerateJSON writes the full BacktestResult as indented JSON.
func (g *ReportGenerator) GenerateJSON() error {
	dir, err := g.outputDir()
	if err != nil {
		return err
	}
	timestamp := g.result.EndTime.Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("backtest_result_%s.json", timestamp))

	data, err := json.MarshalIndent(g.result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	fmt.Printf("[Report] JSON result saved: %s\n", path)
	return nil
}

// SaveTrades writes every closed trade to a CSV file.
func (g *ReportGenerator) SaveTrades() error {
	dir, err := g.outputDir()
	if err != nil {
		return err
	}
	timestamp := g.result.EndTime.Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("trades_%s.csv", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trades file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	w.Write([]string{"ID", "ContractID", "Side", "Size", "EntryPrice", "ExitPrice", "PnL", "Commission", "ExitReason", "ExitTime"})
	for _, t := range g.result.Trades {
		w.Write([]string{
			t.ID, t.ContractID, t.Side.String(),
			fmt.Sprintf("%.4f", t.Size),
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%.2f", t.ProfitOrLoss),
			fmt.Sprintf("%.2f", t.Commission),
			t.ExitReason.String(),
			time.Unix(t.ExitTime, 0).UTC().Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Printf("[Report] trades saved: %s\n", path)
	return nil
}

// SaveDailyPNL writes the daily PnL breakdown to a CSV file.
func (g *ReportGenerator) SaveDailyPNL() error {
	dir, err := g.outputDir()
	if err != nil {
		return err
	}
	timestamp := g.result.EndTime.Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("daily_pnl_%s.csv", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create daily PnL file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	w.Write([]string{"Date", "PnL", "Return", "MaxPnL", "MinPnL", "TradeCount", "Volume"})
	for _, d := range g.result.DailyPNL {
		w.Write([]string{
			d.Date,
			fmt.Sprintf("%.2f", d.PNL),
			fmt.Sprintf("%.4f", d.Return),
			fmt.Sprintf("%.2f", d.MaxPNL),
			fmt.Sprintf("%.2f", d.MinPNL),
			fmt.Sprintf("%d", d.TradeCount),
			fmt.Sprintf("%.0f", d.Volume),
		})
	}
	fmt.Printf("[Report] daily PnL saved: %s\n", path)
	return nil
}
