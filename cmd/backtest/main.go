package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/taurusjun/barbacktest/pkg/backtest"
)

const (
	appName    = "BarBacktest"
	appVersion = "1.0.0"
)

var (
	configFile = flag.String("config", "./config/backtest.yaml", "Configuration file path")
	csvPaths   = flag.String("csv-files", "", "Comma-separated CSV bar files for batch backtest (overrides config, one run per file)")
	outputDir  = flag.String("output", "", "Output directory (overrides config)")
	version    = flag.Bool("version", false, "Print version and exit")
	help       = flag.Bool("help", false, "Print help and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	printBanner()

	log.Printf("[Main] loading configuration from: %s", *configFile)
	config, err := backtest.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("[Main] failed to load config: %v", err)
	}
	log.Println("[Main] configuration loaded")

	if *outputDir != "" {
		config.Backtest.Output.ResultDir = *outputDir
		log.Printf("[Main] output directory overridden: %s", *outputDir)
	}

	printConfigSummary(config)

	if *csvPaths != "" {
		files := strings.Split(*csvPaths, ",")
		log.Printf("[Main] running batch backtest over %d files", len(files))

		results, err := backtest.RunBatch(config, nil, files)
		if err != nil {
			log.Fatalf("[Main] batch backtest failed: %v", err)
		}
		log.Printf("[Main] batch backtest completed: %d results", len(results))
		return
	}

	log.Println("[Main] running single backtest")
	runner := backtest.NewRunner(config, nil)
	result, err := runner.Run()
	if err != nil {
		log.Fatalf("[Main] backtest failed: %v", err)
	}

	printResultSummary(result)
	log.Println("[Main] backtest completed successfully")
}

func printBanner() {
	fmt.Println("========================================")
	fmt.Printf("%s v%s\n", appName, appVersion)
	fmt.Println("bar-driven backtesting engine")
	fmt.Println("========================================")
}

func printHelp() {
	fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  # Single backtest")
	fmt.Println("  ./backtest -config config/backtest.yaml")
	fmt.Println()
	fmt.Println("  # Batch backtest over several bar files")
	fmt.Println("  ./backtest -config config/backtest.yaml -csv-files data/day1.csv,data/day2.csv")
	fmt.Println()
}

func printConfigSummary(config *backtest.Config) {
	fmt.Println("\n========================================")
	fmt.Println("Configuration Summary")
	fmt.Println("========================================")
	fmt.Printf("Backtest Name:     %s\n", config.Backtest.Name)
	fmt.Printf("Data Source:       %s\n", dataSourceLabel(config))
	fmt.Printf("Symbol:            %s (%s)\n", config.Engine.Symbol, config.Engine.Timeframe)
	fmt.Printf("Initial Balance:   %.2f\n", config.Engine.InitialBalance)
	fmt.Printf("Strategy:          %s\n", config.Strategy.Type)
	fmt.Printf("Output Directory:  %s\n", config.Backtest.Output.ResultDir)
	fmt.Println("========================================")
}

func dataSourceLabel(config *backtest.Config) string {
	if config.Engine.NATSAddr != "" {
		return fmt.Sprintf("NATS: %s", config.Engine.NATSAddr)
	}
	return fmt.Sprintf("CSV: %s", config.Backtest.Data.CSVPath)
}

func printResultSummary(result *backtest.BacktestResult) {
	fmt.Println("\n========================================")
	fmt.Println("Result Summary")
	fmt.Println("========================================")
	fmt.Printf("Period:            %s to %s\n", result.StartTime.Format("2006-01-02"), result.EndTime.Format("2006-01-02"))
	fmt.Printf("Total PnL:         %.2f\n", result.TotalPNL)
	fmt.Printf("Total Return:      %.2f%%\n", result.TotalReturn*100)
	fmt.Printf("Sharpe Ratio:      %.2f\n", result.SharpeRatio)
	fmt.Printf("Max Drawdown:      %.2f%%\n", result.MaxDrawdown*100)
	fmt.Printf("Win Rate:          %.2f%%\n", result.WinRate*100)
	fmt.Printf("Total Trades:      %d\n", result.TotalTrades)
	fmt.Println("========================================")
}
