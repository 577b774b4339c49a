package engine

// Config holds the engine configuration options recognized by spec.md §6.
// pkg/backtest.Config wraps this with YAML tags and ambient concerns (data
// source, output directory); this struct stays a plain in-memory value so
// tests can construct it without touching YAML at all.
type Config struct {
	InitialBalance         float64
	CommissionPerUnit      float64
	TickSize               float64
	ProgressUpdateInterval int // bars between ProgressUpdate; 0 disables it
	HistoryLimit           int
	Symbol                 string
	Timeframe              string
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		InitialBalance:         100000,
		CommissionPerUnit:      0,
		TickSize:               0.25,
		ProgressUpdateInterval: 1,
		HistoryLimit:           10000,
	}
}
