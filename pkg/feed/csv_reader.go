// Package feed provides data sources that deliver Bar values into the
// engine from outside the synchronous core: a CSV historical reader and an
// optional NATS bridge. Grounded on the teacher's
// pkg/backtest/datareader.go (HistoricalDataReader), adapted from raw tick
// rows replayed over NATS to OHLC bar rows read either from disk or a NATS
// subject.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// CSVBarReader loads a sequence of OHLC bars from a CSV file, one bar per
// row: time,open,high,low,close,volume. Mirrors the teacher's
// loadTicksFromCSV/parseCSVRecord split (read file, parse each row, sort by
// timestamp) without the tick-specific order-book-depth columns.
type CSVBarReader struct {
	path string
}

// NewCSVBarReader builds a reader for the CSV file at path.
func NewCSVBarReader(path string) *CSVBarReader {
	return &CSVBarReader{path: path}
}

// LoadBars reads and parses every row, skipping a header if the file's
// first row doesn't parse as a bar, and returns bars sorted by Time.
func (r *CSVBarReader) LoadBars() ([]types.Bar, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar CSV %s: %w", r.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var bars []types.Bar
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read bar CSV row: %w", err)
		}

		bar, parseErr := parseBarRecord(record)
		if parseErr != nil {
			if first {
				// likely a header row; skip it silently
				first = false
				continue
			}
			return nil, fmt.Errorf("failed to parse bar CSV row %v: %w", record, parseErr)
		}
		first = false
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars loaded from %s", r.path)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	return bars, nil
}

func parseBarRecord(record []string) (types.Bar, error) {
	if len(record) < 5 {
		return types.Bar{}, fmt.Errorf("expected at least 5 fields (time,open,high,low,close), got %d", len(record))
	}
	t, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("invalid time: %w", err)
	}
	open, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("invalid open: %w", err)
	}
	high, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("invalid high: %w", err)
	}
	low, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("invalid low: %w", err)
	}
	closePx, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("invalid close: %w", err)
	}
	var volume float64
	if len(record) >= 6 {
		volume, _ = strconv.ParseFloat(record[5], 64)
	}

	bar := types.Bar{Time: t, Open: open, High: high, Low: low, Close: closePx, Volume: volume}
	if err := bar.Validate(); err != nil {
		return types.Bar{}, err
	}
	return bar, nil
}
