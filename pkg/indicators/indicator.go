// Package indicators provides simple technical indicators for strategies,
// driven by bar closes rather than the teacher's tick-level bid/ask
// mid-price (this engine replays bars, not a live order book).
package indicators

import "github.com/taurusjun/barbacktest/pkg/types"

// Indicator is the contract every indicator in this package satisfies.
// Unlike the teacher's version there is no internal mutex: the engine's bar
// loop is single-threaded, so an indicator is only ever touched from one
// goroutine (spec.md §5).
type Indicator interface {
	Update(bar types.Bar)
	Value() float64
	Values() []float64
	Reset()
	Name() string
	IsReady() bool
}

// BaseIndicator provides the history bookkeeping shared by every indicator
// in this package: a bounded value history plus a ready flag.
type BaseIndicator struct {
	name        string
	values      []float64
	maxHistory  int
	initialized bool
}

// NewBaseIndicator creates a base indicator retaining at most maxHistory
// values.
func NewBaseIndicator(name string, maxHistory int) *BaseIndicator {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &BaseIndicator{name: name, maxHistory: maxHistory}
}

// Name returns the indicator's configured name.
func (b *BaseIndicator) Name() string { return b.name }

// Value returns the most recently recorded value, or 0 if none yet.
func (b *BaseIndicator) Value() float64 {
	if len(b.values) == 0 {
		return 0
	}
	return b.values[len(b.values)-1]
}

// Values returns a copy of the retained history, oldest first.
func (b *BaseIndicator) Values() []float64 {
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// AddValue appends value to the history, evicting the oldest entry once
// maxHistory is exceeded.
func (b *BaseIndicator) AddValue(value float64) {
	b.values = append(b.values, value)
	if len(b.values) > b.maxHistory {
		b.values = b.values[1:]
	}
	b.initialized = true
}

// Reset clears the history.
func (b *BaseIndicator) Reset() {
	b.values = b.values[:0]
	b.initialized = false
}

// IsReady reports whether at least one value has been recorded.
func (b *BaseIndicator) IsReady() bool { return b.initialized }
