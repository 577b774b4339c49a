package indicators

import "github.com/taurusjun/barbacktest/pkg/types"

// EMA is an exponential moving average over bar closes. Not present in the
// teacher's indicators file directly, but named in its IndicatorLibrary
// factory registry alongside SMA; implemented here in the same style.
type EMA struct {
	*BaseIndicator
	period int
	alpha  float64
	seeded []float64 // accumulates the first `period` closes to seed the average
	value  float64
}

// NewEMA creates an EMA over the given period, seeded with a plain average
// of the first `period` closes (the teacher's SMA-seeding convention).
func NewEMA(period, maxHistory int) *EMA {
	return &EMA{
		BaseIndicator: NewBaseIndicator("ema", maxHistory),
		period:        period,
		alpha:         2.0 / (float64(period) + 1.0),
	}
}

// NewEMAFromConfig mirrors NewSMAFromConfig's config-map convention.
func NewEMAFromConfig(config map[string]interface{}) *EMA {
	period := 14
	if v, ok := config["period"]; ok {
		if p, ok := v.(int); ok {
			period = p
		}
	}
	maxHistory := 0
	if v, ok := config["max_history"]; ok {
		if m, ok := v.(int); ok {
			maxHistory = m
		}
	}
	return NewEMA(period, maxHistory)
}

// Update folds bar.Close into the running average.
func (e *EMA) Update(bar types.Bar) {
	if !e.IsReady() && len(e.seeded) < e.period {
		e.seeded = append(e.seeded, bar.Close)
		if len(e.seeded) < e.period {
			return
		}
		var sum float64
		for _, v := range e.seeded {
			sum += v
		}
		e.value = sum / float64(e.period)
		e.AddValue(e.value)
		return
	}
	e.value = e.alpha*bar.Close + (1-e.alpha)*e.value
	e.AddValue(e.value)
}

// Period returns the configured window length.
func (e *EMA) Period() int { return e.period }

// Reset clears both the base history and the seeding buffer.
func (e *EMA) Reset() {
	e.BaseIndicator.Reset()
	e.seeded = e.seeded[:0]
	e.value = 0
}
