package indicators

import "github.com/taurusjun/barbacktest/pkg/types"

// SMA is a simple moving average over bar closes, adapted from the
// teacher's tick-driven SMA (pkg/indicators/sma.go) to a sliding window of
// Bar.Close instead of a bid/ask mid-price.
type SMA struct {
	*BaseIndicator
	period int
	window []float64
	sum    float64
}

// NewSMA creates an SMA over the given period, retaining maxHistory output
// values (0 defaults to 1000, same as the teacher's default).
func NewSMA(period, maxHistory int) *SMA {
	return &SMA{
		BaseIndicator: NewBaseIndicator("sma", maxHistory),
		period:        period,
	}
}

// NewSMAFromConfig mirrors the teacher's config-map factory convention so an
// SMA can be built from a strategy's parameter map.
func NewSMAFromConfig(config map[string]interface{}) *SMA {
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
	return NewSMA(period, maxHistory)
}

// Update folds bar.Close into the sliding window, recording a new average
// once the window has filled to period.
func (s *SMA) Update(bar types.Bar) {
	s.window = append(s.window, bar.Close)
	s.sum += bar.Close
	if len(s.window) > s.period {
		s.sum -= s.window[0]
		s.window = s.window[1:]
	}
	if len(s.window) == s.period {
		s.AddValue(s.sum / float64(s.period))
	}
}

// Period returns the configured window length.
func (s *SMA) Period() int { return s.period }

// Reset clears both the base history and the sliding window.
func (s *SMA) Reset() {
	s.BaseIndicator.Reset()
	s.window = s.window[:0]
	s.sum = 0
}
