package types

import "fmt"

// Bar is an OHLC price bar at the engine's main timeframe. Immutable once
// published onto the EventBus.
type Bar struct {
	Time   int64 // epoch seconds
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate checks the invariant low <= min(open,close) <= max(open,close) <= high.
func (b Bar) Validate() error {
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	if b.Low > lo || hi > b.High {
		return fmt.Errorf("%w: time=%d open=%.4f high=%.4f low=%.4f close=%.4f",
			ErrInvalidBar, b.Time, b.Open, b.High, b.Low, b.Close)
	}
	return nil
}

// SubBar is a finer-grained bar used to resolve the intra-bar price path for
// fill decisions. ParentBarIndex ties it back to the main Bar sequence.
type SubBar struct {
	Time           int64
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	ParentBarIndex int
}

// Validate applies the same OHLC bound as Bar.
func (sb SubBar) Validate() error {
	return Bar{Time: sb.Time, Open: sb.Open, High: sb.High, Low: sb.Low, Close: sb.Close}.Validate()
}

// ToBar drops the ParentBarIndex field, used when a SubBar is treated as a
// standalone synthetic bar (e.g. the single-subbar fallback in matching).
func (sb SubBar) ToBar() Bar {
	return Bar{Time: sb.Time, Open: sb.Open, High: sb.High, Low: sb.Low, Close: sb.Close, Volume: sb.Volume}
}

// SyntheticSubBars returns subBars unchanged if non-empty, or a single
// synthetic sub-bar spanning the whole main bar otherwise. This implements
// the spec's "if sub-bars are absent, the main bar is treated as a single
// synthetic sub-bar" rule in one place so matching code never special-cases it.
func SyntheticSubBars(bar Bar, subBars []SubBar) []SubBar {
	if len(subBars) > 0 {
		return subBars
	}
	return []SubBar{{
		Time: bar.Time, Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close,
		Volume: bar.Volume, ParentBarIndex: 0,
	}}
}

// RoundToTick rounds price to the nearest multiple of tick. A non-positive
// tick is treated as "no rounding" (tick size 0 is meaningless otherwise).
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	steps := price / tick
	rounded := float64(int64(steps + sign(steps)*0.5))
	return rounded * tick
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
