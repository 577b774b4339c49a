// Package strategy holds reference Strategy implementations for the
// backtesting engine. Parameter loading from a generic config map follows
// the teacher's StrategyConfig.Parameters convention
// (pkg/strategy/passive_strategy.go's Initialize), adapted from tick market
// making to bar-close indicator crossovers.
package strategy

import (
	"log"

	"github.com/taurusjun/barbacktest/pkg/engine"
	"github.com/taurusjun/barbacktest/pkg/indicators"
	"github.com/taurusjun/barbacktest/pkg/types"
)

// SMACross is a trend-following reference strategy: goes long when the fast
// SMA crosses above the slow SMA, flat/short when it crosses back below. It
// trades a fixed quantity and relies on the engine's final forced close (or
// its own opposite signal) to exit, with no SL/TP brackets of its own.
type SMACross struct {
	ctx *engine.StrategyContext

	fastPeriod, slowPeriod int
	quantity               float64
	contractID             string

	fast *indicators.SMA
	slow *indicators.SMA

	position types.OrderSide
	inMarket bool
}

// NewSMACross builds an SMACross with the given fast/slow windows, trading
// quantity, and contract id.
func NewSMACross(fastPeriod, slowPeriod int, quantity float64, contractID string) *SMACross {
	return &SMACross{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		quantity:   quantity,
		contractID: contractID,
	}
}

// NewSMACrossFromConfig reads fast_period/slow_period/quantity/contract_id
// from a generic parameter map, mirroring the teacher's config.Parameters
// convention.
func NewSMACrossFromConfig(config map[string]interface{}) *SMACross {
	fast, slow := 10, 30
	qty := 1.0
	contractID := ""
	if v, ok := config["fast_period"].(int); ok {
		fast = v
	}
	if v, ok := config["slow_period"].(int); ok {
		slow = v
	}
	if v, ok := config["quantity"].(float64); ok {
		qty = v
	}
	if v, ok := config["contract_id"].(string); ok {
		contractID = v
	}
	return NewSMACross(fast, slow, qty, contractID)
}

// Init wires the strategy's order-submission context and builds its
// indicators.
func (s *SMACross) Init(ctx *engine.StrategyContext) {
	s.ctx = ctx
	s.fast = indicators.NewSMA(s.fastPeriod, 0)
	s.slow = indicators.NewSMA(s.slowPeriod, 0)
	s.position = types.Buy
	s.inMarket = false
}

// Name identifies the strategy in logs and the cache's strategy-indicator map.
func (s *SMACross) Name() string { return "sma_cross" }

// Version is bumped whenever the crossover logic changes in a way that
// would invalidate historical comparisons.
func (s *SMACross) Version() string { return "v1" }

// ProcessBar updates both SMAs with the bar close and submits a MARKET order
// on a crossover, reversing any existing opposite-side position.
func (s *SMACross) ProcessBar(bar types.Bar, subBars []types.SubBar, index int, history []types.Bar) (engine.ProcessResult, error) {
	prevFast, prevSlow := s.fast.Value(), s.slow.Value()
	prevReady := s.fast.IsReady() && s.slow.IsReady()

	s.fast.Update(bar)
	s.slow.Update(bar)

	result := engine.ProcessResult{
		Indicators: map[string]float64{
			"fast_sma": s.fast.Value(),
			"slow_sma": s.slow.Value(),
		},
	}

	if !prevReady || !s.fast.IsReady() || !s.slow.IsReady() {
		return result, nil
	}

	crossedUp := prevFast <= prevSlow && s.fast.Value() > s.slow.Value()
	crossedDown := prevFast >= prevSlow && s.fast.Value() < s.slow.Value()

	switch {
	case crossedUp && (!s.inMarket || s.position == types.Sell):
		s.enter(types.Buy)
		result.Signal = &engine.Signal{Name: "cross_up", Side: types.Buy, Price: bar.Close}
	case crossedDown && (!s.inMarket || s.position == types.Buy):
		s.enter(types.Sell)
		result.Signal = &engine.Signal{Name: "cross_down", Side: types.Sell, Price: bar.Close}
	}

	return result, nil
}

// enter flips the position by submitting a MARKET order double-sized when
// reversing an existing opposite-side position, single-sized when entering
// flat.
func (s *SMACross) enter(side types.OrderSide) {
	qty := s.quantity
	if s.inMarket && s.position != side {
		qty *= 2
	}
	log.Printf("[SMACross] submitting %s %v %s", side, qty, s.contractID)
	s.ctx.SubmitOrder(types.OrderDraft{
		ContractID: s.contractID,
		Side:       side,
		Type:       types.Market,
		Quantity:   qty,
		Role:       types.RoleEntry,
	})
	s.position = side
	s.inMarket = true
}

// Reset clears indicator windows and position tracking so the strategy can
// be reused across another engine Run.
func (s *SMACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.inMarket = false
}
