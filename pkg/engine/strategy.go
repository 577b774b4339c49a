package engine

import (
	"github.com/taurusjun/barbacktest/pkg/bus"
	"github.com/taurusjun/barbacktest/pkg/types"
)

// Signal is an optional, named trading decision a strategy reports back
// from ProcessBar for cache/reporting purposes. Order submission itself
// happens separately, through the bus (via StrategyContext), matching
// spec.md §6's "strategies submit orders by publishing SubmitOrder
// messages" contract.
type Signal struct {
	Name  string
	Side  types.OrderSide
	Price float64
}

// ProcessResult is what Strategy.ProcessBar returns: an optional Signal plus
// the strategy's current named indicator values, snapshotted into the cache
// each bar.
type ProcessResult struct {
	Signal     *Signal
	Indicators map[string]float64
}

// StrategyContext is handed to a Strategy at Init and is its only channel
// for submitting or cancelling orders — strategies hold no direct reference
// to the OrderBook or Ledger, only to the bus, per spec.md §3's "strategies
// hold no engine-internal references; they communicate solely via the bus."
type StrategyContext struct {
	ID  string
	bus *bus.EventBus
}

// NewStrategyContext builds a StrategyContext bound to b. Exported so
// reference strategies (and their tests) outside this package can exercise
// SubmitOrder/CancelOrder against a bus of their own without going through
// a full Engine.
func NewStrategyContext(id string, b *bus.EventBus) *StrategyContext {
	return &StrategyContext{ID: id, bus: b}
}

// SubmitOrder publishes draft as a SubmitOrder event; the Engine's
// onSubmitOrder handler forwards it to the OrderBook synchronously.
func (c *StrategyContext) SubmitOrder(draft types.OrderDraft) {
	c.bus.Publish(types.SubmitOrder, c.ID, draft)
}

// CancelOrder publishes orderID as a CancelOrder event.
func (c *StrategyContext) CancelOrder(orderID string) {
	c.bus.Publish(types.CancelOrder, c.ID, orderID)
}

// Strategy is the pluggable contract the Engine drives bar by bar. See
// spec.md §6.
type Strategy interface {
	// Init is called once, while the Engine is IDLE, before the first bar.
	Init(ctx *StrategyContext)
	// ProcessBar is invoked once per bar with the full bar history up to
	// and including index. subBars may be nil.
	ProcessBar(bar types.Bar, subBars []types.SubBar, index int, history []types.Bar) (ProcessResult, error)
	// Reset clears any internal state (indicator windows, open signals).
	Reset()
	Name() string
	Version() string
}
