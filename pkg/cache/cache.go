// Package cache implements StateCache, the authoritative projection of
// everything the bus carries: bars, orders, positions, per-strategy
// indicator snapshots, and the equity curve. It subscribes to the bus and
// publishes nothing back — a pure read-side projection, per spec.md §4.4.
package cache

import (
	"sort"

	"github.com/taurusjun/barbacktest/pkg/bus"
	"github.com/taurusjun/barbacktest/pkg/types"
)

// BarKey identifies a bar series by symbol and timeframe.
type BarKey struct {
	Symbol    string
	Timeframe string
}

// StrategyState holds one strategy's latest indicator values and its
// recorded signal history, keyed flat (strategy id -> indicator name ->
// value) per spec.md §9's "flat two-level mapping, not polymorphic
// indicator objects" design note.
type StrategyState struct {
	Indicators map[string]float64
	Signals    []string
}

// StateCache owns the authoritative maps of bars/orders/positions and the
// equity curve. Construct once per Engine and subscribe it to that Engine's
// EventBus; it never touches the OrderBook or Ledger directly, only their
// published events.
type StateCache struct {
	initialBalance float64
	balance        float64

	bars map[BarKey][]types.Bar

	ordersByID     map[string]*types.Order
	ordersByStatus map[types.OrderStatus]map[string]*types.Order

	openPositions   map[string]*types.Position // by contractId
	closedPositions []types.ClosedTrade

	strategies map[string]*StrategyState

	equityCurve []float64

	subs []*bus.Subscription
}

// New creates an empty StateCache with the given starting balance.
func New(initialBalance float64) *StateCache {
	return &StateCache{
		initialBalance: initialBalance,
		balance:        initialBalance,
		bars:           make(map[BarKey][]types.Bar),
		ordersByID:     make(map[string]*types.Order),
		ordersByStatus: make(map[types.OrderStatus]map[string]*types.Order),
		openPositions:  make(map[string]*types.Position),
		strategies:     make(map[string]*StrategyState),
	}
}

// Subscribe registers the cache's projection handlers on b. Call once after
// construction; Release (via Close) before discarding the cache.
func (c *StateCache) Subscribe(b *bus.EventBus) {
	c.subs = append(c.subs,
		b.Subscribe(types.BarReceived, c.onBar),
		b.Subscribe(types.OrderSubmitted, c.onOrderUpsert),
		b.Subscribe(types.OrderFilled, c.onOrderUpsert),
		b.Subscribe(types.OrderCancelled, c.onOrderUpsert),
		b.Subscribe(types.OrderRejected, c.onOrderUpsert),
		b.Subscribe(types.PositionOpened, c.onPositionUpsert),
		b.Subscribe(types.PositionClosed, c.onPositionClosed),
		b.Subscribe(types.SignalGenerated, c.onSignal),
	)
}

// Close releases every subscription registered by Subscribe.
func (c *StateCache) Close() {
	for _, s := range c.subs {
		s.Release()
	}
	c.subs = nil
}

// BarEvent is the payload published on BarReceived: a bar tagged with the
// symbol/timeframe it belongs to, since a raw types.Bar carries neither.
type BarEvent struct {
	Symbol    string
	Timeframe string
	Bar       types.Bar
}

func (c *StateCache) onBar(msg types.Message) {
	ev, ok := msg.Payload.(BarEvent)
	if !ok {
		return
	}
	c.RecordBar(ev.Symbol, ev.Timeframe, ev.Bar)
}

// RecordBar upserts one bar into the (symbol, timeframe) series.
func (c *StateCache) RecordBar(symbol, timeframe string, bar types.Bar) {
	key := BarKey{Symbol: symbol, Timeframe: timeframe}
	c.bars[key] = append(c.bars[key], bar)
}

// Bars returns the recorded bar history for a key, oldest first.
func (c *StateCache) Bars(symbol, timeframe string) []types.Bar {
	return c.bars[BarKey{Symbol: symbol, Timeframe: timeframe}]
}

func (c *StateCache) onOrderUpsert(msg types.Message) {
	order, ok := msg.Payload.(*types.Order)
	if !ok {
		return
	}
	c.RecordOrder(order)
}

// RecordOrder upserts order into both the by-id and by-status projections,
// removing it from any stale status bucket first.
func (c *StateCache) RecordOrder(order *types.Order) {
	if prev, ok := c.ordersByID[order.ID]; ok && prev.Status != order.Status {
		delete(c.ordersByStatus[prev.Status], order.ID)
	}
	c.ordersByID[order.ID] = order
	bucket, ok := c.ordersByStatus[order.Status]
	if !ok {
		bucket = make(map[string]*types.Order)
		c.ordersByStatus[order.Status] = bucket
	}
	bucket[order.ID] = order
}

// Order returns an order by id.
func (c *StateCache) Order(id string) (*types.Order, bool) {
	o, ok := c.ordersByID[id]
	return o, ok
}

// OrdersByStatus returns every tracked order currently in status, in no
// particular order.
func (c *StateCache) OrdersByStatus(status types.OrderStatus) []*types.Order {
	bucket := c.ordersByStatus[status]
	out := make([]*types.Order, 0, len(bucket))
	for _, o := range bucket {
		out = append(out, o)
	}
	return out
}

func (c *StateCache) onPositionUpsert(msg types.Message) {
	if pos, ok := msg.Payload.(*types.Position); ok {
		c.RecordOpenPosition(pos)
	}
}

// RecordOpenPosition upserts an open position into the projection.
func (c *StateCache) RecordOpenPosition(pos *types.Position) {
	c.openPositions[pos.ContractID] = pos
}

func (c *StateCache) onPositionClosed(msg types.Message) {
	if trade, ok := msg.Payload.(types.ClosedTrade); ok {
		c.RecordClosedTrade(trade)
	}
}

// RecordClosedTrade appends trade to the closed log and drops the matching
// open position, if still tracked.
func (c *StateCache) RecordClosedTrade(trade types.ClosedTrade) {
	c.closedPositions = append(c.closedPositions, trade)
	delete(c.openPositions, trade.ContractID)
}

// OpenPositions returns every currently open position.
func (c *StateCache) OpenPositions() []*types.Position {
	out := make([]*types.Position, 0, len(c.openPositions))
	for _, p := range c.openPositions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractID < out[j].ContractID })
	return out
}

// ClosedTrades returns the closed-trade log in recording order.
func (c *StateCache) ClosedTrades() []types.ClosedTrade {
	out := make([]types.ClosedTrade, len(c.closedPositions))
	copy(out, c.closedPositions)
	return out
}

func (c *StateCache) onSignal(msg types.Message) {
	sig, ok := msg.Payload.(Signal)
	if !ok {
		return
	}
	c.RecordIndicators(sig.StrategyID, sig.Indicators)
	if sig.Name != "" {
		c.recordSignalName(sig.StrategyID, sig.Name)
	}
}

// Signal is the payload published on SignalGenerated: a strategy's latest
// indicator snapshot plus an optional named signal for the cache to log.
type Signal struct {
	StrategyID string
	Name       string
	Indicators map[string]float64
}

func (c *StateCache) strategyState(id string) *StrategyState {
	st, ok := c.strategies[id]
	if !ok {
		st = &StrategyState{Indicators: make(map[string]float64)}
		c.strategies[id] = st
	}
	return st
}

// RecordIndicators snapshots a strategy's named indicator values, replacing
// any previous snapshot for the same name.
func (c *StateCache) RecordIndicators(strategyID string, values map[string]float64) {
	st := c.strategyState(strategyID)
	for k, v := range values {
		st.Indicators[k] = v
	}
}

func (c *StateCache) recordSignalName(strategyID, name string) {
	st := c.strategyState(strategyID)
	st.Signals = append(st.Signals, name)
}

// StrategyIndicators returns a copy of strategyID's latest indicator
// snapshot.
func (c *StateCache) StrategyIndicators(strategyID string) map[string]float64 {
	st, ok := c.strategies[strategyID]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(st.Indicators))
	for k, v := range st.Indicators {
		out[k] = v
	}
	return out
}

// RecordEquitySample appends one value to the equity curve. The engine
// calls this once per main bar, after matching, per spec.md §9.
func (c *StateCache) RecordEquitySample(equity float64) {
	c.equityCurve = append(c.equityCurve, equity)
}

// EquityCurve returns the sampled equity values in bar order.
func (c *StateCache) EquityCurve() []float64 {
	out := make([]float64, len(c.equityCurve))
	copy(out, c.equityCurve)
	return out
}

// SetBalance updates the cache's view of realized cash balance, sampled
// alongside each equity snapshot.
func (c *StateCache) SetBalance(balance float64) {
	c.balance = balance
}

// Balance returns the last recorded realized cash balance.
func (c *StateCache) Balance() float64 {
	return c.balance
}

// Reset restores initial balance and clears every collection. Idempotent:
// calling twice yields the same empty state as calling once.
func (c *StateCache) Reset() {
	c.balance = c.initialBalance
	c.bars = make(map[BarKey][]types.Bar)
	c.ordersByID = make(map[string]*types.Order)
	c.ordersByStatus = make(map[types.OrderStatus]map[string]*types.Order)
	c.openPositions = make(map[string]*types.Position)
	c.closedPositions = nil
	c.strategies = make(map[string]*StrategyState)
	c.equityCurve = nil
}
