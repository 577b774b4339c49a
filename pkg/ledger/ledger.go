// Package ledger tracks the single open position per contract, applying
// fills to compute weighted-average entry price and realized/unrealized
// P&L with commission, and emitting ClosedTrade records. Grounded on the
// accounting shape of the teacher's BacktestStatistics.OnTrade, generalized
// from its "simplified, always-zero P&L" placeholder into the full
// weighted-average/realized-P&L algorithm spec.md §4.3 specifies.
package ledger

import (
	"fmt"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// OrderCanceller cancels resting orders tied to a position. Implemented by
// pkg/matching.OrderBook; wired in at construction, never a global.
type OrderCanceller interface {
	CancelAllByTrade(tradeID string) int
}

// Ledger owns the open positions (one per contract, single-asset engine)
// and the closed-trade log. Position ids are minted internally from a
// monotonic counter ("pos-1", "pos-2", ...), restarted by Reset.
type Ledger struct {
	canceller    OrderCanceller
	positions    map[string]*types.Position // keyed by contractId
	closedTrades []types.ClosedTrade
	nextTradeID  int64
	balance      float64
	initialBal   float64
}

// New creates a Ledger starting from initialBalance. canceller may be nil
// during tests that don't exercise OCO cancellation.
func New(initialBalance float64, canceller OrderCanceller) *Ledger {
	return &Ledger{
		canceller:  canceller,
		positions:  make(map[string]*types.Position),
		balance:    initialBalance,
		initialBal: initialBalance,
	}
}

// SetOrderCanceller wires the collaborator after construction, for callers
// that build the ledger and order book in either order.
func (l *Ledger) SetOrderCanceller(c OrderCanceller) {
	l.canceller = c
}

func (l *Ledger) newTradeID() string {
	l.nextTradeID++
	return fmt.Sprintf("pos-%d", l.nextTradeID)
}

// Balance returns the realized cash balance (initial balance plus every
// realized P&L and commission booked so far).
func (l *Ledger) Balance() float64 {
	return l.balance
}

// OpenPosition returns the open position for contractID, if any.
func (l *Ledger) OpenPosition(contractID string) (*types.Position, bool) {
	p, ok := l.positions[contractID]
	return p, ok
}

// PositionSize implements pkg/matching.PositionSizer: parentTradeID is the
// position id an SL/TP order references.
func (l *Ledger) PositionSize(parentTradeID string) (float64, bool) {
	for _, p := range l.positions {
		if p.ID == parentTradeID {
			return p.Size, true
		}
	}
	return 0, false
}

// ApplyFill updates position/ledger state for one fill and returns the
// position id it affected (newly minted if this fill opened a position) and
// the ClosedTrade emitted if the position was destroyed by this fill. A fill
// whose Role is STOP_LOSS/TAKE_PROFIT/EXIT but references no existing
// position is an orphan (spec.md §7's OrphanSLTP Fatal case) and is rejected
// rather than silently opening a phantom new position.
func (l *Ledger) ApplyFill(fill types.Fill) (positionID string, closed *types.ClosedTrade, err error) {
	pos, exists := l.positions[fill.ContractID]

	if !exists {
		if isExitRole(fill.Role) {
			return "", nil, fmt.Errorf("%w: fill for order %s (role %s) has no existing position in contract %s",
				types.ErrOrphanSLTP, fill.OrderID, fill.Role, fill.ContractID)
		}
		return l.open(fill), nil, nil
	}

	if pos.Side == fill.Side {
		l.add(pos, fill)
		return pos.ID, nil, nil
	}

	return pos.ID, l.reduce(pos, fill), nil
}

// isExitRole reports whether role only ever closes/reduces an existing
// position and can never legitimately open one.
func isExitRole(role types.OrderRole) bool {
	return role == types.RoleStopLoss || role == types.RoleTakeProfit || role == types.RoleExit
}

// open creates a new position from an opening fill.
func (l *Ledger) open(fill types.Fill) string {
	id := l.newTradeID()
	l.positions[fill.ContractID] = &types.Position{
		ID:             id,
		ContractID:     fill.ContractID,
		Side:           fill.Side,
		Size:           fill.Quantity,
		AverageEntry:   fill.Price,
		RealizedPnL:    -fill.Commission,
		LastUpdateTime: fill.Time,
		EntryTime:      fill.Time,
	}
	l.balance -= fill.Commission
	return id
}

// add applies a same-side fill: weighted-average entry, size increases,
// commission charged against realized P&L immediately.
func (l *Ledger) add(pos *types.Position, fill types.Fill) {
	totalCost := pos.AverageEntry*pos.Size + fill.Price*fill.Quantity
	pos.Size += fill.Quantity
	pos.AverageEntry = totalCost / pos.Size
	pos.LastUpdateTime = fill.Time
	pos.RealizedPnL -= fill.Commission
	l.balance -= fill.Commission
}

// reduce applies an opposite-side (or SL/TP/EXIT) fill against pos: realized
// P&L for the portion closed, size reduction, and destruction with a
// ClosedTrade when size reaches zero.
func (l *Ledger) reduce(pos *types.Position, fill types.Fill) *types.ClosedTrade {
	qty := fill.Quantity
	if qty > pos.Size {
		qty = pos.Size // an opposite-side fill larger than the position only closes it; the excess is not booked
	}

	var gross float64
	if pos.Side == types.Buy {
		gross = (fill.Price - pos.AverageEntry) * qty
	} else {
		gross = (pos.AverageEntry - fill.Price) * qty
	}
	net := gross - fill.Commission

	pos.RealizedPnL += net
	pos.Size -= qty
	pos.LastUpdateTime = fill.Time
	l.balance += net

	if pos.Size > 0 {
		return nil
	}

	trade := types.ClosedTrade{
		ID:           pos.ID,
		ContractID:   pos.ContractID,
		EntryTime:    pos.EntryTime,
		ExitTime:     fill.Time,
		EntryPrice:   pos.AverageEntry,
		ExitPrice:    fill.Price,
		Side:         pos.Side,
		Size:         fill.Quantity,
		Commission:   fill.Commission,
		ProfitOrLoss: pos.RealizedPnL,
		ExitReason:   types.ExitReasonForRole(fill.Role),
	}
	l.closedTrades = append(l.closedTrades, trade)
	delete(l.positions, pos.ContractID)

	if l.canceller != nil {
		l.canceller.CancelAllByTrade(pos.ID)
	}
	return &trade
}

// MarkToMarket recomputes the UnrealizedPnL of contractID's open position
// (if any) against price, to be called once per main bar after matching,
// against its close. Positions in other contracts are left unchanged.
func (l *Ledger) MarkToMarket(contractID string, price float64) {
	if pos, ok := l.positions[contractID]; ok {
		pos.UnrealizedPnL = pos.UnrealizedAt(price)
	}
}

// Equity returns balance + unrealized P&L across all open positions, the
// value sampled once per bar to build the equity curve.
func (l *Ledger) Equity() float64 {
	total := l.balance
	for _, p := range l.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// ClosedTrades returns the closed-trade log in emission order.
func (l *Ledger) ClosedTrades() []types.ClosedTrade {
	out := make([]types.ClosedTrade, len(l.closedTrades))
	copy(out, l.closedTrades)
	return out
}

// CloseAll force-closes every open position at price with the given
// ExitReason (used by the engine at the end of a replay, exitReason=MANUAL).
// Returns the ClosedTrades emitted, in unspecified order.
func (l *Ledger) CloseAll(price float64, t int64, reason types.ExitReason) []types.ClosedTrade {
	var closed []types.ClosedTrade
	for contractID, pos := range l.positions {
		exitSide := pos.Side.Opposite()
		fill := types.Fill{
			ContractID: contractID,
			Side:       exitSide,
			Price:      price,
			Quantity:   pos.Size,
			Time:       t,
			Role:       roleForExitReason(reason),
		}
		if trade := l.reduce(pos, fill); trade != nil {
			closed = append(closed, *trade)
		}
	}
	return closed
}

// roleForExitReason is the inverse of types.ExitReasonForRole, used only so
// CloseAll's synthetic fill round-trips back to the reason it was given.
// ExitReversal has no dedicated Role and maps through RoleExit/ExitManual;
// CloseAll is currently only invoked with ExitManual.
func roleForExitReason(reason types.ExitReason) types.OrderRole {
	switch reason {
	case types.ExitStopLoss:
		return types.RoleStopLoss
	case types.ExitTakeProfit:
		return types.RoleTakeProfit
	case types.ExitManual, types.ExitReversal:
		return types.RoleExit
	default:
		return types.RoleEntry
	}
}

// Reset restores initial balance and clears all positions/closed trades.
func (l *Ledger) Reset() {
	l.positions = make(map[string]*types.Position)
	l.closedTrades = nil
	l.balance = l.initialBal
	l.nextTradeID = 0
}
