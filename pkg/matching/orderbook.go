// Package matching implements the order book: pending-order bookkeeping and
// bar-by-bar fill determination, including OCO stop-loss/take-profit pairing.
// It holds no lock and assumes a single-threaded caller, same as the
// teacher's in-process SimpleMatchEngine, but trades its tick-level bid/ask
// crossing for the spec's bar/sub-bar OHLC matching rules.
package matching

import (
	"fmt"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// PositionSizer lets the order book look up the current size of the position
// an SL/TP order protects, so a bracket order can be capped (and its
// remainder cancelled) if the position has already been partly closed by
// other means. Implemented by pkg/ledger.Ledger; wired in by the engine at
// construction time, never a global.
type PositionSizer interface {
	PositionSize(parentTradeID string) (float64, bool)
}

// MatchResult is what ProcessBar returns: the fills produced this bar plus
// any orders cancelled as a side effect (an OCO sibling, or the unfillable
// remainder of a size-capped bracket order). The spec's §4.2 describes the
// return as "Vec<FilledOrder>"; cancellations are surfaced alongside it so
// the engine can publish OrderCancelled for each before ProgressUpdate.
type MatchResult struct {
	Fills     []types.FilledOrder
	Cancelled []*types.Order
}

// OrderBook holds pending orders keyed by id in submission order (FIFO).
type OrderBook struct {
	tickSize     float64
	nextID       int64
	pending      map[string]*types.Order
	order        []string // pending order ids, oldest first
	positionSize PositionSizer
}

// New creates an OrderBook that rounds submitted prices to tickSize.
func New(tickSize float64) *OrderBook {
	return &OrderBook{
		tickSize: tickSize,
		pending:  make(map[string]*types.Order),
	}
}

// SetPositionSizer wires the collaborator used to cap SL/TP fills against
// the live position size. Must be called before the first ProcessBar.
func (b *OrderBook) SetPositionSizer(ps PositionSizer) {
	b.positionSize = ps
}

func (b *OrderBook) newID() string {
	b.nextID++
	return fmt.Sprintf("ord-%d", b.nextID)
}

// Submit validates and admits draft. An invalid draft yields a REJECTED
// order (not added to the pending book) and a non-nil error; the order is
// still returned so the caller can record it for reporting (spec.md §7).
func (b *OrderBook) Submit(draft types.OrderDraft) (*types.Order, error) {
	order := &types.Order{
		ID:                b.newID(),
		ParentTradeID:     draft.ParentTradeID,
		ContractID:        draft.ContractID,
		Side:              draft.Side,
		Type:              draft.Type,
		Quantity:          draft.Quantity,
		LimitPrice:        types.RoundToTick(draft.LimitPrice, b.tickSize),
		StopPrice:         types.RoundToTick(draft.StopPrice, b.tickSize),
		SubmittedTime:     draft.SubmittedTime,
		Status:            types.Pending,
		CommissionPerUnit: draft.CommissionPerUnit,
		Role:              draft.Role,
	}

	if err := draft.Validate(); err != nil {
		order.Status = types.Rejected
		order.Message = err.Error()
		return order, err
	}

	b.pending[order.ID] = order
	b.order = append(b.order, order.ID)
	return order, nil
}

// Cancel marks a pending order CANCELLED and removes it from the book.
// Returns false (not an error) if id does not reference a pending order.
func (b *OrderBook) Cancel(orderID string) bool {
	order, ok := b.pending[orderID]
	if !ok {
		return false
	}
	order.Status = types.Cancelled
	b.remove(orderID)
	return true
}

// CancelAllByTrade cancels every pending order referencing tradeID as its
// ParentTradeID (used when a position is destroyed). Returns the count
// cancelled.
func (b *OrderBook) CancelAllByTrade(tradeID string) int {
	return b.cancelWhere(func(o *types.Order) bool { return o.ParentTradeID == tradeID })
}

// CancelAllByContract cancels every pending order for contractID. An empty
// contractID matches every order (used to flatten the whole book).
func (b *OrderBook) CancelAllByContract(contractID string) int {
	return b.cancelWhere(func(o *types.Order) bool { return contractID == "" || o.ContractID == contractID })
}

func (b *OrderBook) cancelWhere(pred func(*types.Order) bool) int {
	var toCancel []string
	for _, id := range b.order {
		if pred(b.pending[id]) {
			toCancel = append(toCancel, id)
		}
	}
	for _, id := range toCancel {
		b.pending[id].Status = types.Cancelled
		b.remove(id)
	}
	return len(toCancel)
}

func (b *OrderBook) remove(orderID string) {
	delete(b.pending, orderID)
	for i, id := range b.order {
		if id == orderID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// ProcessBar matches pending orders against bar, refined by subBars if
// present, following the three-step sequence of spec.md §4.2: standalone
// stops, then market/limit, then OCO SL/TP pairs — repeated per sub-bar in
// time order, a fill in an earlier sub-bar making the order unavailable to
// later ones in the same main bar.
func (b *OrderBook) ProcessBar(bar types.Bar, subBars []types.SubBar) (MatchResult, error) {
	if err := bar.Validate(); err != nil {
		return MatchResult{}, err
	}
	result := MatchResult{}

	for _, sb := range types.SyntheticSubBars(bar, subBars) {
		b.matchStandaloneStops(sb, &result)
		b.matchMarketAndLimit(sb, &result)
		if err := b.matchOCOPairs(sb, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (b *OrderBook) matchStandaloneStops(sb types.SubBar, result *MatchResult) {
	for _, id := range append([]string(nil), b.order...) {
		order := b.pending[id]
		if order.Type != types.Stop || order.IsOCO() || !isLiveEntryExit(order) {
			continue
		}
		if stopTriggered(order, sb) {
			b.fillFull(order, order.StopPrice, sb.Time, result)
		}
	}
}

func (b *OrderBook) matchMarketAndLimit(sb types.SubBar, result *MatchResult) {
	for _, id := range append([]string(nil), b.order...) {
		order := b.pending[id]
		if order.IsOCO() || !isLiveEntryExit(order) {
			continue
		}
		switch order.Type {
		case types.Market:
			b.fillFull(order, sb.Open, sb.Time, result)
		case types.Limit:
			if limitTriggered(order, sb) {
				b.fillFull(order, order.LimitPrice, sb.Time, result)
			}
		}
	}
}

func isLiveEntryExit(o *types.Order) bool {
	return o.Status == types.Pending || o.Status == types.PartiallyFilled
}

// matchOCOPairs evaluates every parentTradeId with a pending SL and/or TP
// against sb, applying the open-tie-break and sibling cancellation rules.
func (b *OrderBook) matchOCOPairs(sb types.SubBar, result *MatchResult) error {
	groups := make(map[string]struct{ sl, tp *types.Order })
	for _, id := range b.order {
		order := b.pending[id]
		if !order.IsOCO() || !isLiveEntryExit(order) {
			continue
		}
		g := groups[order.ParentTradeID]
		if order.Role == types.RoleStopLoss {
			g.sl = order
		} else {
			g.tp = order
		}
		groups[order.ParentTradeID] = g
	}

	for parentTradeID, g := range groups {
		slHit := g.sl != nil && stopTriggered(g.sl, sb)
		tpHit := g.tp != nil && limitTriggered(g.tp, sb)

		var winner *types.Order
		switch {
		case slHit && tpHit:
			winner = resolveOCOTie(g.sl, g.tp, sb.Open)
		case slHit:
			winner = g.sl
		case tpHit:
			winner = g.tp
		default:
			continue
		}

		var sibling *types.Order
		if winner == g.sl {
			sibling = g.tp
		} else {
			sibling = g.sl
		}

		fullQty := winner.Remaining()
		qty := fullQty
		if b.positionSize != nil {
			size, ok := b.positionSize.PositionSize(parentTradeID)
			if !ok {
				return fmt.Errorf("%w: order %s references non-existent position %s",
					types.ErrOrphanSLTP, winner.ID, parentTradeID)
			}
			if size < qty {
				qty = size
			}
		}
		if qty <= 0 {
			return fmt.Errorf("%w: order %s has no remaining quantity to fill against position %s",
				types.ErrInconsistentFill, winner.ID, parentTradeID)
		}

		fillPrice := winner.StopPrice
		if winner.Role == types.RoleTakeProfit {
			fillPrice = winner.LimitPrice
		}
		b.fillQuantity(winner, fillPrice, qty, sb.Time, result)
		if qty < fullQty && winner.Status != types.Filled {
			// Position was smaller than the bracket order: the matched
			// portion is filled, the rest can never be filled against this
			// position and is cancelled rather than left pending.
			winner.Status = types.Cancelled
			b.remove(winner.ID)
			result.Cancelled = append(result.Cancelled, winner)
		}

		if sibling != nil {
			sibling.Status = types.Cancelled
			b.remove(sibling.ID)
			result.Cancelled = append(result.Cancelled, sibling)
		}
	}
	return nil
}

// resolveOCOTie implements spec.md §4.2's disambiguation when both the SL
// and TP of a bracket trigger within the same bar: whichever price the
// bar's open has already passed wins; if open sits strictly between them,
// the stop-loss takes precedence.
func resolveOCOTie(sl, tp *types.Order, open float64) *types.Order {
	if slBeyondOpen(sl, open) {
		return sl
	}
	if tpBeyondOpen(tp, open) {
		return tp
	}
	return sl
}

func stopTriggered(o *types.Order, sb types.SubBar) bool {
	if o.Side == types.Buy {
		return sb.High >= o.StopPrice
	}
	return sb.Low <= o.StopPrice
}

func limitTriggered(o *types.Order, sb types.SubBar) bool {
	if o.Side == types.Buy {
		return sb.Low <= o.LimitPrice
	}
	return sb.High >= o.LimitPrice
}

// slBeyondOpen reports whether the bar's open price already sits on the
// losing side of sl's stop (i.e. the bar gapped past it at open).
func slBeyondOpen(sl *types.Order, open float64) bool {
	if sl.Side == types.Buy {
		return open >= sl.StopPrice
	}
	return open <= sl.StopPrice
}

// tpBeyondOpen reports whether the bar's open price already sits on the
// winning side of tp's limit.
func tpBeyondOpen(tp *types.Order, open float64) bool {
	if tp.Side == types.Buy {
		return open <= tp.LimitPrice
	}
	return open >= tp.LimitPrice
}

func (b *OrderBook) fillFull(order *types.Order, price float64, t int64, result *MatchResult) {
	b.fillQuantity(order, price, order.Remaining(), t, result)
}

func (b *OrderBook) fillQuantity(order *types.Order, price, qty float64, t int64, result *MatchResult) {
	order.FilledQuantity += qty
	order.FilledPrice = price
	order.FilledTime = t
	if order.FilledQuantity >= order.Quantity {
		order.Status = types.Filled
		b.remove(order.ID)
	} else {
		order.Status = types.PartiallyFilled
	}

	result.Fills = append(result.Fills, types.FilledOrder{
		Order: order,
		Fill: types.Fill{
			OrderID:       order.ID,
			ContractID:    order.ContractID,
			Side:          order.Side,
			Price:         price,
			Quantity:      qty,
			Time:          t,
			Role:          order.Role,
			Commission:    order.CommissionPerUnit * qty,
			ParentTradeID: order.ParentTradeID,
		},
	})
}
