package types

import "fmt"

// OrderDraft is the caller-supplied request handed to OrderBook.Submit. It
// carries no id, status or fill state — those are assigned on submission.
type OrderDraft struct {
	ParentTradeID     string
	ContractID        string
	Side              OrderSide
	Type              OrderType
	Quantity          float64
	LimitPrice        float64 // meaningful only when Type == Limit
	StopPrice         float64 // meaningful only when Type == Stop
	CommissionPerUnit float64
	Role              OrderRole
	SubmittedTime     int64
}

// Order is a resting or completed order. See spec.md §3 for the full
// invariant list (LIMIT carries LimitPrice, STOP carries StopPrice, SL is
// STOP, TP is LIMIT, SL/TP reference a ParentTradeID, FilledQuantity <=
// Quantity, status transitions are monotone).
type Order struct {
	ID                string
	ParentTradeID     string
	ContractID        string
	Side              OrderSide
	Type              OrderType
	Quantity          float64
	LimitPrice        float64
	StopPrice         float64
	SubmittedTime     int64
	Status            OrderStatus
	FilledQuantity    float64
	FilledPrice       float64
	FilledTime        int64
	CommissionPerUnit float64
	Role              OrderRole
	Message           string // populated on REJECTED
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

// IsOCO reports whether this order participates in an OCO bracket (SL or TP).
func (o *Order) IsOCO() bool {
	return o.Role == RoleStopLoss || o.Role == RoleTakeProfit
}

// Validate checks the structural invariants a draft must satisfy before an
// Order is created from it. Returns ErrInvalidOrder wrapped with detail.
func (d OrderDraft) Validate() error {
	if d.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0, got %v", ErrInvalidOrder, d.Quantity)
	}
	switch d.Type {
	case Limit:
		if d.LimitPrice <= 0 {
			return fmt.Errorf("%w: LIMIT order requires limitPrice", ErrInvalidOrder)
		}
	case Stop:
		if d.StopPrice <= 0 {
			return fmt.Errorf("%w: STOP order requires stopPrice", ErrInvalidOrder)
		}
	}
	if d.Role == RoleStopLoss && d.Type != Stop {
		return fmt.Errorf("%w: STOP_LOSS orders must be STOP type", ErrInvalidOrder)
	}
	if d.Role == RoleTakeProfit && d.Type != Limit {
		return fmt.Errorf("%w: TAKE_PROFIT orders must be LIMIT type", ErrInvalidOrder)
	}
	if (d.Role == RoleStopLoss || d.Role == RoleTakeProfit) && d.ParentTradeID == "" {
		return fmt.Errorf("%w: SL/TP order requires parentTradeId", ErrInvalidOrder)
	}
	return nil
}

// Fill records one match against an Order. A single Order may accumulate
// several Fills across sub-bars/bars (partial fills).
type Fill struct {
	OrderID    string
	ContractID string
	Side       OrderSide
	Price      float64
	Quantity   float64
	Time       int64
	Role       OrderRole
	Commission float64
	// ParentTradeID is copied from the order for convenience when the ledger
	// needs to attribute the fill to an existing position.
	ParentTradeID string
}

// FilledOrder pairs the (possibly partially-filled) Order with the Fill that
// OrderBook.ProcessBar just produced for it. ProcessBar returns these in its
// MatchResult's Fills.
type FilledOrder struct {
	Order *Order
	Fill  Fill
}
