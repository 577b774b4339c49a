package types

import (
	"errors"
	"testing"
)

func TestOrderDraftValidate(t *testing.T) {
	cases := []struct {
		name    string
		draft   OrderDraft
		wantErr bool
	}{
		{"market buy ok", OrderDraft{Quantity: 1, Type: Market, Side: Buy}, false},
		{"zero quantity", OrderDraft{Quantity: 0, Type: Market}, true},
		{"negative quantity", OrderDraft{Quantity: -1, Type: Market}, true},
		{"limit without price", OrderDraft{Quantity: 1, Type: Limit}, true},
		{"limit with price ok", OrderDraft{Quantity: 1, Type: Limit, LimitPrice: 100}, false},
		{"stop without price", OrderDraft{Quantity: 1, Type: Stop}, true},
		{"sl must be stop", OrderDraft{Quantity: 1, Type: Limit, LimitPrice: 100, Role: RoleStopLoss, ParentTradeID: "p1"}, true},
		{"tp must be limit", OrderDraft{Quantity: 1, Type: Stop, StopPrice: 100, Role: RoleTakeProfit, ParentTradeID: "p1"}, true},
		{"sl without parent", OrderDraft{Quantity: 1, Type: Stop, StopPrice: 100, Role: RoleStopLoss}, true},
		{"sl ok", OrderDraft{Quantity: 1, Type: Stop, StopPrice: 100, Role: RoleStopLoss, ParentTradeID: "p1"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.draft.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}

func TestOrderRemaining(t *testing.T) {
	o := &Order{Quantity: 10, FilledQuantity: 4}
	if got := o.Remaining(); got != 6 {
		t.Fatalf("Remaining() = %v, want 6", got)
	}
}

func TestOrderIsOCO(t *testing.T) {
	if !(&Order{Role: RoleStopLoss}).IsOCO() {
		t.Fatal("expected STOP_LOSS to be OCO")
	}
	if !(&Order{Role: RoleTakeProfit}).IsOCO() {
		t.Fatal("expected TAKE_PROFIT to be OCO")
	}
	if (&Order{Role: RoleEntry}).IsOCO() {
		t.Fatal("expected ENTRY to not be OCO")
	}
}
