package matching

import (
	"errors"
	"testing"

	"github.com/taurusjun/barbacktest/pkg/types"
)

func TestSubmitRejectsInvalidQuantity(t *testing.T) {
	ob := New(0.25)
	order, err := ob.Submit(types.OrderDraft{Quantity: 0, Type: types.Market, Side: types.Buy})
	if err == nil {
		t.Fatal("expected error for zero quantity")
	}
	if order.Status != types.Rejected {
		t.Fatalf("expected REJECTED, got %s", order.Status)
	}
	if order.Message == "" {
		t.Fatal("expected rejection message to be populated")
	}
}

func TestMarketBuyFillsAtBarOpen(t *testing.T) {
	ob := New(0)
	order, err := ob.Submit(types.OrderDraft{Quantity: 1, Type: types.Market, Side: types.Buy, ContractID: "ES"})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	bar := types.Bar{Time: 1, Open: 100, High: 105, Low: 95, Close: 102}
	result, err := ob.ProcessBar(bar, nil)
	if err != nil {
		t.Fatalf("ProcessBar error: %v", err)
	}
	if len(result.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(result.Fills))
	}
	fo := result.Fills[0]
	if fo.Fill.Price != 100 {
		t.Fatalf("expected fill at bar open 100, got %v", fo.Fill.Price)
	}
	if order.Status != types.Filled {
		t.Fatalf("expected FILLED, got %s", order.Status)
	}
}

func TestLimitFillsAtLimitPriceNotSubBarLow(t *testing.T) {
	ob := New(0)
	ob.Submit(types.OrderDraft{Quantity: 1, Type: types.Limit, Side: types.Buy, LimitPrice: 99.5, ContractID: "ES"})

	bar := types.Bar{Time: 1, Open: 100, High: 101, Low: 99, Close: 100.5}
	subBars := []types.SubBar{{Time: 1, Open: 100, High: 101, Low: 99, Close: 100.5}}
	result, err := ob.ProcessBar(bar, subBars)
	if err != nil {
		t.Fatalf("ProcessBar error: %v", err)
	}
	if len(result.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(result.Fills))
	}
	if result.Fills[0].Fill.Price != 99.5 {
		t.Fatalf("expected fill at limit price 99.5, got %v", result.Fills[0].Fill.Price)
	}
}

func TestLimitBelowRangeDoesNotFill(t *testing.T) {
	ob := New(0)
	order, _ := ob.Submit(types.OrderDraft{Quantity: 1, Type: types.Limit, Side: types.Buy, LimitPrice: 90, ContractID: "ES"})

	bar := types.Bar{Time: 1, Open: 100, High: 105, Low: 95, Close: 102}
	result, err := ob.ProcessBar(bar, nil)
	if err != nil {
		t.Fatalf("ProcessBar error: %v", err)
	}
	if len(result.Fills) != 0 {
		t.Fatalf("expected no fills, got %d", len(result.Fills))
	}
	if order.Status != types.Pending {
		t.Fatalf("expected order to remain PENDING, got %s", order.Status)
	}
}

type fixedPositionSizer float64

func (f fixedPositionSizer) PositionSize(string) (float64, bool) { return float64(f), true }

func TestOCOStopLossPrecedenceOnOpenBetween(t *testing.T) {
	ob := New(0)
	ob.SetPositionSizer(fixedPositionSizer(1))

	sl, _ := ob.Submit(types.OrderDraft{
		Quantity: 1, Type: types.Stop, Side: types.Sell, StopPrice: 100,
		Role: types.RoleStopLoss, ParentTradeID: "pos-1", ContractID: "ES",
	})
	tp, _ := ob.Submit(types.OrderDraft{
		Quantity: 1, Type: types.Limit, Side: types.Sell, LimitPrice: 102,
		Role: types.RoleTakeProfit, ParentTradeID: "pos-1", ContractID: "ES",
	})

	bar := types.Bar{Time: 1, Open: 101, High: 103, Low: 99, Close: 101}
	result, err := ob.ProcessBar(bar, nil)
	if err != nil {
		t.Fatalf("ProcessBar error: %v", err)
	}
	if len(result.Fills) != 1 {
		t.Fatalf("expected exactly 1 fill, got %d", len(result.Fills))
	}
	if result.Fills[0].Fill.Price != 100 {
		t.Fatalf("expected SL fill at 100, got %v", result.Fills[0].Fill.Price)
	}
	if sl.Status != types.Filled {
		t.Fatalf("expected SL order FILLED, got %s", sl.Status)
	}
	if len(result.Cancelled) != 1 || result.Cancelled[0].ID != tp.ID {
		t.Fatalf("expected TP order cancelled, got %+v", result.Cancelled)
	}
	if tp.Status != types.Cancelled {
		t.Fatalf("expected TP status CANCELLED, got %s", tp.Status)
	}
}

func TestOCOCapsFillToRemainingPositionSize(t *testing.T) {
	ob := New(0)
	ob.SetPositionSizer(fixedPositionSizer(0.5))

	sl, _ := ob.Submit(types.OrderDraft{
		Quantity: 1, Type: types.Stop, Side: types.Sell, StopPrice: 100,
		Role: types.RoleStopLoss, ParentTradeID: "pos-1", ContractID: "ES",
	})

	bar := types.Bar{Time: 1, Open: 101, High: 102, Low: 95, Close: 97}
	result, err := ob.ProcessBar(bar, nil)
	if err != nil {
		t.Fatalf("ProcessBar error: %v", err)
	}
	if len(result.Fills) != 1 || result.Fills[0].Fill.Quantity != 0.5 {
		t.Fatalf("expected capped fill of 0.5, got %+v", result.Fills)
	}
	if sl.Status != types.Cancelled {
		t.Fatalf("expected order to end CANCELLED after the capped fill, got %s", sl.Status)
	}
}

type missingPositionSizer struct{}

func (missingPositionSizer) PositionSize(string) (float64, bool) { return 0, false }

func TestOCOOrphanSLTPReturnsErrorAndHaltsMatching(t *testing.T) {
	ob := New(0)
	ob.SetPositionSizer(missingPositionSizer{})

	ob.Submit(types.OrderDraft{
		Quantity: 1, Type: types.Stop, Side: types.Sell, StopPrice: 100,
		Role: types.RoleStopLoss, ParentTradeID: "no-such-position", ContractID: "ES",
	})

	bar := types.Bar{Time: 1, Open: 101, High: 102, Low: 95, Close: 97}
	result, err := ob.ProcessBar(bar, nil)
	if err == nil {
		t.Fatal("expected an error when an SL/TP order references a non-existent position")
	}
	if !errors.Is(err, types.ErrOrphanSLTP) {
		t.Fatalf("expected ErrOrphanSLTP, got %v", err)
	}
	if len(result.Fills) != 0 {
		t.Fatalf("expected no fills to be produced, got %d", len(result.Fills))
	}
}

func TestCancelUnknownOrderReturnsFalse(t *testing.T) {
	ob := New(0)
	if ob.Cancel("does-not-exist") {
		t.Fatal("expected Cancel on unknown id to return false")
	}
}

func TestCancelAllByTrade(t *testing.T) {
	ob := New(0)
	ob.Submit(types.OrderDraft{Quantity: 1, Type: types.Stop, Side: types.Sell, StopPrice: 100, Role: types.RoleStopLoss, ParentTradeID: "pos-1"})
	ob.Submit(types.OrderDraft{Quantity: 1, Type: types.Limit, Side: types.Sell, LimitPrice: 110, Role: types.RoleTakeProfit, ParentTradeID: "pos-1"})
	ob.Submit(types.OrderDraft{Quantity: 1, Type: types.Market, Side: types.Buy, ParentTradeID: "pos-2"})

	if n := ob.CancelAllByTrade("pos-1"); n != 2 {
		t.Fatalf("expected 2 cancelled, got %d", n)
	}
	if n := ob.CancelAllByTrade("pos-2"); n != 1 {
		t.Fatalf("expected 1 cancelled, got %d", n)
	}
}

func TestSubBarIterationMakesFilledOrderUnavailableLater(t *testing.T) {
	ob := New(0)
	ob.Submit(types.OrderDraft{Quantity: 1, Type: types.Limit, Side: types.Buy, LimitPrice: 100, ContractID: "ES"})

	bar := types.Bar{Time: 1, Open: 100, High: 103, Low: 98, Close: 101}
	subBars := []types.SubBar{
		{Time: 1, Open: 100, High: 101, Low: 99, Close: 100.5},
		{Time: 2, Open: 100.5, High: 103, Low: 100, Close: 101},
	}
	result, err := ob.ProcessBar(bar, subBars)
	if err != nil {
		t.Fatalf("ProcessBar error: %v", err)
	}
	if len(result.Fills) != 1 {
		t.Fatalf("expected exactly 1 fill across both sub-bars, got %d", len(result.Fills))
	}
}
