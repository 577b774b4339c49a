package engine

import (
	"testing"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// buyOnceStrategy submits one MARKET BUY on the first bar it sees and does
// nothing afterward; used to exercise the engine's bar loop and the final
// forced close at the last bar.
type buyOnceStrategy struct {
	ctx       *StrategyContext
	submitted bool
}

func (s *buyOnceStrategy) Init(ctx *StrategyContext) { s.ctx = ctx }
func (s *buyOnceStrategy) Reset()                    { s.submitted = false }
func (s *buyOnceStrategy) Name() string              { return "buy-once" }
func (s *buyOnceStrategy) Version() string           { return "v1" }

func (s *buyOnceStrategy) ProcessBar(bar types.Bar, subBars []types.SubBar, index int, history []types.Bar) (ProcessResult, error) {
	if !s.submitted {
		s.submitted = true
		s.ctx.SubmitOrder(types.OrderDraft{
			Quantity: 1, Type: types.Market, Side: types.Buy, ContractID: "ES",
		})
	}
	return ProcessResult{Indicators: map[string]float64{"seen_bars": float64(index + 1)}}, nil
}

// bracketStrategy submits one MARKET BUY entry on the first bar, then —
// reacting to the PositionOpened event the engine publishes once the entry
// fills, exactly as spec.md §6's "strategies communicate solely via the bus"
// contract allows an external subscriber to do — submits a paired
// STOP_LOSS/TAKE_PROFIT bracket against the new position. This exercises the
// OCO pathway (pkg/matching's matchOCOPairs, pkg/ledger's exit-role
// handling) end to end through a live Engine.Start() run, rather than only
// at the pkg/matching/pkg/ledger unit level.
type bracketStrategy struct {
	ctx        *StrategyContext
	submitted  bool
	stopPrice  float64
	limitPrice float64
}

func (s *bracketStrategy) Init(ctx *StrategyContext) {
	s.ctx = ctx
	ctx.bus.Subscribe(types.PositionOpened, func(msg types.Message) {
		pos, ok := msg.Payload.(*types.Position)
		if !ok {
			return
		}
		exitSide := types.Sell
		if pos.Side == types.Sell {
			exitSide = types.Buy
		}
		s.ctx.SubmitOrder(types.OrderDraft{
			Quantity: pos.Size, Type: types.Stop, Side: exitSide, StopPrice: s.stopPrice,
			Role: types.RoleStopLoss, ParentTradeID: pos.ID, ContractID: pos.ContractID,
		})
		s.ctx.SubmitOrder(types.OrderDraft{
			Quantity: pos.Size, Type: types.Limit, Side: exitSide, LimitPrice: s.limitPrice,
			Role: types.RoleTakeProfit, ParentTradeID: pos.ID, ContractID: pos.ContractID,
		})
	})
}
func (s *bracketStrategy) Reset()          { s.submitted = false }
func (s *bracketStrategy) Name() string    { return "bracket" }
func (s *bracketStrategy) Version() string { return "v1" }

func (s *bracketStrategy) ProcessBar(bar types.Bar, subBars []types.SubBar, index int, history []types.Bar) (ProcessResult, error) {
	if !s.submitted {
		s.submitted = true
		s.ctx.SubmitOrder(types.OrderDraft{
			Quantity: 1, Type: types.Market, Side: types.Buy, ContractID: "ES",
		})
	}
	return ProcessResult{}, nil
}

func bracketBars() []types.Bar {
	return []types.Bar{
		{Time: 1, Open: 100, High: 105, Low: 95, Close: 102},
		{Time: 2, Open: 103, High: 111, Low: 100, Close: 108},
		{Time: 3, Open: 108, High: 110, Low: 106, Close: 109},
	}
}

func TestBracketOCOFillsTakeProfitAndCancelsStopLossLive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbol = "ES"
	e := New(cfg)
	if err := e.LoadBars(bracketBars(), nil); err != nil {
		t.Fatalf("LoadBars error: %v", err)
	}

	var cancelled []*types.Order
	e.Bus.Subscribe(types.OrderCancelled, func(msg types.Message) {
		if o, ok := msg.Payload.(*types.Order); ok {
			cancelled = append(cancelled, o)
		}
	})

	strat := &bracketStrategy{stopPrice: 95, limitPrice: 110}
	if err := e.AddStrategy(strat); err != nil {
		t.Fatalf("AddStrategy error: %v", err)
	}

	result, err := e.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if e.State() != types.StateStopped {
		t.Fatalf("expected STOPPED after a full run, got %s", e.State())
	}
	if len(result.ClosedTrades) != 1 {
		t.Fatalf("expected 1 closed trade from the take-profit fill, got %d", len(result.ClosedTrades))
	}
	trade := result.ClosedTrades[0]
	if trade.ExitReason != types.ExitTakeProfit {
		t.Fatalf("expected TAKE_PROFIT exit reason, got %s", trade.ExitReason)
	}
	if trade.EntryPrice != 100 {
		t.Fatalf("expected entry at bar-1 open 100, got %v", trade.EntryPrice)
	}
	if trade.ExitPrice != 110 {
		t.Fatalf("expected exit at take-profit price 110, got %v", trade.ExitPrice)
	}
	if len(cancelled) != 1 || cancelled[0].Role != types.RoleStopLoss {
		t.Fatalf("expected the stop-loss sibling order cancelled as the OCO loser, got %+v", cancelled)
	}
}

func testBars() []types.Bar {
	return []types.Bar{
		{Time: 1, Open: 100, High: 105, Low: 95, Close: 102},
		{Time: 2, Open: 102, High: 106, Low: 101, Close: 104},
		{Time: 3, Open: 104, High: 108, Low: 103, Close: 107},
	}
}

func TestAddStrategyOnlyWhileIdle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbol = "ES"
	e := New(cfg)
	if err := e.LoadBars(testBars(), nil); err != nil {
		t.Fatalf("LoadBars error: %v", err)
	}
	if err := e.AddStrategy(&buyOnceStrategy{}); err != nil {
		t.Fatalf("AddStrategy error: %v", err)
	}

	e.state = types.StateRunning
	if err := e.AddStrategy(&buyOnceStrategy{}); err == nil {
		t.Fatal("expected error adding strategy while RUNNING")
	}
}

func TestStartRequiresStrategyAndBars(t *testing.T) {
	e := New(DefaultConfig())
	if _, err := e.Start(); err != types.ErrNoStrategy {
		t.Fatalf("expected ErrNoStrategy, got %v", err)
	}

	e2 := New(DefaultConfig())
	e2.AddStrategy(&buyOnceStrategy{})
	if _, err := e2.Start(); err != types.ErrNoBars {
		t.Fatalf("expected ErrNoBars, got %v", err)
	}
}

func TestFullRunClosesFinalPositionManually(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbol = "ES"
	e := New(cfg)
	if err := e.LoadBars(testBars(), nil); err != nil {
		t.Fatalf("LoadBars error: %v", err)
	}
	if err := e.AddStrategy(&buyOnceStrategy{}); err != nil {
		t.Fatalf("AddStrategy error: %v", err)
	}

	result, err := e.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if result.BarsProcessed != 3 {
		t.Fatalf("expected 3 bars processed, got %d", result.BarsProcessed)
	}
	if len(result.ClosedTrades) != 1 {
		t.Fatalf("expected 1 closed trade (forced close), got %d", len(result.ClosedTrades))
	}
	trade := result.ClosedTrades[0]
	if trade.ExitReason != types.ExitManual {
		t.Fatalf("expected MANUAL exit reason, got %s", trade.ExitReason)
	}
	if trade.EntryPrice != 100 {
		t.Fatalf("expected entry at bar-1 open 100, got %v", trade.EntryPrice)
	}
	if trade.ExitPrice != 107 {
		t.Fatalf("expected exit at last bar close 107, got %v", trade.ExitPrice)
	}
	if e.State() != types.StateStopped {
		t.Fatalf("expected STOPPED after a full run, got %s", e.State())
	}
	if len(result.EquityCurve) != 3 {
		t.Fatalf("expected 3 equity samples, got %d", len(result.EquityCurve))
	}
}

func TestStopEndsLoopEarly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbol = "ES"
	e := New(cfg)
	e.LoadBars(testBars(), nil)
	e.AddStrategy(&buyOnceStrategy{})

	e.Stop() // queued before Start; consumed at the top of bar 0

	result, err := e.Start()
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if result.BarsProcessed != 0 {
		t.Fatalf("expected 0 bars processed after immediate stop, got %d", result.BarsProcessed)
	}
	if e.State() != types.StateStopped {
		t.Fatalf("expected STOPPED, got %s", e.State())
	}
}

func TestResetRequiresNotRunning(t *testing.T) {
	e := New(DefaultConfig())
	e.state = types.StateRunning
	if err := e.Reset(); err == nil {
		t.Fatal("expected error resetting while RUNNING")
	}

	e.state = types.StateStopped
	if err := e.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.State() != types.StateIdle {
		t.Fatalf("expected IDLE after reset, got %s", e.State())
	}
}
