// Package engine drives the bar-by-bar replay loop: BarReceived -> each
// registered Strategy.ProcessBar -> OrderBook.ProcessBar -> Ledger/cache
// updates -> ProgressUpdate, exactly as spec.md §4.5/§5 describe. It owns
// construction of the bus, order book, ledger and cache and wires them
// together once, per the "pass references at construction time, no
// singletons" design note (spec.md §9).
package engine

import (
	"fmt"
	"log"

	"github.com/taurusjun/barbacktest/pkg/bus"
	"github.com/taurusjun/barbacktest/pkg/cache"
	"github.com/taurusjun/barbacktest/pkg/ledger"
	"github.com/taurusjun/barbacktest/pkg/matching"
	"github.com/taurusjun/barbacktest/pkg/types"
)

// Progress is the payload published on ProgressUpdate.
type Progress struct {
	BarIndex  int
	TotalBars int
	Equity    float64
}

// RunResult summarizes one completed (or stopped) replay.
type RunResult struct {
	BarsProcessed int
	ClosedTrades  []types.ClosedTrade
	FinalEquity   float64
	EquityCurve   []float64
	// StartTime/EndTime are the first and last processed bar's own
	// timestamps (epoch seconds), not wall-clock run duration.
	StartTime int64
	EndTime   int64
}

type controlSignal int

const (
	ctrlPause controlSignal = iota
	ctrlResume
	ctrlStop
)

// Engine owns the EventBus, OrderBook, Ledger and StateCache for one
// backtest run.
type Engine struct {
	cfg Config

	Bus    *bus.EventBus
	Book   *matching.OrderBook
	Ledger *ledger.Ledger
	Cache  *cache.StateCache

	strategies []Strategy
	bars       []types.Bar
	subBars    map[int][]types.SubBar

	state   types.EngineState
	control chan controlSignal
}

// New wires a fresh EventBus/OrderBook/Ledger/StateCache for cfg.
func New(cfg Config) *Engine {
	b := bus.New(cfg.HistoryLimit)
	book := matching.New(cfg.TickSize)
	led := ledger.New(cfg.InitialBalance, book)
	book.SetPositionSizer(led)
	c := cache.New(cfg.InitialBalance)
	c.Subscribe(b)

	e := &Engine{
		cfg:     cfg,
		Bus:     b,
		Book:    book,
		Ledger:  led,
		Cache:   c,
		state:   types.StateIdle,
		control: make(chan controlSignal, 4),
	}
	b.Subscribe(types.SubmitOrder, e.onSubmitOrder)
	b.Subscribe(types.CancelOrder, e.onCancelOrder)
	return e
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() types.EngineState {
	return e.state
}

// AddStrategy registers s. Only legal while IDLE.
func (e *Engine) AddStrategy(s Strategy) error {
	if e.state != types.StateIdle {
		return fmt.Errorf("%w: cannot add strategy while %s", types.ErrInvalidTransition, e.state)
	}
	s.Init(NewStrategyContext(s.Name(), e.Bus))
	e.strategies = append(e.strategies, s)
	return nil
}

// LoadBars installs the bar sequence to replay, with optional per-bar
// sub-bars keyed by bar index. Only legal while IDLE.
func (e *Engine) LoadBars(bars []types.Bar, subBars map[int][]types.SubBar) error {
	if e.state != types.StateIdle {
		return fmt.Errorf("%w: cannot load bars while %s", types.ErrInvalidTransition, e.state)
	}
	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
	}
	e.bars = bars
	e.subBars = subBars
	return nil
}

// Pause asks the running loop to suspend before its next bar. Safe to call
// from a different goroutine than the one executing Start/Run: it only ever
// sends on a channel, never touches engine state directly.
func (e *Engine) Pause() { e.sendControl(ctrlPause) }

// Resume clears a pending pause.
func (e *Engine) Resume() { e.sendControl(ctrlResume) }

// Stop asks the running loop to terminate before its next bar. The current
// bar's matching always completes first, so an OCO pair is never left
// half-resolved (spec.md §4.5).
func (e *Engine) Stop() { e.sendControl(ctrlStop) }

func (e *Engine) sendControl(sig controlSignal) {
	select {
	case e.control <- sig:
	default:
		// control channel full: a pause/resume/stop is already pending,
		// which is enough to eventually reach the same state.
	}
}

// Start validates preconditions and runs the bar loop to completion (or
// until Stop is called). Blocks the calling goroutine, matching the spec's
// single-threaded cooperative core.
func (e *Engine) Start() (*RunResult, error) {
	if e.state != types.StateIdle {
		return nil, fmt.Errorf("%w: cannot start while %s", types.ErrInvalidTransition, e.state)
	}
	if len(e.strategies) == 0 {
		return nil, types.ErrNoStrategy
	}
	if len(e.bars) == 0 {
		return nil, types.ErrNoBars
	}

	e.state = types.StateRunning
	for _, s := range e.strategies {
		e.Bus.Publish(types.StrategyStarted, s.Name(), nil)
	}

	result, err := e.run()
	if err != nil {
		e.state = types.StateError
		return result, err
	}
	if e.state != types.StateStopped {
		e.state = types.StateStopped
	}
	for _, s := range e.strategies {
		e.Bus.Publish(types.StrategyStopped, s.Name(), nil)
	}
	e.Bus.Publish(types.BacktestComplete, "engine", result)
	return result, nil
}

// StartStreaming is the channel-driven counterpart to Start/LoadBars: it
// processes bars as they arrive on barsCh instead of requiring the full
// sequence up front, so an external feed (pkg/feed) can deliver bars one at
// a time. It ends when barsCh is closed, Stop is called, or a bar fails to
// validate or match. The channel's producer (e.g. a NATS subscription) owns
// its own goroutine; this method itself still runs entirely on the calling
// goroutine, preserving the sequential, lock-free core loop.
func (e *Engine) StartStreaming(barsCh <-chan types.Bar) (*RunResult, error) {
	if e.state != types.StateIdle {
		return nil, fmt.Errorf("%w: cannot start while %s", types.ErrInvalidTransition, e.state)
	}
	if len(e.strategies) == 0 {
		return nil, types.ErrNoStrategy
	}

	e.state = types.StateRunning
	for _, s := range e.strategies {
		e.Bus.Publish(types.StrategyStarted, s.Name(), nil)
	}

	var processed int
	var runErr error

drain:
	for bar := range barsCh {
		select {
		case sig := <-e.control:
			if stop := e.handleControl(sig); stop {
				break drain
			}
		default:
		}

		if err := bar.Validate(); err != nil {
			runErr = fmt.Errorf("streamed bar %d: %w", processed, err)
			break drain
		}
		idx := len(e.bars)
		e.bars = append(e.bars, bar)
		if err := e.processBar(idx, bar); err != nil {
			runErr = err
			break drain
		}
		processed++
	}

	result := e.finalize(processed)
	if runErr != nil {
		e.state = types.StateError
		return result, runErr
	}
	if e.state != types.StateStopped {
		e.state = types.StateStopped
	}
	for _, s := range e.strategies {
		e.Bus.Publish(types.StrategyStopped, s.Name(), nil)
	}
	e.Bus.Publish(types.BacktestComplete, "engine", result)
	return result, nil
}

func (e *Engine) run() (*RunResult, error) {
	var processed int

drain:
	for idx, bar := range e.bars {
		select {
		case sig := <-e.control:
			if stop := e.handleControl(sig); stop {
				break drain
			}
		default:
		}

		if err := e.processBar(idx, bar); err != nil {
			return e.finalize(processed), err
		}
		processed++
	}

	return e.finalize(processed), nil
}

// handleControl applies one control signal and, for a pause, blocks the
// loop until a resume or stop arrives. Returns true if the loop should
// terminate.
func (e *Engine) handleControl(sig controlSignal) bool {
	switch sig {
	case ctrlStop:
		e.state = types.StateStopped
		return true
	case ctrlPause:
		e.state = types.StatePaused
		for {
			next := <-e.control
			switch next {
			case ctrlResume:
				e.state = types.StateRunning
				return false
			case ctrlStop:
				e.state = types.StateStopped
				return true
			}
		}
	}
	return false
}

func (e *Engine) processBar(idx int, bar types.Bar) error {
	e.Bus.Publish(types.BarReceived, e.cfg.Symbol, cache.BarEvent{
		Symbol: e.cfg.Symbol, Timeframe: e.cfg.Timeframe, Bar: bar,
	})

	history := e.bars[:idx+1]
	subBars := e.subBars[idx]

	for _, s := range e.strategies {
		result, err := s.ProcessBar(bar, subBars, idx, history)
		if err != nil {
			log.Printf("[Engine] strategy %s processBar error at bar %d: %v", s.Name(), idx, err)
			continue
		}
		if result.Indicators != nil || result.Signal != nil {
			sig := cache.Signal{StrategyID: s.Name(), Indicators: result.Indicators}
			if result.Signal != nil {
				sig.Name = result.Signal.Name
			}
			e.Bus.Publish(types.SignalGenerated, s.Name(), sig)
		}
	}

	matchResult, err := e.Book.ProcessBar(bar, subBars)
	if err != nil {
		return fmt.Errorf("matching failed at bar %d: %w", idx, err)
	}

	for _, fo := range matchResult.Fills {
		_, hadPosition := e.Ledger.OpenPosition(fo.Fill.ContractID)
		_, closed, err := e.Ledger.ApplyFill(fo.Fill)
		if err != nil {
			return fmt.Errorf("ledger failed at bar %d: %w", idx, err)
		}
		e.Bus.Publish(types.OrderFilled, "engine", fo.Order)

		if closed != nil {
			e.Bus.Publish(types.PositionClosed, "engine", *closed)
		} else if !hadPosition {
			if pos, ok := e.Ledger.OpenPosition(fo.Fill.ContractID); ok {
				e.Bus.Publish(types.PositionOpened, "engine", pos)
			}
		}
	}

	for _, cancelled := range matchResult.Cancelled {
		e.Bus.Publish(types.OrderCancelled, "engine", cancelled)
	}

	e.Ledger.MarkToMarket(e.cfg.Symbol, bar.Close)
	equity := e.Ledger.Equity()
	e.Cache.SetBalance(e.Ledger.Balance())
	e.Cache.RecordEquitySample(equity)

	if e.cfg.ProgressUpdateInterval > 0 && (idx+1)%e.cfg.ProgressUpdateInterval == 0 {
		e.Bus.Publish(types.ProgressUpdate, "engine", Progress{
			BarIndex: idx, TotalBars: len(e.bars), Equity: equity,
		})
	}
	return nil
}

// finalize closes any remaining open position at the last processed bar's
// close with exitReason MANUAL, flattens the order book, and builds the
// RunResult.
func (e *Engine) finalize(processed int) *RunResult {
	result := &RunResult{BarsProcessed: processed}
	if processed > 0 {
		last := e.bars[processed-1]
		for _, trade := range e.Ledger.CloseAll(last.Close, last.Time, types.ExitManual) {
			e.Bus.Publish(types.PositionClosed, "engine", trade)
		}
		e.Book.CancelAllByContract("")
		result.StartTime = e.bars[0].Time
		result.EndTime = last.Time
	}

	result.ClosedTrades = e.Ledger.ClosedTrades()
	result.FinalEquity = e.Ledger.Equity()
	result.EquityCurve = e.Cache.EquityCurve()
	return result
}

func (e *Engine) onSubmitOrder(msg types.Message) {
	draft, ok := msg.Payload.(types.OrderDraft)
	if !ok {
		return
	}
	if draft.CommissionPerUnit == 0 {
		draft.CommissionPerUnit = e.cfg.CommissionPerUnit
	}
	order, err := e.Book.Submit(draft)
	if err != nil {
		log.Printf("[Engine] order rejected: %v", err)
		e.Bus.Publish(types.OrderRejected, "engine", order)
		return
	}
	e.Bus.Publish(types.OrderSubmitted, "engine", order)
}

func (e *Engine) onCancelOrder(msg types.Message) {
	orderID, ok := msg.Payload.(string)
	if !ok {
		return
	}
	order, known := e.Cache.Order(orderID)
	if !e.Book.Cancel(orderID) {
		return
	}
	if known {
		e.Bus.Publish(types.OrderCancelled, "engine", order)
	}
}

// Reset restores IDLE state and clears cache/ledger so the engine can be
// reused for another run with the same strategies and bars.
func (e *Engine) Reset() error {
	if e.state == types.StateRunning || e.state == types.StatePaused {
		return fmt.Errorf("%w: cannot reset while %s", types.ErrInvalidTransition, e.state)
	}
	e.Ledger.Reset()
	e.Cache.Reset()
	for _, s := range e.strategies {
		s.Reset()
	}
	e.state = types.StateIdle
	return nil
}
