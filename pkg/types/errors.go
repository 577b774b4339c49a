package types

import "errors"

// Sentinel errors for the validation / matching-internal / bus / lifecycle
// taxonomy described by the spec's error handling design.
var (
	// ErrInvalidOrder covers quantity <= 0 or a missing required price field.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrUnknownOrderID names the case of cancelling an id that does not
	// reference a pending order. Not fatal: OrderBook.Cancel reports it by
	// returning false and does not return this error.
	ErrUnknownOrderID = errors.New("unknown order id")

	// ErrInconsistentFill marks an internal partial-fill arithmetic mismatch.
	// Fatal: the engine transitions to ERROR.
	ErrInconsistentFill = errors.New("inconsistent fill")

	// ErrOrphanSLTP marks a stop-loss/take-profit order with no parent
	// position. Fatal.
	ErrOrphanSLTP = errors.New("stop-loss/take-profit order has no parent position")

	// ErrInvalidTransition covers illegal engine lifecycle transitions.
	ErrInvalidTransition = errors.New("invalid engine state transition")

	// ErrHandlerMissing is returned by EventBus.Request when no handler is
	// registered for the request's event type.
	ErrHandlerMissing = errors.New("no handler responded")

	// ErrTimeout is returned by EventBus.Request when handlers ran but none
	// published a correlated response during the synchronous dispatch.
	ErrTimeout = errors.New("request timed out")

	// ErrNoStrategy is returned by Engine.Start when no strategy is registered.
	ErrNoStrategy = errors.New("no strategy registered")

	// ErrNoBars is returned by Engine.Start when the bar sequence is empty.
	ErrNoBars = errors.New("no bars to replay")

	// ErrInvalidBar marks a bar whose OHLC fields violate low <= open,close <= high.
	ErrInvalidBar = errors.New("invalid bar: low/high do not bound open/close")
)
