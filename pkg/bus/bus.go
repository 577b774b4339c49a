// Package bus implements the engine's typed, synchronous publish/subscribe
// core. It is deliberately not backed by a network broker: the spec requires
// publish to be reentrant-safe and depth-first so that a single bar's event
// sequence is deterministic, a guarantee an async transport like NATS cannot
// give an in-process caller. See SPEC_FULL.md's "Open Question resolution"
// for where NATS is used instead (pkg/feed, at the boundary).
package bus

import (
	"fmt"
	"log"
	"time"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// Handler processes one Message. A Handler that panics is caught, logged,
// and skipped; it never prevents later handlers or the publisher itself from
// continuing (spec.md §4.1 "Isolation").
type Handler func(msg types.Message)

// Subscription is returned by Subscribe/SubscribeAll. Release removes the
// handler; it is a no-op if already released.
type Subscription struct {
	id       uint64
	eventTyp types.EventType
	wildcard bool
	bus      *EventBus
}

// Release unsubscribes the handler. Safe to call more than once.
func (s *Subscription) Release() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.unsubscribe(s)
	s.bus = nil
}

type subscriber struct {
	id      uint64
	handler Handler
}

const defaultHistoryLimit = 10000

// EventBus is a synchronous, reentrant-safe, single-threaded pub/sub bus with
// bounded message history. It holds no locks: the spec's concurrency model
// requires the whole core (bus, order book, ledger, cache) to run on one
// cooperative goroutine. A component that crosses the boundary to talk to a
// multi-goroutine collaborator (pkg/feed's NATS adapter, a UI worker) must
// own its own synchronization before calling back into the bus.
type EventBus struct {
	subscribers map[types.EventType][]subscriber
	wildcard    []subscriber
	history     []types.Message
	historyCap  int
	nextSubID   uint64
}

// New creates an EventBus retaining the last historyCap messages. A
// non-positive historyCap falls back to the spec's default of 10,000.
func New(historyCap int) *EventBus {
	if historyCap <= 0 {
		historyCap = defaultHistoryLimit
	}
	return &EventBus{
		subscribers: make(map[types.EventType][]subscriber),
		historyCap:  historyCap,
	}
}

// Subscribe registers handler for a single EventType, returning a
// Subscription whose Release removes it. Handlers added during an in-flight
// Publish do not receive that in-flight message (spec.md §4.1).
func (b *EventBus) Subscribe(eventTyp types.EventType, handler Handler) *Subscription {
	b.nextSubID++
	sub := subscriber{id: b.nextSubID, handler: handler}
	b.subscribers[eventTyp] = append(b.subscribers[eventTyp], sub)
	return &Subscription{id: sub.id, eventTyp: eventTyp, bus: b}
}

// SubscribeAll registers handler on the wildcard "all events" channel.
func (b *EventBus) SubscribeAll(handler Handler) *Subscription {
	b.nextSubID++
	sub := subscriber{id: b.nextSubID, handler: handler}
	b.wildcard = append(b.wildcard, sub)
	return &Subscription{id: sub.id, wildcard: true, bus: b}
}

func (b *EventBus) unsubscribe(s *Subscription) {
	if s.wildcard {
		b.wildcard = removeSub(b.wildcard, s.id)
		return
	}
	b.subscribers[s.eventTyp] = removeSub(b.subscribers[s.eventTyp], s.id)
}

func removeSub(subs []subscriber, id uint64) []subscriber {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish dispatches msg to every handler registered for typ plus every
// wildcard handler, in registration order, synchronously on the caller's
// goroutine. If a handler itself calls Publish, that nested publish runs to
// completion (depth-first) before the outer handler list continues. A
// handler that panics is logged and skipped; it never aborts the dispatch.
func (b *EventBus) Publish(typ types.EventType, source string, payload interface{}) types.Message {
	return b.publish(typ, source, payload, "")
}

// PublishResponse is Publish plus a CorrelationID, letting a handler answer a
// pending Request by echoing the correlation id it was given. Use this
// instead of Publish when responding inside a handler invoked by Request.
func (b *EventBus) PublishResponse(typ types.EventType, source string, payload interface{}, correlationID string) types.Message {
	return b.publish(typ, source, payload, correlationID)
}

func (b *EventBus) publish(typ types.EventType, source string, payload interface{}, correlationID string) types.Message {
	msg := types.Message{Type: typ, Source: source, Payload: payload, CorrelationID: correlationID}
	b.recordHistory(msg)

	// Snapshot the handler lists so handlers registered during this publish
	// (including by nested publishes) don't receive this in-flight message.
	direct := append([]subscriber(nil), b.subscribers[typ]...)
	wildcard := append([]subscriber(nil), b.wildcard...)

	for _, s := range direct {
		b.invoke(s, msg)
	}
	for _, s := range wildcard {
		b.invoke(s, msg)
	}
	return msg
}

func (b *EventBus) invoke(s subscriber, msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EventBus] handler for %s panicked: %v", msg.Type, r)
		}
	}()
	s.handler(msg)
}

func (b *EventBus) recordHistory(msg types.Message) {
	b.history = append(b.history, msg)
	if len(b.history) > b.historyCap {
		overflow := len(b.history) - b.historyCap
		b.history = b.history[overflow:]
	}
}

// History returns a copy of the retained message history, oldest first.
func (b *EventBus) History() []types.Message {
	out := make([]types.Message, len(b.history))
	copy(out, b.history)
	return out
}

// Request publishes typ carrying a correlation id and returns the most
// recent other-typed message in the retained history (published via
// PublishResponse) with the same correlation id. Because the bus is synchronous and reentrant, a responder
// must answer from within typ's handler chain — there is no event loop to
// wait on, so timeout is not a wall-clock wait. It instead disambiguates the
// two distinct failure modes spec.md:57 calls out:
//   - no handler was registered for typ at all: ErrHandlerMissing, returned
//     immediately, before anything is published.
//   - at least one handler ran but the synchronous dispatch it drove (its
//     own budget, bounded by timeout) produced no correlated response:
//     ErrTimeout.
func (b *EventBus) Request(typ types.EventType, payload interface{}, correlationID string, timeout time.Duration) (types.Message, error) {
	direct := append([]subscriber(nil), b.subscribers[typ]...)
	wildcard := append([]subscriber(nil), b.wildcard...)
	if len(direct) == 0 && len(wildcard) == 0 {
		return types.Message{}, fmt.Errorf("%w: no handler registered for %s", types.ErrHandlerMissing, typ)
	}

	req := types.Message{Type: typ, Payload: payload, CorrelationID: correlationID}
	b.recordHistory(req)
	for _, s := range direct {
		b.invoke(s, req)
	}
	for _, s := range wildcard {
		b.invoke(s, req)
	}

	for i := len(b.history) - 1; i >= 0; i-- {
		m := b.history[i]
		if m.CorrelationID == correlationID && m.Type != typ {
			return m, nil
		}
	}
	return types.Message{}, fmt.Errorf("%w: no correlated response for %s within %s", types.ErrTimeout, correlationID, timeout)
}
