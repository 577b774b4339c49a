package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/taurusjun/barbacktest/pkg/types"
)

func TestPublishDispatchesToSubscribers(t *testing.T) {
	b := New(0)
	var got []int
	b.Subscribe(types.BarReceived, func(msg types.Message) {
		got = append(got, 1)
	})
	b.Subscribe(types.BarReceived, func(msg types.Message) {
		got = append(got, 2)
	})
	b.Publish(types.BarReceived, "test", nil)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected handlers invoked in registration order, got %v", got)
	}
}

func TestWildcardSeesEveryEvent(t *testing.T) {
	b := New(0)
	var seen []types.EventType
	b.SubscribeAll(func(msg types.Message) {
		seen = append(seen, msg.Type)
	})
	b.Publish(types.BarReceived, "test", nil)
	b.Publish(types.OrderFilled, "test", nil)

	if len(seen) != 2 || seen[0] != types.BarReceived || seen[1] != types.OrderFilled {
		t.Fatalf("wildcard subscriber missed events: %v", seen)
	}
}

func TestReleaseStopsDelivery(t *testing.T) {
	b := New(0)
	calls := 0
	sub := b.Subscribe(types.BarReceived, func(msg types.Message) {
		calls++
	})
	b.Publish(types.BarReceived, "test", nil)
	sub.Release()
	b.Publish(types.BarReceived, "test", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call before release, got %d", calls)
	}

	// Releasing twice must not panic.
	sub.Release()
}

func TestReentrantPublishRunsDepthFirst(t *testing.T) {
	b := New(0)
	var order []string
	b.Subscribe(types.BarReceived, func(msg types.Message) {
		order = append(order, "outer-start")
		b.Publish(types.OrderFilled, "nested", nil)
		order = append(order, "outer-end")
	})
	b.Subscribe(types.OrderFilled, func(msg types.Message) {
		order = append(order, "inner")
	})
	b.Publish(types.BarReceived, "test", nil)

	want := []string{"outer-start", "inner", "outer-end"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	b := New(0)
	b.Subscribe(types.BarReceived, func(msg types.Message) {
		panic("boom")
	})
	secondRan := false
	b.Subscribe(types.BarReceived, func(msg types.Message) {
		secondRan = true
	})

	b.Publish(types.BarReceived, "test", nil)

	if !secondRan {
		t.Fatal("expected second handler to run despite first handler's panic")
	}
}

func TestHistoryRespectsCap(t *testing.T) {
	b := New(2)
	b.Publish(types.BarReceived, "test", 1)
	b.Publish(types.BarReceived, "test", 2)
	b.Publish(types.BarReceived, "test", 3)

	hist := b.History()
	if len(hist) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(hist))
	}
	if hist[0].Payload != 2 || hist[1].Payload != 3 {
		t.Fatalf("expected oldest entry evicted, got %+v", hist)
	}
}

func TestRequestFindsCorrelatedResponse(t *testing.T) {
	b := New(0)
	b.Subscribe(types.BarReceived, func(msg types.Message) {
		b.PublishResponse(types.OrderFilled, "responder", "pong", msg.CorrelationID)
	})

	resp, err := b.Request(types.BarReceived, nil, "corr-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Payload != "pong" {
		t.Fatalf("expected payload %q, got %v", "pong", resp.Payload)
	}
}

func TestRequestReturnsHandlerMissingWhenNoSubscriber(t *testing.T) {
	b := New(0)
	_, err := b.Request(types.BarReceived, nil, "corr-1", time.Second)
	if err == nil {
		t.Fatal("expected an error when no handler is registered for the request type")
	}
	if !errors.Is(err, types.ErrHandlerMissing) {
		t.Fatalf("expected ErrHandlerMissing, got %v", err)
	}
}

func TestRequestReturnsTimeoutWhenHandlerDoesNotRespond(t *testing.T) {
	b := New(0)
	b.Subscribe(types.BarReceived, func(msg types.Message) {
		// Handles the request but never publishes a correlated response.
	})

	_, err := b.Request(types.BarReceived, nil, "corr-1", time.Second)
	if err == nil {
		t.Fatal("expected an error when the handler never produces a correlated response")
	}
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
