package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// barMessage is the wire shape published/consumed on a bars.<symbol>.<timeframe>
// subject: plain JSON, not protobuf, since this bridge has no generated schema
// of its own (the teacher's MarketDataUpdate protobuf is tick-oriented and
// out of scope here — see DESIGN.md).
type barMessage struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (m barMessage) toBar() types.Bar {
	return types.Bar{Time: m.Time, Open: m.Open, High: m.High, Low: m.Low, Close: m.Close, Volume: m.Volume}
}

// NATSBarFeed subscribes to a bars.<symbol>.<timeframe> subject and decodes
// each message into a Bar, delivered on Bars() for Engine.StartStreaming to
// consume. It owns its own goroutine and a mutex guarding its subscription
// handle, per the Open Question resolution in SPEC_FULL.md §5: NATS is an
// external collaborator crossing the engine's synchronous-core boundary, so
// it — not pkg/bus — is responsible for its own concurrency safety.
//
// Grounded on the teacher's HistoricalDataReader, which plays the same role
// (external data source feeding the system over NATS) but for live tick
// replay rather than historical bar delivery.
type NATSBarFeed struct {
	conn *nats.Conn
	sub  *nats.Subscription

	mu   sync.Mutex
	bars chan types.Bar
}

// NewNATSBarFeed connects to addr and returns a feed ready to Subscribe.
func NewNATSBarFeed(addr string) (*NATSBarFeed, error) {
	conn, err := nats.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", addr, err)
	}
	return &NATSBarFeed{conn: conn, bars: make(chan types.Bar, 256)}, nil
}

// Subscribe starts listening on bars.<symbol>.<timeframe> and begins
// forwarding decoded bars onto Bars(). Safe to call once per feed.
func (f *NATSBarFeed) Subscribe(symbol, timeframe string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	subject := fmt.Sprintf("bars.%s.%s", symbol, timeframe)
	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		var bm barMessage
		if err := json.Unmarshal(msg.Data, &bm); err != nil {
			log.Printf("[NATSBarFeed] failed to decode bar on %s: %v", subject, err)
			return
		}
		f.bars <- bm.toBar()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	f.sub = sub
	log.Printf("[NATSBarFeed] subscribed to %s", subject)
	return nil
}

// Bars returns the channel Engine.StartStreaming should range over.
func (f *NATSBarFeed) Bars() <-chan types.Bar {
	return f.bars
}

// Close unsubscribes, closes the bar channel and closes the NATS connection.
func (f *NATSBarFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sub != nil {
		if err := f.sub.Unsubscribe(); err != nil {
			log.Printf("[NATSBarFeed] unsubscribe error: %v", err)
		}
	}
	close(f.bars)
	f.conn.Close()
	return nil
}
