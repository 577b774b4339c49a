package cache

import (
	"bytes"
	"encoding/json"

	"github.com/klauspost/compress/flate"

	"github.com/taurusjun/barbacktest/pkg/types"
)

// Snapshot is the canonical, JSON-serializable form of a StateCache's
// contents, per spec.md §6's "persisted state layout": bars by key, orders
// by id, ordersByStatus, open/closed positions, per-strategy states, equity
// curve and balance. Unrealized P&L has no field of its own; it is carried
// only inside each open position. The engine persists nothing on its own;
// this is produced on demand by calling StateCache.Snapshot.
type Snapshot struct {
	Balance         float64                          `json:"balance"`
	Bars            map[string][]types.Bar           `json:"bars"`
	OrdersByID      map[string]*types.Order          `json:"ordersById"`
	OrdersByStatus  map[string][]string               `json:"ordersByStatus"`
	OpenPositions   []*types.Position                `json:"openPositions"`
	ClosedPositions []types.ClosedTrade              `json:"closedPositions"`
	StrategyStates  map[string]*StrategyState         `json:"strategyStates"`
	EquityCurve     []float64                         `json:"equityCurve"`
}

// Snapshot builds the canonical export form of the cache's current state.
func (c *StateCache) Snapshot() Snapshot {
	bars := make(map[string][]types.Bar, len(c.bars))
	for k, v := range c.bars {
		bars[snapshotBarKey(k)] = v
	}

	ordersByStatus := make(map[string][]string, len(c.ordersByStatus))
	for status, bucket := range c.ordersByStatus {
		ids := make([]string, 0, len(bucket))
		for id := range bucket {
			ids = append(ids, id)
		}
		ordersByStatus[status.String()] = ids
	}

	return Snapshot{
		Balance:         c.balance,
		Bars:            bars,
		OrdersByID:      c.ordersByID,
		OrdersByStatus:  ordersByStatus,
		OpenPositions:   c.OpenPositions(),
		ClosedPositions: c.ClosedTrades(),
		StrategyStates:  c.strategies,
		EquityCurve:     c.EquityCurve(),
	}
}

func snapshotBarKey(k BarKey) string {
	if k.Timeframe == "" {
		return k.Symbol
	}
	return k.Symbol + "@" + k.Timeframe
}

// MarshalJSON renders the snapshot in its canonical indented form, matching
// the teacher's ReportGenerator.GenerateJSON's json.MarshalIndent convention.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot // avoid infinite recursion through the method set
	return json.MarshalIndent(alias(s), "", "  ")
}

// WriteCompressed writes s as flate-compressed JSON. klauspost/compress's
// flate writer is used rather than stdlib compress/flate for its faster
// encoder; the wire format (DEFLATE) is identical either way, so callers
// can decompress with any standard flate reader.
func (s Snapshot) WriteCompressed() ([]byte, error) {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCompressedSnapshot reverses WriteCompressed.
func ReadCompressedSnapshot(compressed []byte) (Snapshot, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
