package feed

import (
	"encoding/json"
	"testing"
)

func TestBarMessageDecodesToBar(t *testing.T) {
	raw := `{"time":100,"open":10,"high":12,"low":9,"close":11,"volume":500}`
	var bm barMessage
	if err := json.Unmarshal([]byte(raw), &bm); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	bar := bm.toBar()
	if bar.Time != 100 || bar.Open != 10 || bar.High != 12 || bar.Low != 9 || bar.Close != 11 || bar.Volume != 500 {
		t.Fatalf("unexpected bar from decoded message: %+v", bar)
	}
	if err := bar.Validate(); err != nil {
		t.Fatalf("expected valid bar, got error: %v", err)
	}
}
