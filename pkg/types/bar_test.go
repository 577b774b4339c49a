package types

import "testing"

func TestBarValidate(t *testing.T) {
	cases := []struct {
		name    string
		bar     Bar
		wantErr bool
	}{
		{"valid", Bar{Open: 100, High: 105, Low: 95, Close: 102}, false},
		{"low above open", Bar{Open: 100, High: 105, Low: 101, Close: 102}, true},
		{"high below close", Bar{Open: 100, High: 101, Low: 95, Close: 102}, true},
		{"flat bar", Bar{Open: 100, High: 100, Low: 100, Close: 100}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.bar.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestSyntheticSubBars(t *testing.T) {
	bar := Bar{Time: 1, Open: 100, High: 105, Low: 95, Close: 102}

	subs := SyntheticSubBars(bar, nil)
	if len(subs) != 1 {
		t.Fatalf("expected 1 synthetic sub-bar, got %d", len(subs))
	}
	if subs[0].Open != bar.Open || subs[0].Close != bar.Close {
		t.Fatalf("synthetic sub-bar does not mirror parent bar: %+v", subs[0])
	}

	given := []SubBar{{Time: 1, Open: 100, High: 101, Low: 99, Close: 100.5, ParentBarIndex: 0}}
	got := SyntheticSubBars(bar, given)
	if len(got) != 1 || got[0].Close != 100.5 {
		t.Fatalf("expected given sub-bars to pass through unchanged, got %+v", got)
	}
}

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		price, tick, want float64
	}{
		{100.13, 0.25, 100.25},
		{100.12, 0.25, 100.0},
		{100.0, 0, 100.0},
		{99.875, 0.25, 100.0},
	}
	for _, c := range cases {
		if got := RoundToTick(c.price, c.tick); got != c.want {
			t.Errorf("RoundToTick(%v, %v) = %v, want %v", c.price, c.tick, got, c.want)
		}
	}
}
