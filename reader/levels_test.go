package reader

import (
	"testing"

	"github.com/shopspring/decimal"

	"orderly/models"
)

func TestParseLevelsSortsAndTruncates(t *testing.T) {
	raw := [][]string{
		{"100.5", "1"},
		{"101", "2"},
		{"99", "0"},
		{"102", "0.25", "ignored"},
		{"100", "3"},
	}
	bids, err := ParseLevels(raw, models.Bid, models.Binance, 3)
	if err != nil {
		t.Fatalf("ParseLevels: %v", err)
	}
	want := []string{"102", "101", "100.5"}
	if len(bids) != len(want) {
		t.Fatalf("expected %d bids, got %d", len(want), len(bids))
	}
	for i, w := range want {
		if !bids[i].Price.Equal(decimal.RequireFromString(w)) {
			t.Errorf("bid %d = %s, want %s", i, bids[i].Price, w)
		}
		if bids[i].Side != models.Bid || bids[i].Source != models.Binance {
			t.Errorf("bid %d has wrong attribution: %+v", i, bids[i])
		}
	}

	asks, err := ParseLevels(raw, models.Ask, models.Binance, 10)
	if err != nil {
		t.Fatalf("ParseLevels: %v", err)
	}
	if len(asks) != 4 {
		t.Fatalf("zero amount level should be dropped, got %d asks", len(asks))
	}
	for i := 1; i < len(asks); i++ {
		if asks[i].Price.LessThan(asks[i-1].Price) {
			t.Fatalf("asks not ascending at %d", i)
		}
	}
}

func TestParseLevelsRejectsBadInput(t *testing.T) {
	cases := map[string][][]string{
		"short entry":     {{"100"}},
		"bad price":       {{"abc", "1"}},
		"bad amount":      {{"100", "x"}},
		"zero price":      {{"0", "1"}},
		"negative amount": {{"100", "-1"}},
	}
	for name, raw := range cases {
		if _, err := ParseLevels(raw, models.Ask, models.Kraken, 10); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestTopKKeepsInputOrderOnTies(t *testing.T) {
	levels := []models.Level{
		models.NewLevel(models.Ask, decimal.NewFromInt(5), decimal.NewFromInt(1), models.Kraken),
		models.NewLevel(models.Ask, decimal.NewFromInt(5), decimal.NewFromInt(2), models.Bitstamp),
	}
	out := TopK(levels, models.Ask, 10)
	if out[0].Source != models.Kraken || out[1].Source != models.Bitstamp {
		t.Fatalf("tie order not preserved: %v", out)
	}
}
