package reader

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"orderly/models"
)

// DefaultDepth is the number of levels per side a connector forwards.
const DefaultDepth = 10

// ParseLevel decodes one price/amount pair and checks it.
func ParseLevel(side models.Side, price, amount string, source models.Exchange) (models.Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return models.Level{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return models.Level{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	level := models.NewLevel(side, p, a, source)
	if err := CheckLevel(level); err != nil {
		return models.Level{}, err
	}
	return level, nil
}

// CheckLevel rejects non-positive prices and negative amounts.
func CheckLevel(level models.Level) error {
	if !level.Price.IsPositive() {
		return fmt.Errorf("price %s must be positive", level.Price)
	}
	if level.Amount.IsNegative() {
		return fmt.Errorf("amount %s must not be negative", level.Amount)
	}
	return nil
}

// DecodeLevels decodes [price, amount, ...] entries for one side in input
// order. Zero amounts are kept so diff venues can delete levels. Extra
// trailing fields in an entry are ignored.
func DecodeLevels(raw [][]string, side models.Side, source models.Exchange) ([]models.Level, error) {
	levels := make([]models.Level, 0, len(raw))
	for i, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("%s level %d has %d fields", side, i, len(entry))
		}
		level, err := ParseLevel(side, entry[0], entry[1], source)
		if err != nil {
			return nil, fmt.Errorf("%s level %d: %w", side, i, err)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// ParseLevels decodes one side of a snapshot and returns its best k levels.
func ParseLevels(raw [][]string, side models.Side, source models.Exchange, k int) ([]models.Level, error) {
	levels, err := DecodeLevels(raw, side, source)
	if err != nil {
		return nil, err
	}
	return TopK(levels, side, k), nil
}

// TopK drops empty levels, orders the rest best first (bids descending,
// asks ascending) and truncates to k. Equal prices keep their input order.
func TopK(levels []models.Level, side models.Side, k int) []models.Level {
	out := make([]models.Level, 0, len(levels))
	for _, l := range levels {
		if l.Amount.IsZero() {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if side == models.Bid {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
