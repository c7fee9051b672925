package reader

import (
	"fmt"

	"github.com/tidwall/btree"

	"orderly/models"
)

// LocalBook rebuilds one venue's book from a snapshot followed by diffs.
// It is not safe for concurrent use; a connector owns exactly one.
type LocalBook struct {
	source models.Exchange
	limit  int
	bids   *btree.BTreeG[models.Level]
	asks   *btree.BTreeG[models.Level]
}

// NewLocalBook creates an empty book. A positive limit caps the number of
// levels kept per side, discarding the worst prices first.
func NewLocalBook(source models.Exchange, limit int) *LocalBook {
	b := &LocalBook{source: source, limit: limit}
	b.Reset()
	return b
}

// Reset discards every level.
func (b *LocalBook) Reset() {
	opts := btree.Options{NoLocks: true}
	b.bids = btree.NewBTreeGOptions(func(x, y models.Level) bool {
		return x.Price.GreaterThan(y.Price)
	}, opts)
	b.asks = btree.NewBTreeGOptions(func(x, y models.Level) bool {
		return x.Price.LessThan(y.Price)
	}, opts)
}

func (b *LocalBook) tree(side models.Side) *btree.BTreeG[models.Level] {
	if side == models.Bid {
		return b.bids
	}
	return b.asks
}

// Update applies levels in order. A zero amount removes the level. The book
// is left untouched unless every level is valid.
func (b *LocalBook) Update(levels ...models.Level) error {
	if err := checkAll(levels); err != nil {
		return err
	}
	for _, l := range levels {
		b.set(l)
	}
	return nil
}

// Replace discards the book and loads levels in its place. On error the
// previous book is kept.
func (b *LocalBook) Replace(levels ...models.Level) error {
	if err := checkAll(levels); err != nil {
		return err
	}
	b.Reset()
	for _, l := range levels {
		b.set(l)
	}
	return nil
}

func checkAll(levels []models.Level) error {
	for i, l := range levels {
		if err := CheckLevel(l); err != nil {
			return fmt.Errorf("%s level %d: %w", l.Side, i, err)
		}
	}
	return nil
}

func (b *LocalBook) set(level models.Level) {
	level.Source = b.source
	tree := b.tree(level.Side)
	if level.Amount.IsZero() {
		tree.Delete(level)
		return
	}
	tree.Set(level)
	if b.limit > 0 {
		for tree.Len() > b.limit {
			var worst models.Level
			tree.Reverse(func(l models.Level) bool {
				worst = l
				return false
			})
			tree.Delete(worst)
		}
	}
}

// Top returns up to k best levels on side, best first.
func (b *LocalBook) Top(side models.Side, k int) []models.Level {
	tree := b.tree(side)
	n := tree.Len()
	if k > 0 && k < n {
		n = k
	}
	out := make([]models.Level, 0, n)
	tree.Scan(func(l models.Level) bool {
		out = append(out, l)
		return len(out) < n
	})
	return out
}

// Len returns the number of levels held on side.
func (b *LocalBook) Len(side models.Side) int {
	return b.tree(side).Len()
}

// Tick snapshots the best k levels of both sides.
func (b *LocalBook) Tick(k int) *models.NormalizedTick {
	return &models.NormalizedTick{
		Exchange: b.source,
		Bids:     b.Top(models.Bid, k),
		Asks:     b.Top(models.Ask, k),
	}
}
