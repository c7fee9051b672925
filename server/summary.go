package server

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"orderly/models"
	"orderly/proto/orderbook"
)

// Summary is the JSON form of a merged book served by /book and /ws.
type Summary struct {
	Symbol    string          `json:"symbol"`
	Sequence  uint64          `json:"sequence"`
	Spread    decimal.Decimal `json:"spread"`
	Bids      []models.Level  `json:"bids"`
	Asks      []models.Level  `json:"asks"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewSummary(book models.MergedBook) *Summary {
	s := &Summary{
		Symbol:    book.Symbol,
		Sequence:  book.Sequence,
		Spread:    book.Spread(),
		Bids:      book.Bids,
		Asks:      book.Asks,
		UpdatedAt: book.UpdatedAt,
	}
	if s.Bids == nil {
		s.Bids = []models.Level{}
	}
	if s.Asks == nil {
		s.Asks = []models.Level{}
	}
	return s
}

// NewProtoSummary converts book into the BookSummary stream message. Prices
// and amounts travel as doubles on the wire.
func NewProtoSummary(book models.MergedBook) *orderbook.Summary {
	return &orderbook.Summary{
		Spread:    book.Spread().InexactFloat64(),
		Bids:      protoLevels(book.Bids),
		Asks:      protoLevels(book.Asks),
		Symbol:    book.Symbol,
		Sequence:  book.Sequence,
		Timestamp: book.UpdatedAt.UnixNano(),
	}
}

func protoLevels(levels []models.Level) []*orderbook.Level {
	out := make([]*orderbook.Level, len(levels))
	for i, l := range levels {
		out[i] = &orderbook.Level{
			Exchange: l.Source.String(),
			Price:    l.Price.InexactFloat64(),
			Amount:   l.Amount.InexactFloat64(),
		}
	}
	return out
}

// newLimiter returns nil when perSecond is not positive, which disables
// rate limiting in fanout.Forward.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
