package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the book a level belongs to.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "bid", "buy":
		*s = Bid
	case "ask", "sell":
		*s = Ask
	default:
		return fmt.Errorf("unknown side %q", string(b))
	}
	return nil
}

// Exchange is the closed set of venues a connector exists for. The ordinal
// is used as the last tie-breaker when merging books.
type Exchange uint8

const (
	Bitstamp Exchange = iota
	Binance
	Kraken
	Coinbase
	Gateio
)

var exchangeNames = [...]string{
	Bitstamp: "bitstamp",
	Binance:  "binance",
	Kraken:   "kraken",
	Coinbase: "coinbase",
	Gateio:   "gateio",
}

// Exchanges lists every supported venue in ordinal order.
func Exchanges() []Exchange {
	return []Exchange{Bitstamp, Binance, Kraken, Coinbase, Gateio}
}

func (e Exchange) String() string {
	if int(e) < len(exchangeNames) {
		return exchangeNames[e]
	}
	return fmt.Sprintf("exchange(%d)", uint8(e))
}

func (e Exchange) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Exchange) UnmarshalText(b []byte) error {
	parsed, err := ParseExchange(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseExchange resolves a venue name, case-insensitively.
func ParseExchange(name string) (Exchange, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "gate.io" {
		n = "gateio"
	}
	for i, candidate := range exchangeNames {
		if candidate == n {
			return Exchange(i), nil
		}
	}
	return 0, fmt.Errorf("unknown exchange %q", name)
}

// Level is one price point on one side of one venue's book. Source is the
// venue the level came from and travels with it into the merged book.
type Level struct {
	Side   Side            `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Source Exchange        `json:"exchange"`
}

func NewLevel(side Side, price, amount decimal.Decimal, source Exchange) Level {
	return Level{Side: side, Price: price, Amount: amount, Source: source}
}

func (l Level) String() string {
	return fmt.Sprintf("%s %s@%s (%s)", l.Side, l.Amount, l.Price, l.Source)
}

// NormalizedTick is one venue's depth update in the common schema. Bids are
// ordered by descending price, asks by ascending price. A tick replaces the
// venue's previous contribution entirely.
type NormalizedTick struct {
	Exchange   Exchange  `json:"exchange"`
	Bids       []Level   `json:"bids"`
	Asks       []Level   `json:"asks"`
	ReceivedAt time.Time `json:"received_at"`
}

// MergedBook is the consolidated top-N view across all venues.
type MergedBook struct {
	Symbol    string    `json:"symbol"`
	Sequence  uint64    `json:"sequence"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Spread is best ask minus best bid, or zero when either side is empty.
func (b MergedBook) Spread() decimal.Decimal {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// BestBid returns the top bid, if any.
func (b MergedBook) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask, if any.
func (b MergedBook) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}
