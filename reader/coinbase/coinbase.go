// Package coinbase adapts the Coinbase Exchange level2_batch channel.
package coinbase

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"orderly/internal/symbols"
	"orderly/models"
	"orderly/reader"
)

const (
	DefaultURL = "wss://ws-feed.exchange.coinbase.com"
	channel    = "level2_batch"
)

func init() {
	reader.Register(models.Coinbase, func(o reader.Options) reader.Connector { return New(o) })
}

// Connector rebuilds the full book from the initial snapshot and the
// l2update messages that follow it.
type Connector struct {
	url       string
	depth     int
	book      *reader.LocalBook
	populated bool
}

func New(opts reader.Options) *Connector {
	url := opts.URL
	if url == "" {
		url = DefaultURL
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = reader.DefaultDepth
	}
	return &Connector{
		url:   url,
		depth: depth,
		book:  reader.NewLocalBook(models.Coinbase, 0),
	}
}

func (c *Connector) Exchange() models.Exchange {
	return models.Coinbase
}

func (c *Connector) Endpoint(symbol string) (string, error) {
	if _, err := symbols.ForExchange(models.Coinbase, symbol); err != nil {
		return "", err
	}
	return c.url, nil
}

func (c *Connector) Reset() {
	c.book.Reset()
	c.populated = false
}

type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

func (c *Connector) Subscribe(conn *websocket.Conn, symbol string) error {
	product, err := symbols.ForExchange(models.Coinbase, symbol)
	if err != nil {
		return err
	}
	return conn.WriteJSON(subscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{product},
		Channels:   []string{channel, "heartbeat"},
	})
}

type message struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	Changes   [][]string `json:"changes"`
	Message   string     `json:"message"`
	Reason    string     `json:"reason"`
}

func (c *Connector) Parse(frame reader.Frame) (*models.NormalizedTick, error) {
	if !frame.IsText() {
		return nil, nil
	}

	var msg message
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		return nil, reader.NewProtocolError(models.Coinbase, frame.Data, "decode message: %w", err)
	}

	switch msg.Type {
	case "snapshot":
		bids, err := reader.DecodeLevels(msg.Bids, models.Bid, models.Coinbase)
		if err != nil {
			return nil, reader.NewProtocolError(models.Coinbase, frame.Data, "%w", err)
		}
		asks, err := reader.DecodeLevels(msg.Asks, models.Ask, models.Coinbase)
		if err != nil {
			return nil, reader.NewProtocolError(models.Coinbase, frame.Data, "%w", err)
		}
		if err := c.book.Replace(append(bids, asks...)...); err != nil {
			return nil, reader.NewProtocolError(models.Coinbase, frame.Data, "%w", err)
		}
		c.populated = true
	case "l2update":
		changes, err := decodeChanges(msg.Changes)
		if err != nil {
			return nil, reader.NewProtocolError(models.Coinbase, frame.Data, "%w", err)
		}
		if !c.populated {
			return nil, nil
		}
		if err := c.book.Update(changes...); err != nil {
			return nil, reader.NewProtocolError(models.Coinbase, frame.Data, "%w", err)
		}
	case "error":
		return nil, reader.NewProtocolError(models.Coinbase, frame.Data, "venue error: %s %s", msg.Message, msg.Reason)
	default:
		// subscriptions, heartbeat
		return nil, nil
	}

	return c.book.Tick(c.depth), nil
}

// decodeChanges turns [side, price, size] triples into levels.
func decodeChanges(changes [][]string) ([]models.Level, error) {
	levels := make([]models.Level, 0, len(changes))
	for i, change := range changes {
		if len(change) < 3 {
			return nil, fmt.Errorf("change %d has %d fields", i, len(change))
		}
		var side models.Side
		if err := side.UnmarshalText([]byte(change[0])); err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		level, err := reader.ParseLevel(side, change[1], change[2], models.Coinbase)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		levels = append(levels, level)
	}
	return levels, nil
}
