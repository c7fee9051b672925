// Package bitstamp adapts the Bitstamp order book channel.
package bitstamp

import (
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"

	"orderly/internal/symbols"
	"orderly/models"
	"orderly/reader"
)

const DefaultURL = "wss://ws.bitstamp.net"

func init() {
	reader.Register(models.Bitstamp, func(o reader.Options) reader.Connector { return New(o) })
}

// Connector streams the top of the Bitstamp book. Each data event is a full
// snapshot of the visible depth.
type Connector struct {
	url   string
	depth int
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
	return &Connector{url: url, depth: depth}
}

func (c *Connector) Exchange() models.Exchange {
	return models.Bitstamp
}

func (c *Connector) Endpoint(symbol string) (string, error) {
	if _, err := symbols.ForExchange(models.Bitstamp, symbol); err != nil {
		return "", err
	}
	return c.url, nil
}

type subscribeRequest struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

type subscribeData struct {
	Channel string `json:"channel"`
}

func (c *Connector) Subscribe(conn *websocket.Conn, symbol string) error {
	sym, err := symbols.ForExchange(models.Bitstamp, symbol)
	if err != nil {
		return err
	}
	return conn.WriteJSON(subscribeRequest{
		Event: "bts:subscribe",
		Data:  subscribeData{Channel: "order_book_" + sym},
	})
}

type message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type bookData struct {
	Timestamp      string     `json:"timestamp"`
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

type errorData struct {
	Code    interface{} `json:"code"`
	Message string      `json:"message"`
}

func (c *Connector) Parse(frame reader.Frame) (*models.NormalizedTick, error) {
	if !frame.IsText() {
		return nil, nil
	}

	var msg message
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		return nil, reader.NewProtocolError(models.Bitstamp, frame.Data, "decode message: %w", err)
	}

	switch msg.Event {
	case "data":
	case "bts:request_reconnect":
		return nil, reader.ErrReconnectRequested
	case "bts:error":
		return nil, reader.NewProtocolError(models.Bitstamp, frame.Data, "venue error: %s", errorMessage(msg.Data))
	default:
		// bts:subscription_succeeded, bts:heartbeat and friends
		return nil, nil
	}

	var data bookData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil, reader.NewProtocolError(models.Bitstamp, frame.Data, "decode book: %w", err)
	}
	bids, err := reader.ParseLevels(data.Bids, models.Bid, models.Bitstamp, c.depth)
	if err != nil {
		return nil, reader.NewProtocolError(models.Bitstamp, frame.Data, "%w", err)
	}
	asks, err := reader.ParseLevels(data.Asks, models.Ask, models.Bitstamp, c.depth)
	if err != nil {
		return nil, reader.NewProtocolError(models.Bitstamp, frame.Data, "%w", err)
	}

	return &models.NormalizedTick{Exchange: models.Bitstamp, Bids: bids, Asks: asks}, nil
}

// errorMessage extracts the bts:error text, falling back to the raw data.
func errorMessage(data json.RawMessage) string {
	var e errorData
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if raw := strings.TrimSpace(string(data)); raw != "" && raw != "null" {
		return raw
	}
	return "no error details"
}
