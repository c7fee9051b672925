// Package binance adapts the Binance spot partial depth stream.
package binance

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"orderly/internal/symbols"
	"orderly/models"
	"orderly/reader"
)

const (
	DefaultURL     = "wss://stream.binance.com:9443/ws"
	updateInterval = "100ms"
)

// Partial depth streams only come in these sizes.
var streamDepths = []int{5, 10, 20}

func init() {
	reader.Register(models.Binance, func(o reader.Options) reader.Connector { return New(o) })
}

// Connector reads <symbol>@depth<N>@100ms. Every push is a snapshot of the
// top N levels.
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
	return models.Binance
}

func (c *Connector) Endpoint(symbol string) (string, error) {
	if _, err := symbols.ForExchange(models.Binance, symbol); err != nil {
		return "", err
	}
	return c.url, nil
}

// streamDepth picks the smallest stream size that covers depth.
func streamDepth(depth int) int {
	for _, d := range streamDepths {
		if depth <= d {
			return d
		}
	}
	return streamDepths[len(streamDepths)-1]
}

// StreamName returns the stream subscribed to for symbol.
func (c *Connector) StreamName(symbol string) (string, error) {
	sym, err := symbols.ForExchange(models.Binance, symbol)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s@depth%d@%s", sym, streamDepth(c.depth), updateInterval), nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

func (c *Connector) Subscribe(conn *websocket.Conn, symbol string) error {
	stream, err := c.StreamName(symbol)
	if err != nil {
		return err
	}
	return conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: []string{stream}, ID: 1})
}

type depthMessage struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`

	ID    *int64    `json:"id"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Connector) Parse(frame reader.Frame) (*models.NormalizedTick, error) {
	if !frame.IsText() {
		return nil, nil
	}

	var msg depthMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		return nil, reader.NewProtocolError(models.Binance, frame.Data, "decode message: %w", err)
	}
	if msg.Error != nil {
		return nil, reader.NewProtocolError(models.Binance, frame.Data, "venue error %d: %s", msg.Error.Code, msg.Error.Msg)
	}
	if msg.ID != nil {
		// request acknowledgement
		return nil, nil
	}
	if msg.LastUpdateID == 0 && msg.Bids == nil && msg.Asks == nil {
		return nil, nil
	}

	bids, err := reader.ParseLevels(msg.Bids, models.Bid, models.Binance, c.depth)
	if err != nil {
		return nil, reader.NewProtocolError(models.Binance, frame.Data, "%w", err)
	}
	asks, err := reader.ParseLevels(msg.Asks, models.Ask, models.Binance, c.depth)
	if err != nil {
		return nil, reader.NewProtocolError(models.Binance, frame.Data, "%w", err)
	}

	return &models.NormalizedTick{Exchange: models.Binance, Bids: bids, Asks: asks}, nil
}
