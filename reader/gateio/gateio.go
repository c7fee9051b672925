// Package gateio adapts the Gate.io futures order_book channel.
package gateio

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"orderly/internal/symbols"
	"orderly/models"
	"orderly/reader"
)

const (
	DefaultURL = "wss://fx-ws.gateio.ws/v4/ws"
	channel    = "futures.order_book"
)

// Valid order_book limits.
var bookLimits = []int{1, 5, 10, 20, 50, 100}

func init() {
	reader.Register(models.Gateio, func(o reader.Options) reader.Connector { return New(o) })
}

// Connector reads futures.order_book "all" pushes, each of which is a full
// snapshot of the requested depth.
type Connector struct {
	baseURL string
	depth   int
	limit   int
	now     func() time.Time
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
	limit := bookLimits[len(bookLimits)-1]
	for _, l := range bookLimits {
		if depth <= l {
			limit = l
			break
		}
	}
	return &Connector{baseURL: strings.TrimRight(url, "/"), depth: depth, limit: limit, now: time.Now}
}

func (c *Connector) Exchange() models.Exchange {
	return models.Gateio
}

// Endpoint appends the settle currency, e.g. .../v4/ws/usdt.
func (c *Connector) Endpoint(symbol string) (string, error) {
	settle, err := symbols.GateioSettle(symbol)
	if err != nil {
		return "", err
	}
	return c.baseURL + "/" + settle, nil
}

type subscribeRequest struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Payload []string `json:"payload"`
}

func (c *Connector) Subscribe(conn *websocket.Conn, symbol string) error {
	contract, err := symbols.ForExchange(models.Gateio, symbol)
	if err != nil {
		return err
	}
	return conn.WriteJSON(subscribeRequest{
		Time:    c.now().Unix(),
		Channel: channel,
		Event:   "subscribe",
		Payload: []string{contract, strconv.Itoa(c.limit), "0"},
	})
}

type message struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *apiError       `json:"error"`
	Result  json.RawMessage `json:"result"`
	// legacy error frames
	Label   string `json:"label"`
	Message string `json:"message"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bookResult struct {
	T        int64       `json:"t"`
	Contract string      `json:"contract"`
	ID       int64       `json:"id"`
	Bids     []bookLevel `json:"bids"`
	Asks     []bookLevel `json:"asks"`
}

// Size is a contract count sent as a bare number.
type bookLevel struct {
	Price decimal.Decimal `json:"p"`
	Size  decimal.Decimal `json:"s"`
}

func (c *Connector) Parse(frame reader.Frame) (*models.NormalizedTick, error) {
	if !frame.IsText() {
		return nil, nil
	}

	var msg message
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		return nil, reader.NewProtocolError(models.Gateio, frame.Data, "decode message: %w", err)
	}
	if msg.Error != nil {
		return nil, reader.NewProtocolError(models.Gateio, frame.Data, "venue error %d: %s", msg.Error.Code, msg.Error.Message)
	}

	switch msg.Event {
	case "all":
	case "error":
		return nil, reader.NewProtocolError(models.Gateio, frame.Data, "venue error %s: %s", msg.Label, msg.Message)
	default:
		// subscribe acks, pongs and legacy incremental updates
		return nil, nil
	}
	if msg.Channel != channel {
		return nil, nil
	}

	var result bookResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return nil, reader.NewProtocolError(models.Gateio, frame.Data, "decode book: %w", err)
	}
	bids, err := c.levels(models.Bid, result.Bids)
	if err != nil {
		return nil, reader.NewProtocolError(models.Gateio, frame.Data, "%w", err)
	}
	asks, err := c.levels(models.Ask, result.Asks)
	if err != nil {
		return nil, reader.NewProtocolError(models.Gateio, frame.Data, "%w", err)
	}

	return &models.NormalizedTick{Exchange: models.Gateio, Bids: bids, Asks: asks}, nil
}

func (c *Connector) levels(side models.Side, raw []bookLevel) ([]models.Level, error) {
	levels := make([]models.Level, 0, len(raw))
	for _, r := range raw {
		level := models.NewLevel(side, r.Price, r.Size, models.Gateio)
		if err := reader.CheckLevel(level); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return reader.TopK(levels, side, c.depth), nil
}
