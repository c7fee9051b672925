// Package kraken adapts the Kraken v1 book channel.
//
// Kraken sends one snapshot per subscription followed by diffs, so the
// connector keeps a local book and emits its top levels after every message.
package kraken

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"

	"orderly/internal/symbols"
	"orderly/models"
	"orderly/reader"
)

const DefaultURL = "wss://ws.kraken.com"

// Valid book subscription depths.
var bookDepths = []int{10, 25, 100, 500, 1000}

func init() {
	reader.Register(models.Kraken, func(o reader.Options) reader.Connector { return New(o) })
}

type Connector struct {
	url       string
	depth     int
	subDepth  int
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
	sub := bookDepths[len(bookDepths)-1]
	for _, d := range bookDepths {
		if depth <= d {
			sub = d
			break
		}
	}
	return &Connector{
		url:      url,
		depth:    depth,
		subDepth: sub,
		book:     reader.NewLocalBook(models.Kraken, sub),
	}
}

func (c *Connector) Exchange() models.Exchange {
	return models.Kraken
}

func (c *Connector) Endpoint(symbol string) (string, error) {
	if _, err := symbols.ForExchange(models.Kraken, symbol); err != nil {
		return "", err
	}
	return c.url, nil
}

// Reset drops the local book. A new snapshot follows every subscription.
func (c *Connector) Reset() {
	c.book.Reset()
	c.populated = false
}

type subscribeRequest struct {
	Event        string       `json:"event"`
	Pair         []string     `json:"pair"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
}

func (c *Connector) Subscribe(conn *websocket.Conn, symbol string) error {
	pair, err := symbols.ForExchange(models.Kraken, symbol)
	if err != nil {
		return err
	}
	return conn.WriteJSON(subscribeRequest{
		Event:        "subscribe",
		Pair:         []string{pair},
		Subscription: subscription{Name: "book", Depth: c.subDepth},
	})
}

type event struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

// bookMessage holds either a snapshot (as/bs) or an update (a/b/c).
type bookMessage struct {
	AskSnapshot [][]string `json:"as"`
	BidSnapshot [][]string `json:"bs"`
	Asks        [][]string `json:"a"`
	Bids        [][]string `json:"b"`
	Checksum    string     `json:"c"`
}

func (c *Connector) Parse(frame reader.Frame) (*models.NormalizedTick, error) {
	if !frame.IsText() {
		return nil, nil
	}

	data := bytes.TrimSpace(frame.Data)
	if len(data) > 0 && data[0] == '{' {
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, reader.NewProtocolError(models.Kraken, frame.Data, "decode event: %w", err)
		}
		if ev.Event == "subscriptionStatus" && ev.Status == "error" {
			return nil, reader.NewProtocolError(models.Kraken, frame.Data, "subscription failed: %s", ev.ErrorMessage)
		}
		// heartbeat, systemStatus, pong
		return nil, nil
	}

	// [channelID, {..}, ({..},) "book-N", "XBT/USDT"]
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, reader.NewProtocolError(models.Kraken, frame.Data, "decode message: %w", err)
	}
	if len(parts) < 4 {
		return nil, reader.NewProtocolError(models.Kraken, frame.Data, "message has %d elements", len(parts))
	}
	var channel string
	if err := json.Unmarshal(parts[len(parts)-2], &channel); err != nil {
		return nil, reader.NewProtocolError(models.Kraken, frame.Data, "decode channel name: %w", err)
	}
	if !strings.HasPrefix(channel, "book") {
		return nil, nil
	}

	// Decode every book object before touching the local book so a bad
	// frame leaves it unchanged.
	changes := make([]bookChange, 0, len(parts)-3)
	for _, raw := range parts[1 : len(parts)-2] {
		var msg bookMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, reader.NewProtocolError(models.Kraken, frame.Data, "decode book: %w", err)
		}
		change, err := msg.decode()
		if err != nil {
			return nil, reader.NewProtocolError(models.Kraken, frame.Data, "%w", err)
		}
		changes = append(changes, change)
	}

	for _, change := range changes {
		if change.snapshot {
			if err := c.book.Replace(change.levels...); err != nil {
				return nil, reader.NewProtocolError(models.Kraken, frame.Data, "%w", err)
			}
			c.populated = true
			continue
		}
		if err := c.book.Update(change.levels...); err != nil {
			return nil, reader.NewProtocolError(models.Kraken, frame.Data, "%w", err)
		}
	}

	if !c.populated {
		// updates before the first snapshot cannot be placed
		return nil, nil
	}
	return c.book.Tick(c.depth), nil
}

// bookChange is one decoded book object, in the order it must be applied.
type bookChange struct {
	snapshot bool
	levels   []models.Level
}

func (m bookMessage) decode() (bookChange, error) {
	var change bookChange
	sides := []struct {
		side    models.Side
		entries [][]string
	}{
		{models.Ask, m.AskSnapshot},
		{models.Bid, m.BidSnapshot},
		{models.Ask, m.Asks},
		{models.Bid, m.Bids},
	}
	change.snapshot = m.AskSnapshot != nil || m.BidSnapshot != nil
	for _, s := range sides {
		levels, err := reader.DecodeLevels(s.entries, s.side, models.Kraken)
		if err != nil {
			return bookChange{}, err
		}
		change.levels = append(change.levels, levels...)
	}
	return change, nil
}
