package bitstamp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"orderly/models"
	"orderly/reader"
	"orderly/reader/readertest"
)

func text(s string) reader.Frame {
	return reader.Frame{Type: websocket.TextMessage, Data: []byte(s)}
}

const snapshot = `{"data":{"timestamp":"1","microtimestamp":"1000",
	"bids":[["100.1","0.5"],["100.3","1.5"],["100.2","0"]],
	"asks":[["101","2"],["100.9","1"]]},
	"channel":"order_book_btcusdt","event":"data"}`

func TestParseSnapshot(t *testing.T) {
	c := New(reader.Options{Depth: 10})
	tick, err := c.Parse(text(snapshot))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tick == nil || tick.Exchange != models.Bitstamp {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	if len(tick.Bids) != 2 || tick.Bids[0].Price.String() != "100.3" {
		t.Fatalf("unexpected bids: %v", tick.Bids)
	}
	if len(tick.Asks) != 2 || tick.Asks[0].Price.String() != "100.9" {
		t.Fatalf("unexpected asks: %v", tick.Asks)
	}
}

func TestParseTruncates(t *testing.T) {
	c := New(reader.Options{Depth: 1})
	tick, err := c.Parse(text(snapshot))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tick.Bids) != 1 || len(tick.Asks) != 1 {
		t.Fatalf("expected one level per side, got %d/%d", len(tick.Bids), len(tick.Asks))
	}
}

func TestParseControlFrames(t *testing.T) {
	c := New(reader.Options{})
	for _, f := range []reader.Frame{
		text(`{"event":"bts:subscription_succeeded","channel":"order_book_btcusdt","data":{}}`),
		text(`{"event":"bts:heartbeat","channel":"","data":{"status":"success"}}`),
		{Type: websocket.BinaryMessage, Data: []byte{1, 2}},
	} {
		tick, err := c.Parse(f)
		if err != nil || tick != nil {
			t.Fatalf("expected no tick for %q, got %v %v", f.Data, tick, err)
		}
	}
}

func TestParseErrors(t *testing.T) {
	c := New(reader.Options{})
	if _, err := c.Parse(text(`{"event":"bts:request_reconnect","channel":"","data":""}`)); !errors.Is(err, reader.ErrReconnectRequested) {
		t.Fatalf("expected reconnect request, got %v", err)
	}

	var perr *reader.ProtocolError
	for _, s := range []string{
		`not json`,
		`{"event":"data","data":{"bids":[["x","1"]],"asks":[]}}`,
		`{"event":"bts:error","channel":"","data":{"code":null,"message":"Bad subscription string."}}`,
	} {
		if _, err := c.Parse(text(s)); !errors.As(err, &perr) {
			t.Fatalf("expected protocol error for %q, got %v", s, err)
		}
	}
}

func TestVenueErrorMessage(t *testing.T) {
	c := New(reader.Options{})
	for frame, want := range map[string]string{
		`{"event":"bts:error","data":{"code":null,"message":"Bad subscription string."}}`: "venue error: Bad subscription string.",
		`{"event":"bts:error","data":"channel closed"}`:                                     `venue error: "channel closed"`,
		`{"event":"bts:error"}`:                                                             "venue error: no error details",
	} {
		_, err := c.Parse(text(frame))
		var perr *reader.ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("expected protocol error for %s, got %v", frame, err)
		}
		if got := perr.Err.Error(); got != want {
			t.Errorf("error for %s = %q, want %q", frame, got, want)
		}
	}
}

func TestSubscribe(t *testing.T) {
	srv := readertest.NewServer(t, func(conn *websocket.Conn) {
		readertest.SendText(conn, snapshot)
		readertest.Hold(conn)
	})
	c := New(reader.Options{URL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := reader.Connect(ctx, c, "BTC/USDT", reader.SessionOptions{IdleTimeout: time.Second})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	frame, err := sess.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if tick, err := c.Parse(frame); err != nil || tick == nil {
		t.Fatalf("expected tick, got %v %v", tick, err)
	}

	var req subscribeRequest
	if err := json.Unmarshal(srv.Subscriptions()[0], &req); err != nil {
		t.Fatalf("decode subscribe: %v", err)
	}
	if req.Event != "bts:subscribe" || req.Data.Channel != "order_book_btcusdt" {
		t.Fatalf("unexpected subscribe: %+v", req)
	}
}
