package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"orderly/models"
	"orderly/reader/readertest"
)

type fakeConnector struct {
	url    string
	resets atomic.Int32
}

func (f *fakeConnector) Exchange() models.Exchange { return models.Bitstamp }

func (f *fakeConnector) Endpoint(symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("empty symbol")
	}
	return f.url, nil
}

func (f *fakeConnector) Subscribe(conn *websocket.Conn, symbol string) error {
	return conn.WriteJSON(map[string]string{"subscribe": symbol})
}

func (f *fakeConnector) Reset() { f.resets.Add(1) }

func (f *fakeConnector) Parse(frame Frame) (*models.NormalizedTick, error) {
	switch string(frame.Data) {
	case "tick":
		return &models.NormalizedTick{
			Exchange: models.Bitstamp,
			Bids:     []models.Level{models.NewLevel(models.Bid, decimal.NewFromInt(1), decimal.NewFromInt(1), models.Bitstamp)},
		}, nil
	case "bad":
		return nil, NewProtocolError(models.Bitstamp, frame.Data, "cannot decode")
	case "reconnect":
		return nil, ErrReconnectRequested
	}
	return nil, nil
}

func testOptions() SessionOptions {
	return SessionOptions{HandshakeTimeout: time.Second, IdleTimeout: 2 * time.Second, PingInterval: time.Second}
}

func TestSessionStream(t *testing.T) {
	srv := readertest.NewServer(t, func(conn *websocket.Conn) {
		readertest.SendText(conn, "hello", "bad", "tick", "tick")
	})
	fc := &fakeConnector{url: srv.URL}

	var frames atomic.Int32
	opts := testOptions()
	opts.OnFrame = func() { frames.Add(1) }

	sess, err := Connect(context.Background(), fc, "BTC/USDT", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if fc.resets.Load() != 1 {
		t.Fatalf("expected connector reset before subscribe")
	}

	var ticks int
	err = sess.Stream(context.Background(), func(tick *models.NormalizedTick) error {
		if tick.ReceivedAt.IsZero() {
			t.Errorf("tick has no receive time")
		}
		ticks++
		return nil
	})
	if err == nil {
		t.Fatal("expected stream to end with an error when the peer closes")
	}
	if ticks != 2 {
		t.Fatalf("expected 2 ticks, got %d", ticks)
	}
	if sess.Frames() != 4 || frames.Load() != 4 {
		t.Fatalf("expected 4 frames, got %d/%d", sess.Frames(), frames.Load())
	}

	subs := srv.Subscriptions()
	if len(subs) != 1 || !strings.Contains(string(subs[0]), "BTC/USDT") {
		t.Fatalf("unexpected subscribe message: %q", subs)
	}
}

func TestSessionReconnectRequested(t *testing.T) {
	srv := readertest.NewServer(t, func(conn *websocket.Conn) {
		readertest.SendText(conn, "tick", "reconnect", "tick")
		readertest.Hold(conn)
	})
	sess, err := Connect(context.Background(), &fakeConnector{url: srv.URL}, "BTC/USDT", testOptions())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	var ticks int
	err = sess.Stream(context.Background(), func(*models.NormalizedTick) error { ticks++; return nil })
	if !errors.Is(err, ErrReconnectRequested) {
		t.Fatalf("expected ErrReconnectRequested, got %v", err)
	}
	if ticks != 1 {
		t.Fatalf("expected 1 tick before reconnect, got %d", ticks)
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	srv := readertest.NewServer(t, readertest.Hold)
	opts := testOptions()
	opts.IdleTimeout = 100 * time.Millisecond
	opts.PingInterval = time.Hour

	sess, err := Connect(context.Background(), &fakeConnector{url: srv.URL}, "BTC/USDT", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	start := time.Now()
	if _, err := sess.Next(context.Background()); err == nil {
		t.Fatal("expected idle timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("idle timeout took %s", elapsed)
	}
}

func TestSessionCancel(t *testing.T) {
	srv := readertest.NewServer(t, readertest.Hold)
	ctx, cancel := context.WithCancel(context.Background())
	sess, err := Connect(ctx, &fakeConnector{url: srv.URL}, "BTC/USDT", testOptions())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Stream(ctx, func(*models.NormalizedTick) error { return nil })
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestConnectFailure(t *testing.T) {
	srv := readertest.NewServer(t, nil)
	url := srv.URL
	srv.Close()

	_, err := Connect(context.Background(), &fakeConnector{url: url}, "BTC/USDT", testOptions())
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
	if cerr.Exchange != models.Bitstamp || cerr.URL != url {
		t.Fatalf("unexpected error fields: %+v", cerr)
	}

	_, err = Connect(context.Background(), &fakeConnector{url: url}, "", testOptions())
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConnectionError for bad symbol, got %v", err)
	}
}

func TestProtocolErrorTruncatesPayload(t *testing.T) {
	err := NewProtocolError(models.Kraken, []byte(strings.Repeat("x", 1000)), "bad %s", "frame")
	if len(err.Error()) > 400 {
		t.Fatalf("error message too long: %d", len(err.Error()))
	}
	if !strings.Contains(err.Error(), "bad frame") {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if len(err.Truncated()) != 256 || len(err.Payload) != 1000 {
		t.Fatalf("truncated = %d bytes, payload = %d bytes", len(err.Truncated()), len(err.Payload))
	}
}
