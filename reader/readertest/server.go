// Package readertest provides a fake venue WebSocket server for tests.
package readertest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Handler drives one accepted connection. The connection is closed when it
// returns.
type Handler func(conn *websocket.Conn)

// Server is a WebSocket server on a local loopback port.
type Server struct {
	URL   string
	srv   *httptest.Server
	conns atomic.Int64
	mu    sync.Mutex
	subs  [][]byte
	open  map[*websocket.Conn]struct{}
}

// NewServer starts a server that calls handle for every connection after
// reading the first (subscribe) message. It is closed with t.Cleanup.
func NewServer(t testing.TB, handle Handler) *Server {
	t.Helper()
	s := &Server{open: make(map[*websocket.Conn]struct{})}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.track(conn)
		defer s.untrack(conn)
		s.conns.Add(1)

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.subs = append(s.subs, msg)
		s.mu.Unlock()

		if handle != nil {
			handle(conn)
		}
	}))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	t.Cleanup(s.Close)
	return s
}

// Connections returns the number of accepted connections.
func (s *Server) Connections() int64 {
	return s.conns.Load()
}

// Subscriptions returns the first message of every connection so far.
func (s *Server) Subscriptions() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.subs))
	copy(out, s.subs)
	return out
}

// WaitSubscriptions polls until n subscribe messages have arrived or fails
// the test after a few seconds.
func (s *Server) WaitSubscriptions(t testing.TB, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		subs := s.Subscriptions()
		if len(subs) >= n {
			return subs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d subscriptions, want %d", len(subs), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.open[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.open, conn)
	s.mu.Unlock()
	conn.Close()
}

// DropAll closes every active connection without stopping the server.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.open {
		conn.Close()
	}
}

// Close shuts the server down and closes active connections.
func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

// SendText writes each message as a text frame, stopping at the first error.
func SendText(conn *websocket.Conn, msgs ...string) error {
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			return err
		}
	}
	return nil
}

// Hold blocks until the peer closes the connection.
func Hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
