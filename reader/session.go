package reader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"orderly/logger"
	"orderly/models"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultKeepAlive        = 15 * time.Second
	controlWriteTimeout     = time.Second
)

// SessionOptions tunes the socket behaviour of a session.
type SessionOptions struct {
	HandshakeTimeout time.Duration
	// IdleTimeout closes the session when no frame, ping or pong arrives
	// within the interval. Zero disables it.
	IdleTimeout  time.Duration
	PingInterval time.Duration
	// OnFrame is called after every frame read from the socket.
	OnFrame func()
	Dialer  *websocket.Dialer
}

// Session is one live, subscribed connection to a venue.
type Session struct {
	connector Connector
	conn      *websocket.Conn
	url       string
	idle      time.Duration
	onFrame   func()
	cancel    context.CancelFunc
	closeOnce sync.Once
	frames    atomic.Int64
	log       *logger.Entry
}

// Connect resolves the venue URL for symbol, dials it and sends the
// subscribe handshake. Every failure is returned as a *ConnectionError.
func Connect(ctx context.Context, c Connector, symbol string, opts SessionOptions) (*Session, error) {
	exchange := c.Exchange()

	url, err := c.Endpoint(symbol)
	if err != nil {
		return nil, &ConnectionError{Exchange: exchange, Err: err}
	}

	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = handshake
		dialer = &d
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &ConnectionError{Exchange: exchange, URL: url, Err: err}
	}

	if r, ok := c.(Resetter); ok {
		r.Reset()
	}

	conn.SetWriteDeadline(time.Now().Add(handshake))
	if err := c.Subscribe(conn, symbol); err != nil {
		conn.Close()
		return nil, &ConnectionError{Exchange: exchange, URL: url, Err: err}
	}
	conn.SetWriteDeadline(time.Time{})

	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		connector: c,
		conn:      conn,
		url:       url,
		idle:      opts.IdleTimeout,
		onFrame:   opts.OnFrame,
		cancel:    cancel,
		log: logger.GetLogger().WithComponent("session").WithFields(logger.Fields{
			"exchange": exchange.String(),
			"url":      url,
		}),
	}

	conn.SetPingHandler(func(data string) error {
		s.extendDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})

	// A blocked read only returns once the socket is closed.
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()
	startPingLoop(sessCtx, cancel, conn, opts.PingInterval, s.log)

	s.log.Info("subscribed")
	return s, nil
}

func (s *Session) extendDeadline() {
	if s.idle > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.idle))
	}
}

// URL returns the endpoint the session is connected to.
func (s *Session) URL() string {
	return s.url
}

// Frames returns the number of frames read so far.
func (s *Session) Frames() int64 {
	return s.frames.Load()
}

// Next blocks until the next frame arrives, the idle timeout expires or ctx
// is cancelled.
func (s *Session) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.extendDeadline()
	typ, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}
		return Frame{}, err
	}
	s.frames.Add(1)
	if s.onFrame != nil {
		s.onFrame()
	}
	return Frame{Type: typ, Data: data}, nil
}

// Stream reads frames until an I/O error, a reconnect request, an emit
// error or cancellation. Protocol errors are logged and the frame skipped.
func (s *Session) Stream(ctx context.Context, emit func(*models.NormalizedTick) error) error {
	defer s.Close()

	for {
		frame, err := s.Next(ctx)
		if err != nil {
			return err
		}

		tick, err := s.connector.Parse(frame)
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				logger.IncrementProtocolError()
				s.log.WithError(perr.Err).WithField("payload", perr.Truncated()).Warn("discarding malformed frame")
				continue
			}
			return err
		}
		if tick == nil {
			continue
		}
		if tick.ReceivedAt.IsZero() {
			tick.ReceivedAt = time.Now()
		}

		logger.IncrementTickRead()
		if err := emit(tick); err != nil {
			return err
		}
		logger.LogDataFlowEntry(s.log, tick.Exchange.String(), "tick_channel", len(tick.Bids)+len(tick.Asks), "normalized_tick")
	}
}

// Close sends a close frame and releases the socket.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWriteTimeout))
		s.cancel()
		s.conn.Close()
	})
}

func startPingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, interval time.Duration, log *logger.Entry) {
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteTimeout)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					cancel()
					return
				}
			}
		}
	}()
}
