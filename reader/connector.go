package reader

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"orderly/models"
)

// Frame is one message read from a venue socket.
type Frame struct {
	Type int
	Data []byte
}

// IsText reports whether the frame carries a text payload.
func (f Frame) IsText() bool {
	return f.Type == websocket.TextMessage
}

// Connector hides one venue's wire protocol behind a uniform shape.
//
// Endpoint and Subscribe are used by Connect to open a session. Parse maps a
// frame to at most one tick: control and keepalive frames yield (nil, nil), a
// malformed data frame yields a *ProtocolError.
type Connector interface {
	Exchange() models.Exchange
	Endpoint(symbol string) (string, error)
	Subscribe(conn *websocket.Conn, symbol string) error
	Parse(frame Frame) (*models.NormalizedTick, error)
}

// Resetter is implemented by connectors that rebuild a local book from diff
// messages. Reset is called on every new session before subscribing.
type Resetter interface {
	Reset()
}

// ErrReconnectRequested is returned by Parse when the venue asks the client
// to reconnect.
var ErrReconnectRequested = errors.New("venue requested reconnect")

// ConnectionError reports a dial, TLS or handshake failure for one venue.
type ConnectionError struct {
	Exchange models.Exchange
	URL      string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: connection failed: %v", e.Exchange, e.Err)
	}
	return fmt.Sprintf("%s: connection to %s failed: %v", e.Exchange, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

const maxPayloadInError = 256

// ProtocolError reports a frame that could not be decoded into a tick.
// Payload holds the raw frame.
type ProtocolError struct {
	Exchange models.Exchange
	Payload  []byte
	Err      error
}

// NewProtocolError builds a ProtocolError from a format string.
func NewProtocolError(exchange models.Exchange, payload []byte, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Exchange: exchange, Payload: payload, Err: fmt.Errorf(format, args...)}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error: %v (payload %q)", e.Exchange, e.Err, e.Truncated())
}

// Truncated returns at most the first 256 bytes of the payload.
func (e *ProtocolError) Truncated() string {
	if len(e.Payload) > maxPayloadInError {
		return string(e.Payload[:maxPayloadInError])
	}
	return string(e.Payload)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
