package conn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one open stream of frames.
type Transport interface {
	// Read blocks for the next frame. It returns an error once the stream
	// ends; a *websocket.CloseError reports an orderly close by the peer.
	Read() ([]byte, error)
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

// NewWebSocketDialer returns a dialer using the handshake timeout and read
// limit from cfg.
func NewWebSocketDialer(cfg *Config) *WebSocketDialer {
	return &WebSocketDialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadLimit:        cfg.ReadLimit,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = d.HandshakeTimeout

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

// peerClosed reports whether err is an orderly close from the other side.
func peerClosed(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
