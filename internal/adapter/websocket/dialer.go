package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/quake-watch/internal/stream"
	"github.com/gorilla/websocket"
)

// Dialer connects to the WebSocket push stream.
// It implements stream.Dialer.
type Dialer struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewDialer creates a dialer for the stream at url (ws:// or wss://).
func NewDialer(url string, logger *slog.Logger) *Dialer {
	return &Dialer{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Dial opens the WebSocket connection.
func (d *Dialer) Dial(ctx context.Context) (stream.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", d.url, err)
	}
	d.logger.Debug("websocket handshake complete", "url", d.url)
	return &Conn{conn: conn}, nil
}

// Conn adapts a WebSocket connection to stream.Conn: one message is one payload.
type Conn struct {
	conn *websocket.Conn
}

// Read returns the next text or binary message. Control frames are handled
// by the library; ctx is honoured by the session closing the connection.
func (c *Conn) Read(_ context.Context) ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read websocket message: %w", err)
	}
	return payload, nil
}

// Close closes the underlying network connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
