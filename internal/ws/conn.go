package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

type DialConfig struct {
	TLS              *tls.Config
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Conn is a text-frame WebSocket transport. Writes are serialized; reads
// must come from a single goroutine.
type Conn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a WebSocket connection to url.
func Dial(ctx context.Context, url string, cfg DialConfig) (*Conn, error) {
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		TLSClientConfig:  cfg.TLS,
	}

	conn, resp, err := dialer.DialContext(ctx, url, cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s failed: status=%d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s failed: %w", url, err)
	}
	return NewConn(conn), nil
}

// NewConn wraps an established gorilla connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive returns the next data frame. A normal close from the peer is
// reported as io.EOF.
func (c *Conn) Receive() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

// Close sends a close frame and tears down the connection. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// the peer may already be gone; the close frame is best effort
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
