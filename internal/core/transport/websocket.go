package transport

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer carries the frame stream inside binary WebSocket messages.
type WebSocketDialer struct {
	Path   string
	Dialer *websocket.Dialer
}

func NewWebSocketDialer(path string) *WebSocketDialer {
	if path == "" {
		path = "/"
	}
	return &WebSocketDialer{Path: path, Dialer: websocket.DefaultDialer}
}

func (d *WebSocketDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: d.Path}
	ws, _, err := d.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

// wsConn adapts a message-oriented websocket to a byte stream. Each Write is
// one binary message; Read drains messages in order and skips non-binary ones.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
	closed atomic.Bool
}

var _ net.Conn = (*wsConn)(nil)

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			typ, r, err := c.ws.NextReader()
			if err != nil {
				c.closed.Store(true)
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.closed.Store(true)
	return c.ws.Close()
}

func (c *wsConn) Alive() bool {
	return !c.closed.Load()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
