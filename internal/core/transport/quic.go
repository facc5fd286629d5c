package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// DefaultALPN is the application protocol offered on QUIC connections.
const DefaultALPN = "msgcomm"

// QUICDialer carries the frame stream on one bidirectional QUIC stream.
type QUICDialer struct {
	TLSConfig  *tls.Config
	QUICConfig *quic.Config
}

func NewQUICDialer(tlsConf *tls.Config, quicConf *quic.Config) *QUICDialer {
	if quicConf == nil {
		quicConf = &quic.Config{
			KeepAlivePeriod: 10 * time.Second,
		}
	}
	return &QUICDialer{TLSConfig: tlsConf, QUICConfig: quicConf}
}

func (d *QUICDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, d.TLSConfig, d.QUICConfig)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return &quicConn{conn: conn, stream: stream}, nil
}

type quicConn struct {
	conn   *quic.Conn
	stream *quic.Stream
}

var _ net.Conn = (*quicConn)(nil)

func (c *quicConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *quicConn) Close() error {
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "closed")
}

func (c *quicConn) Alive() bool {
	return c.conn.Context().Err() == nil
}

func (c *quicConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *quicConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicConn) SetDeadline(t time.Time) error      { return c.stream.SetDeadline(t) }
func (c *quicConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *quicConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }
