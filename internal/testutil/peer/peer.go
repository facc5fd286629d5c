// Package peer is a minimal dispatcher for tests: it accepts sessions over
// loopback TCP, acks their logon, records every header they send and lets
// the test inject frames or drop connections.
package peer

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

type Option func(*Peer)

// WithoutLogonAck makes the peer ignore Logon headers.
func WithoutLogonAck() Option {
	return func(p *Peer) { p.ackLogon = false }
}

type Peer struct {
	t        testing.TB
	ln       net.Listener
	codec    protocol.ProtoCodec
	ackLogon bool

	mu    sync.Mutex
	conns []net.Conn

	accepted   atomic.Int64
	heartbeats atomic.Int64
	received   chan *protocol.Header
}

// Start listens on a loopback port until the test ends.
func Start(t testing.TB, opts ...Option) *Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &Peer{
		t:        t,
		ln:       ln,
		ackLogon: true,
		received: make(chan *protocol.Header, 1024),
	}
	for _, opt := range opts {
		opt(p)
	}
	t.Cleanup(p.Close)

	go p.acceptLoop()
	return p
}

func (p *Peer) Addr() string {
	return p.ln.Addr().String()
}

func (p *Peer) Host() string {
	host, _, _ := net.SplitHostPort(p.Addr())
	return host
}

func (p *Peer) Port() int {
	_, port, _ := net.SplitHostPort(p.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Accepted returns how many connections were accepted so far.
func (p *Peer) Accepted() int {
	return int(p.accepted.Load())
}

// Heartbeats returns how many zero-length frames were received.
func (p *Peer) Heartbeats() int {
	return int(p.heartbeats.Load())
}

func (p *Peer) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
		p.accepted.Add(1)
		go p.serve(conn)
	}
}

func (p *Peer) serve(conn net.Conn) {
	for {
		payload, err := protocol.ReadFrame(conn, protocol.DefaultMaxFrameSize)
		if err != nil {
			return
		}
		if len(payload) == 0 {
			p.heartbeats.Add(1)
			continue
		}
		h, err := p.codec.Decode(payload)
		if err != nil {
			continue
		}
		if h.MsgType == protocol.MsgTypeLogon && p.ackLogon {
			_ = p.write(conn, &protocol.Header{MsgKey: h.MsgKey, MsgType: protocol.MsgTypeAck})
		}
		select {
		case p.received <- h:
		default:
		}
	}
}

func (p *Peer) current() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

func (p *Peer) write(conn net.Conn, h *protocol.Header) error {
	payload, err := p.codec.Encode(h)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(conn, payload)
}

// Send writes h to the most recently accepted connection.
func (p *Peer) Send(h *protocol.Header) {
	p.t.Helper()
	conn := p.current()
	require.NotNil(p.t, conn, "no session connected")
	require.NoError(p.t, p.write(conn, h))
}

// SendRaw writes b, which must already be framed, as is.
func (p *Peer) SendRaw(b []byte) {
	p.t.Helper()
	conn := p.current()
	require.NotNil(p.t, conn, "no session connected")
	_, err := conn.Write(b)
	require.NoError(p.t, err)
}

// Next returns the next recorded header, or nil after timeout.
func (p *Peer) Next(timeout time.Duration) *protocol.Header {
	select {
	case h := <-p.received:
		return h
	case <-time.After(timeout):
		return nil
	}
}

// Expect skips recorded headers until one matches, failing the test after
// timeout.
func (p *Peer) Expect(timeout time.Duration, match func(*protocol.Header) bool) *protocol.Header {
	p.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case h := <-p.received:
			if match(h) {
				return h
			}
		case <-deadline:
			require.FailNow(p.t, "expected header not received")
			return nil
		}
	}
}

// ExpectType is Expect for the first header of the given type.
func (p *Peer) ExpectType(timeout time.Duration, typ protocol.MsgType) *protocol.Header {
	p.t.Helper()
	return p.Expect(timeout, func(h *protocol.Header) bool { return h.MsgType == typ })
}

// DropConnections closes every accepted connection.
func (p *Peer) DropConnections() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Close stops listening and drops every connection.
func (p *Peer) Close() {
	_ = p.ln.Close()
	p.DropConnections()
}
