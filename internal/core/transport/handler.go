package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/pkg/generic"
)

// FrameEvent is raised for every decoded frame and every receive error.
// Exactly one of Header and Err is set.
type FrameEvent struct {
	Header *protocol.Header
	Err    error
}

// Config tunes a Handler.
type Config struct {
	Addr         string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrameSize int
}

// Handler owns one connection to the dispatcher. It frames outgoing headers,
// runs the read loop and tracks traffic timestamps. It has no session
// semantics of its own.
type Handler struct {
	cfg     Config
	dialer  Dialer
	codec   protocol.Codec
	logger  log.Log
	buffers *generic.BufferPool

	mu   sync.Mutex
	addr string
	conn net.Conn
	gen  uint64

	writeMu sync.Mutex

	lastSent atomic.Int64
	lastRx   atomic.Int64

	onFrame atomic.Pointer[func(FrameEvent)]
}

func NewHandler(cfg Config, dialer Dialer, codec protocol.Codec, logger log.Log) *Handler {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if dialer == nil {
		dialer = &TCPDialer{}
	}
	if codec == nil {
		codec = protocol.ProtoCodec{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Handler{
		cfg:     cfg,
		addr:    cfg.Addr,
		dialer:  dialer,
		codec:   codec,
		logger:  logger.With(log.String("component", "transport")),
		buffers: generic.NewBufferPool(512, 64*1024),
	}
}

// OnFrame installs the frame callback. It runs on the read loop goroutine.
func (h *Handler) OnFrame(fn func(FrameEvent)) {
	h.onFrame.Store(&fn)
}

// SetAddr changes the address used by the next Connect.
func (h *Handler) SetAddr(addr string) {
	h.mu.Lock()
	h.addr = addr
	h.mu.Unlock()
}

func (h *Handler) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// Connect dials the configured address, replacing any current connection.
func (h *Handler) Connect(ctx context.Context) error {
	h.Disconnect()

	addr := h.Addr()
	if h.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.DialTimeout)
		defer cancel()
	}

	conn, err := h.dialer.Dial(ctx, addr)
	if err != nil {
		return protocol.WrapError(protocol.ErrorCodeConnectFailure, err, "dial "+addr)
	}

	now := time.Now().UnixNano()
	h.lastSent.Store(now)
	h.lastRx.Store(now)

	h.mu.Lock()
	old := h.conn
	h.conn = conn
	h.gen++
	h.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	h.logger.Debug("Connected", log.String("addr", addr))
	return nil
}

// Disconnect closes the current connection. Its read loop ends without
// raising an event.
func (h *Handler) Disconnect() {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.gen++
	h.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		h.logger.Debug("Disconnected", log.String("addr", h.Addr()))
	}
}

func (h *Handler) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// BeginReading starts the read loop for the current connection.
func (h *Handler) BeginReading() error {
	h.mu.Lock()
	conn, gen := h.conn, h.gen
	h.mu.Unlock()

	if conn == nil {
		return protocol.NewProtocolError(protocol.ErrorCodeNotConnected, "begin reading", protocol.ErrNotConnected)
	}
	go h.readLoop(conn, gen)
	return nil
}

func (h *Handler) current(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen == gen
}

func (h *Handler) readLoop(conn net.Conn, gen uint64) {
	for {
		payload, err := protocol.ReadFrame(conn, h.cfg.MaxFrameSize)
		if err != nil {
			if h.current(gen) {
				h.emit(FrameEvent{Err: err})
			}
			return
		}
		h.lastRx.Store(time.Now().UnixNano())

		if len(payload) == 0 {
			continue
		}

		hdr, err := h.codec.Decode(payload)
		if !h.current(gen) {
			return
		}
		if err != nil {
			h.logger.Warn("Failed to decode frame", log.Int("size", len(payload)), log.Error(err))
			h.emit(FrameEvent{Err: err})
			continue
		}
		h.emit(FrameEvent{Header: hdr})
	}
}

func (h *Handler) emit(ev FrameEvent) {
	if fn := h.onFrame.Load(); fn != nil {
		(*fn)(ev)
	}
}

// SendHeader encodes and sends one header.
func (h *Handler) SendHeader(hdr *protocol.Header) error {
	payload, err := h.codec.Encode(hdr)
	if err != nil {
		return err
	}
	return h.SendFrame(payload)
}

// SendFrame writes payload as one frame.
func (h *Handler) SendFrame(payload []byte) error {
	if len(payload) == 0 {
		return protocol.NewProtocolError(protocol.ErrorCodeProtocol, "empty frame payload", protocol.ErrProtocolViolation)
	}
	if err := h.write(payload); err != nil {
		return err
	}
	h.lastSent.Store(time.Now().UnixNano())
	return nil
}

// SendHeartbeat writes a zero-length frame. It does not count as traffic.
func (h *Handler) SendHeartbeat() error {
	return h.write(nil)
}

func (h *Handler) write(payload []byte) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	if conn == nil {
		return protocol.NewProtocolError(protocol.ErrorCodeNotConnected, "send", protocol.ErrNotConnected)
	}

	buf := h.buffers.Get()
	defer h.buffers.Put(buf)
	*buf = protocol.AppendFrame(*buf, payload)

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
	if _, err := conn.Write(*buf); err != nil {
		return protocol.WrapError(protocol.ErrorCodeIOFailure, err, "write frame")
	}
	return nil
}

// CheckConnection reports whether the peer still holds the connection open,
// without consuming any buffered data.
func (h *Handler) CheckConnection() bool {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	if conn == nil {
		return false
	}
	if a, ok := conn.(interface{ Alive() bool }); ok {
		return a.Alive()
	}
	if sc, ok := conn.(syscall.Conn); ok {
		return peekSocket(sc)
	}
	return true
}

func (h *Handler) LastMessageSent() time.Time {
	return time.Unix(0, h.lastSent.Load())
}

func (h *Handler) LastMessageReceived() time.Time {
	return time.Unix(0, h.lastRx.Load())
}
