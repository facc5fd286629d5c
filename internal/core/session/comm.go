// Package session implements a reliable client session to a message
// dispatcher: connection state machine, logon, heartbeats, server timeout,
// acknowledgment tracking, resends and durable store replay.
package session

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/zeusync/msgcomm/internal/core/events/bus"
	"github.com/zeusync/msgcomm/internal/core/ledger"
	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/store"
	"github.com/zeusync/msgcomm/internal/core/transport"
)

// Comm is one client session over a single connection to the dispatcher.
// Sends are safe from any goroutine. Inbound messages are handled on the
// read loop goroutine; timers run on their own goroutines.
type Comm struct {
	cfg    Config
	logger log.Log
	conn   *transport.Handler
	ledger *ledger.Ledger[*ClientContext]
	store  store.Store
	events bus.EventBus
	// observer logs failed notifications on events.
	observer *bus.LogObserver

	msgKey atomic.Int32

	// connectMu serializes connect attempts (manual and retry).
	connectMu sync.Mutex

	mu       sync.Mutex
	state    protocol.SocketState
	reason   protocol.DisconnectReason
	stopped  bool
	logon    []byte
	logonKey int32
	subs     map[protocol.Subscription]struct{}

	loggedOn     atomic.Bool
	resendPaused atomic.Bool
	needStore    atomic.Bool
	closed       atomic.Bool

	heartbeat     *timer
	serverTimeout *timer
	resend        *timer
	retry         *timer

	noContext *ClientContext
}

// New builds a disconnected session. Collaborators not given as options are
// built from cfg.
func New(cfg Config, opts ...Option) (*Comm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, protocol.WrapError(protocol.ErrorCodeInvalidConfig, err, "log level")
		}
		o.logger = log.New(level)
	}
	logger := o.logger.With(log.String("component", "session"), log.String("name", cfg.Name))

	if o.codec == nil {
		o.codec = protocol.ProtoCodec{}
	}
	if o.events == nil {
		o.events = bus.New()
	}
	if o.dialer == nil {
		d, err := transport.NewDialer(cfg.Transport)
		if err != nil {
			return nil, protocol.WrapError(protocol.ErrorCodeInvalidConfig, err, "transport")
		}
		o.dialer = d
	}
	if o.store == nil {
		s, err := OpenStore(cfg.Store, o.codec, o.logger)
		if err != nil {
			return nil, err
		}
		o.store = s
	}

	logon := o.logon
	if !o.hasLogon && cfg.Logon != nil {
		name := cfg.Logon.Name
		if name == "" {
			name = cfg.Name
		}
		logon = (&protocol.Logon{ClientType: cfg.Logon.ClientType, ClientID: cfg.Logon.ClientID, Name: name}).Marshal()
	}

	c := &Comm{
		cfg:      cfg,
		logger:   logger,
		ledger:   ledger.New[*ClientContext](cfg.LedgerShards),
		store:    o.store,
		events:   o.events,
		observer: bus.NewLogObserver(logger),
		logon:    logon,
		subs:     make(map[protocol.Subscription]struct{}),
	}
	c.events.AddObserver(c.observer)
	c.conn = transport.NewHandler(transport.Config{
		Addr:         cfg.Addr(),
		DialTimeout:  cfg.ConnectTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxFrameSize: cfg.MaxFrameSize,
	}, o.dialer, o.codec, o.logger)
	c.conn.OnFrame(c.onFrame)

	for _, s := range cfg.Subscriptions {
		c.subs[protocol.Subscription{ClientType: s.ClientType, ClientID: s.ClientID, Topic: s.Topic}] = struct{}{}
	}

	c.needStore.Store(true)
	c.heartbeat = newTimer(c.heartbeatTick)
	c.serverTimeout = newTimer(c.serverTimeoutTick)
	c.resend = newTimer(c.resendTick)
	c.retry = newTimer(c.retryTick)
	c.noContext = newClientContext(c)

	return c, nil
}

// OpenStore builds the store named by cfg. A nil Store means messages are
// never persisted.
func OpenStore(cfg StoreConfig, codec protocol.Codec, logger log.Log) (store.Store, error) {
	switch cfg.Kind {
	case "memory":
		return store.NewMsgStore(store.NewMemoryBackend(), logger), nil
	case "file":
		backend, err := store.OpenFileBackend(cfg.Path, codec)
		if err != nil {
			return nil, err
		}
		return store.NewMsgStore(backend, logger), nil
	default:
		return nil, nil
	}
}

func (c *Comm) Name() string {
	return c.cfg.Name
}

func (c *Comm) State() protocol.SocketState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns the reason attached to the last state change.
func (c *Comm) Reason() protocol.DisconnectReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *Comm) IsConnected() bool {
	return c.State() == protocol.Connected
}

func (c *Comm) IsLoggedOn() bool {
	return c.loggedOn.Load()
}

// Addr returns the address the next connect dials.
func (c *Comm) Addr() string {
	return c.conn.Addr()
}

// LogonPayload returns the payload sent as Logon after every connect, nil
// when logon is disabled.
func (c *Comm) LogonPayload() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logon
}

// NoContext returns the context that receives every inbound message no
// other context or waiter claimed.
func (c *Comm) NoContext() *ClientContext {
	return c.noContext
}

// Ledger exposes the delivery ledger for inspection.
func (c *Comm) Ledger() *ledger.Ledger[*ClientContext] {
	return c.ledger
}

// Connect clears a previous manual stop and connects. It reports whether the
// socket connected; failures are only visible through status events.
func (c *Comm) Connect(ctx context.Context) bool {
	if c.closed.Load() {
		return false
	}
	c.disconnect(protocol.ReasonManual, "", true)

	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()

	return c.connect(ctx)
}

// Disconnect closes the session and suppresses reconnects until the next
// Connect.
func (c *Comm) Disconnect() {
	c.disconnect(protocol.ReasonManual, "", true)
}

// ChangeConnection points the session at another dispatcher. A nil logon
// payload disables logon. When the session was connected it reconnects and
// reports the result; otherwise it reports true.
func (c *Comm) ChangeConnection(host string, port int, logon []byte) bool {
	wasConnected := c.IsConnected()
	c.Disconnect()

	c.mu.Lock()
	c.stopped = false
	c.loggedOn.Store(false)
	c.logon = logon
	c.mu.Unlock()
	c.conn.SetAddr(net.JoinHostPort(host, strconv.Itoa(port)))

	if wasConnected && !c.closed.Load() {
		return c.connect(context.Background())
	}
	return true
}

// Close disconnects, stops every timer, releases all waiters and clears the
// ledger. The session cannot be reconnected afterwards.
func (c *Comm) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.Disconnect()

	c.mu.Lock()
	c.stopTimersLocked()
	c.retry.stop()
	c.mu.Unlock()

	c.ledger.Clear()
	c.events.RemoveObserver(c.observer)
	return nil
}

func (c *Comm) connect(ctx context.Context) bool {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.IsConnected() {
		c.disconnect(protocol.ReasonNone, "Reconnecting...", false)
	}
	c.setState(protocol.Connecting, protocol.ReasonNone, "")

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return false
	}

	addr := c.conn.Addr()
	if err := c.conn.Connect(ctx); err != nil {
		c.logger.Warn("Could not connect", log.String("addr", addr), log.Error(err))
		if c.cfg.ReconnectRetry > 0 {
			c.setState(protocol.RetryConnect, protocol.ReasonCouldNotConnect, err.Error())
			c.scheduleRetry()
		} else {
			c.setState(protocol.Disconnected, protocol.ReasonCouldNotConnect, err.Error())
		}
		return false
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.conn.Disconnect()
		c.setState(protocol.Disconnected, protocol.ReasonManual, "")
		return false
	}
	c.loggedOn.Store(false)
	var logon *protocol.Header
	if c.logon != nil {
		logon = &protocol.Header{MsgKey: c.nextKey(), MsgType: protocol.MsgTypeLogon, Payload: c.logon}
		c.logonKey = logon.MsgKey
	} else {
		c.logonKey = 0
	}
	c.serverTimeout.arm(4*c.cfg.ServerTimeout, c.cfg.ServerTimeout)
	c.mu.Unlock()

	c.setState(protocol.Connected, protocol.ReasonNone, "Connected to "+addr)
	if err := c.conn.BeginReading(); err != nil {
		c.disconnect(protocol.ReasonException, err.Error(), false)
		return false
	}

	c.mu.Lock()
	c.resend.arm(c.cfg.ResendPeriod, c.cfg.ResendPeriod)
	c.mu.Unlock()

	if logon != nil {
		_ = c.sendMessage(logon)
	}
	return true
}

func (c *Comm) disconnect(reason protocol.DisconnectReason, details string, stop bool) {
	c.mu.Lock()
	if stop {
		c.stopped = true
	}
	if c.state == protocol.Disconnected || c.state == protocol.Disconnecting {
		if stop {
			c.retry.stop()
		}
		c.mu.Unlock()
		return
	}
	c.retry.stop()
	c.mu.Unlock()

	c.setState(protocol.Disconnecting, reason, details)

	c.mu.Lock()
	c.loggedOn.Store(false)
	c.stopTimersLocked()
	c.mu.Unlock()
	c.conn.Disconnect()

	if reason != protocol.ReasonNone {
		c.logger.Info("Disconnected", log.String("reason", reason.String()), log.String("details", details))
	}
	if c.cfg.ReconnectRetry > 0 && reason.Retryable() {
		c.setState(protocol.RetryConnect, reason, details)
		c.scheduleRetry()
		return
	}
	c.setState(protocol.Disconnected, reason, details)
}

func (c *Comm) stopTimersLocked() {
	c.heartbeat.stop()
	c.serverTimeout.stop()
	c.resend.stop()
}

// scheduleRetry replaces any pending reconnect attempt.
func (c *Comm) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.closed.Load() {
		return
	}
	c.retry.arm(c.cfg.ReconnectRetry, 0)
}

// setState applies a transition and publishes the resulting notifications.
// While stopped, every transition other than Disconnecting lands on
// Disconnected.
func (c *Comm) setState(next protocol.SocketState, reason protocol.DisconnectReason, details string) {
	c.mu.Lock()
	if c.stopped && next != protocol.Disconnecting {
		next = protocol.Disconnected
	}
	wasConnected := c.state == protocol.Connected
	changed := c.state != next || c.reason != reason
	c.state, c.reason = next, reason
	c.mu.Unlock()

	if changed {
		c.logger.Debug("Connection status changed",
			log.String("state", next.String()),
			log.String("reason", reason.String()),
			log.String("details", details))
		c.publish(EventStatusChanged, StatusChange{State: next, Reason: reason, Details: details})
	}
	if isConnected := next == protocol.Connected; isConnected != wasConnected {
		c.publish(EventConnectChanged, ConnectChange{Connected: isConnected})
	}
}

func (c *Comm) nextKey() int32 {
	return c.msgKey.Add(1)
}
