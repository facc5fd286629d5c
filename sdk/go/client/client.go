// Package client is the public entry point to a messaging session: it wraps
// one reconnecting session with per-type message handlers and client events.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/msgcomm/internal/core/events/bus"
	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/session"
)

type (
	Config       = session.Config
	LogonConfig  = session.LogonConfig
	Header       = protocol.Header
	MsgType      = protocol.MsgType
	SendRequest  = session.SendRequest
	Subscription = protocol.Subscription
)

const (
	MsgTypeCustom = protocol.MsgTypeCustom
	MsgTypeAck    = protocol.MsgTypeAck
	MsgTypeNack   = protocol.MsgTypeNack
)

// Client represents one session with a dispatcher
type Client struct {
	comm *session.Comm
	ctx  *session.ClientContext

	// Event handlers
	messageHandlers map[MsgType][]MessageHandler
	handlerMutex    sync.RWMutex
	events          bus.EventBus

	subs   []bus.Subscription
	closed atomic.Bool

	logger log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return session.DefaultConfig()
}

// LoadConfigFile reads a yaml configuration on top of the defaults.
func LoadConfigFile(path string) (Config, error) {
	return session.LoadConfigFile(path)
}

// MessageHandler defines a function type for handling incoming messages
type MessageHandler func(msg *Header) error

// EventHandler defines a function type for handling client events
type EventHandler func(event Event) error

// EventType represents different types of client events
type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeReconnecting EventType = "reconnecting"
	EventTypeLoggedOn     EventType = "logged_on"
	EventTypeSubscribed   EventType = "subscribed"
	EventTypeError        EventType = "error"
)

// Event represents a client event
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
	Error     error
}

// NewClient creates a client for config. It does not connect.
func NewClient(config Config) (*Client, error) {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.New(level).With(log.String("component", "client"))

	comm, err := session.New(config, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	c := &Client{
		comm:            comm,
		ctx:             comm.NewContext(),
		messageHandlers: make(map[MsgType][]MessageHandler),
		events:          bus.New(),
		logger:          logger,
	}
	c.events.AddObserver(bus.NewLogObserver(logger))
	if err = c.bindEvents(); err != nil {
		_ = comm.Close()
		return nil, err
	}

	c.logger.Info("Client created", log.String("client_id", c.ctx.ID().String()))
	return c, nil
}

func (c *Client) bindEvents() error {
	bind := func(sub bus.Subscription, err error) error {
		if err == nil {
			c.subs = append(c.subs, sub)
		}
		return err
	}

	if err := bind(c.comm.OnConnectChanged(func(connected bool) {
		typ := EventTypeDisconnected
		if connected {
			typ = EventTypeConnected
		}
		c.emitEvent(Event{Type: typ, Timestamp: time.Now(), Data: map[string]any{"server_addr": c.comm.Addr()}})
	})); err != nil {
		return err
	}
	if err := bind(c.comm.OnStatusChanged(func(s session.StatusChange) {
		if s.State != protocol.RetryConnect {
			return
		}
		c.emitEvent(Event{Type: EventTypeReconnecting, Timestamp: time.Now(), Data: map[string]any{
			"reason":  s.Reason.String(),
			"details": s.Details,
		}})
	})); err != nil {
		return err
	}
	if err := bind(c.comm.OnLogonComplete(func(v session.LogonComplete) {
		c.emitEvent(Event{Type: EventTypeLoggedOn, Timestamp: time.Now(), Data: map[string]any{"replayed": v.Replayed}})
	})); err != nil {
		return err
	}
	if err := bind(c.comm.OnSubscribed(func(v session.Subscribed) {
		c.emitEvent(Event{Type: EventTypeSubscribed, Timestamp: time.Now(), Data: map[string]any{
			"subscription": v.Subscription,
			"subscribe":    v.Subscribe,
		}})
	})); err != nil {
		return err
	}
	if err := bind(c.comm.OnStoreReplayFailed(func(v session.ReplayFailure) {
		c.emitEvent(Event{Type: EventTypeError, Timestamp: time.Now(), Error: v.Err, Data: map[string]any{
			"replayed":  v.Replayed,
			"remaining": v.Remaining,
		}})
	})); err != nil {
		return err
	}
	return bind(c.comm.OnMessageReceived(c.handleMessage))
}

// Connect dials the dispatcher and starts the logon. A configured
// reconnect_retry keeps retrying in the background after a failure.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.comm.IsConnected() {
		return ErrAlreadyConnected
	}

	c.logger.Info("Connecting to server", log.String("addr", c.comm.Addr()))
	if !c.comm.Connect(ctx) {
		return fmt.Errorf("%w: %s", ErrConnectFailed, c.comm.Reason())
	}
	return nil
}

// Disconnect closes the connection and stops any reconnect retries
func (c *Client) Disconnect() error {
	if c.comm.State() == protocol.Disconnected {
		return ErrNotConnected
	}
	c.comm.Disconnect()
	return nil
}

// ChangeConnection moves the session to another dispatcher and logs on there
// with the same logon payload.
func (c *Client) ChangeConnection(host string, port int) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.comm.ChangeConnection(host, port, c.comm.LogonPayload()) {
		return fmt.Errorf("%w: %s", ErrConnectFailed, c.comm.Reason())
	}
	return nil
}

// Close closes the client and releases all resources
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Info("Closing client")
	for _, sub := range c.subs {
		_ = sub.Cancel()
	}
	_ = c.ctx.Close()
	return c.comm.Close()
}

// Send transmits req. Tracked messages are resent until acknowledged even
// when the first transmission fails.
func (c *Client) Send(req SendRequest) (*Header, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.ctx.SendCommon(req)
}

// SendBytes sends payload to one client.
func (c *Client) SendBytes(clientType, clientID int32, payload []byte) (*Header, error) {
	return c.Send(SendRequest{
		Type:           MsgTypeCustom,
		Payload:        payload,
		DestClientType: clientType,
		DestClientID:   clientID,
	})
}

// Publish broadcasts payload on a topic.
func (c *Client) Publish(clientType, topic int32, payload []byte) (*Header, error) {
	return c.Send(SendRequest{
		Type:           MsgTypeCustom,
		Payload:        payload,
		DestClientType: clientType,
		Topic:          topic,
	})
}

// Request sends req and blocks until its ack or reply arrives. A zero
// timeout uses the configured wait_timeout.
func (c *Client) Request(ctx context.Context, req SendRequest, timeout time.Duration) (*Header, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	_, rx, err := c.ctx.SendCommonAndWait(ctx, req, timeout)
	if err != nil {
		return nil, err
	}
	if rx == nil {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrMessageTimeout
	}
	return rx, nil
}

// Reply answers msg with a custom message routed back to its origin.
func (c *Client) Reply(msg *Header, payload []byte) (*Header, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.ctx.SendReply(MsgTypeCustom, payload, msg, false, false)
}

func (c *Client) Ack(msg *Header) error {
	return c.ctx.SendAck(msg)
}

func (c *Client) Nack(msg *Header, reason int32, details string) error {
	return c.ctx.SendNack(msg, reason, details)
}

// Subscribe registers a subscription; it is (re)sent on every logon.
func (c *Client) Subscribe(sub Subscription) bool {
	return c.comm.AddSubscribe(sub, true)
}

func (c *Client) Unsubscribe(sub Subscription) bool {
	return c.comm.AddSubscribe(sub, false)
}

// OnMessage registers a handler for incoming messages of msgType. Handlers
// run on the read loop in arrival order and must not block.
func (c *Client) OnMessage(msgType MsgType, handler MessageHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()

	c.messageHandlers[msgType] = append(c.messageHandlers[msgType], handler)
	c.logger.Debug("Message handler registered", log.String("type", msgType.String()))
}

// OnEvent registers a handler for client events. Events are delivered off
// the session goroutines, one event at a time per emission.
func (c *Client) OnEvent(eventType EventType, handler EventHandler) {
	if handler == nil {
		return
	}
	_, _ = c.events.Subscribe(string(eventType), func(ev bus.Event) error {
		event, ok := ev.Data().(Event)
		if !ok {
			return nil
		}
		return handler(event)
	})
}

func (c *Client) ID() string {
	return c.ctx.ID().String()
}

func (c *Client) IsConnected() bool {
	return c.comm.IsConnected()
}

func (c *Client) IsLoggedOn() bool {
	return c.comm.IsLoggedOn()
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// IsClientOnline reports whether the dispatcher last saw the client online.
func (c *Client) IsClientOnline(clientType, clientID int32) bool {
	return c.comm.IsClientOnline(clientType, clientID)
}

func (c *Client) State() string {
	return c.comm.State().String()
}

func (c *Client) handleMessage(msg *Header) {
	c.handlerMutex.RLock()
	handlers := c.messageHandlers[msg.MsgType]
	c.handlerMutex.RUnlock()

	for _, handler := range handlers {
		if err := handler(msg); err != nil {
			c.logger.Error("Message handler error",
				log.Int32("msg_key", msg.MsgKey),
				log.Error(err))
		}
	}
}

// emitEvent publishes asynchronously; handler errors are logged by the bus
// observer.
func (c *Client) emitEvent(event Event) {
	_ = c.events.PublishAsync(bus.NewEvent(string(event.Type), c.comm.Name(), event, nil))
}
