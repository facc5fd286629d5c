package session

import (
	"github.com/zeusync/msgcomm/internal/core/events/bus"
	"github.com/zeusync/msgcomm/internal/core/protocol"
)

// Event types published on the session's bus.
const (
	EventStatusChanged     = "connection.status"
	EventConnectChanged    = "connection.changed"
	EventMessageReceived   = "message.received"
	EventSubscribed        = "subscription.sent"
	EventLogonComplete     = "logon.complete"
	EventStoreReplayFailed = "store.replay_failed"
)

// StatusChange is the payload of EventStatusChanged.
type StatusChange struct {
	State   protocol.SocketState
	Reason  protocol.DisconnectReason
	Details string
}

// ConnectChange is the payload of EventConnectChanged.
type ConnectChange struct {
	Connected bool
}

// Subscribed is the payload of EventSubscribed.
type Subscribed struct {
	Subscription protocol.Subscription
	Subscribe    bool
}

// LogonComplete is the payload of EventLogonComplete.
type LogonComplete struct {
	Replayed int
}

// ReplayFailure is the payload of EventStoreReplayFailed.
type ReplayFailure struct {
	Replayed  int
	Remaining int
	Err       error
}

// publish delivers synchronously. Handler failures are logged by the
// session's bus observer.
func (c *Comm) publish(eventType string, data any) {
	_ = c.events.Publish(bus.NewEvent(eventType, c.cfg.Name, data, nil))
}

func subscribeTyped[T any](b bus.EventBus, eventType string, fn func(T)) (bus.Subscription, error) {
	return b.Subscribe(eventType, func(ev bus.Event) error {
		if v, ok := ev.Data().(T); ok {
			fn(v)
		}
		return nil
	})
}

// Events exposes the bus the session publishes on.
func (c *Comm) Events() bus.EventBus {
	return c.events
}

// OnStatusChanged subscribes fn to state and reason changes.
func (c *Comm) OnStatusChanged(fn func(StatusChange)) (bus.Subscription, error) {
	return subscribeTyped(c.events, EventStatusChanged, fn)
}

// OnConnectChanged subscribes fn to transitions into and out of Connected.
func (c *Comm) OnConnectChanged(fn func(connected bool)) (bus.Subscription, error) {
	return subscribeTyped(c.events, EventConnectChanged, func(v ConnectChange) { fn(v.Connected) })
}

// OnMessageReceived subscribes fn to every inbound header.
func (c *Comm) OnMessageReceived(fn func(*protocol.Header)) (bus.Subscription, error) {
	return subscribeTyped(c.events, EventMessageReceived, fn)
}

func (c *Comm) OnSubscribed(fn func(Subscribed)) (bus.Subscription, error) {
	return subscribeTyped(c.events, EventSubscribed, fn)
}

func (c *Comm) OnLogonComplete(fn func(LogonComplete)) (bus.Subscription, error) {
	return subscribeTyped(c.events, EventLogonComplete, fn)
}

func (c *Comm) OnStoreReplayFailed(fn func(ReplayFailure)) (bus.Subscription, error) {
	return subscribeTyped(c.events, EventStoreReplayFailed, fn)
}
