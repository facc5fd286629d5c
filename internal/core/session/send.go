package session

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
)

// SendRequest describes one outbound message. A zero DestClientType
// broadcasts; a zero DestClientID addresses every client of the type.
type SendRequest struct {
	Type           protocol.MsgType
	Payload        []byte
	Topic          int32
	DestClientType int32
	DestClientID   int32
	ReplyMsgKey    int32
	// Store persists a tracked message until it is acknowledged, so it is
	// replayed after a restart.
	Store    bool
	Archived bool
}

func (r SendRequest) header(key int32) *protocol.Header {
	return &protocol.Header{
		MsgKey:         key,
		MsgType:        r.Type,
		Topic:          r.Topic,
		DestClientType: r.DestClientType,
		DestClientID:   r.DestClientID,
		ReplyMsgKey:    r.ReplyMsgKey,
		IsArchived:     r.Archived,
		Payload:        r.Payload,
	}
}

// SendCommon sends req on behalf of cc, which may be nil. A tracked message
// stays in the ledger and is resent until its destination acknowledges it,
// so the returned error only reports the first transmission.
func (c *Comm) SendCommon(cc *ClientContext, req SendRequest) (*protocol.Header, error) {
	if cc.isClosed() {
		return nil, errContextClosed()
	}
	msg := req.header(c.nextKey())
	return msg, c.sendCommon(cc, msg, req.Store)
}

// SendCommonAndWait sends req and blocks until a correlated ack or reply
// arrives, timeout elapses or ctx ends. A non-positive timeout means
// Config.WaitTimeout. received is nil when nothing correlated arrived; err
// is only set when cc is closed.
func (c *Comm) SendCommonAndWait(ctx context.Context, cc *ClientContext, req SendRequest, timeout time.Duration) (sent, received *protocol.Header, err error) {
	if cc.isClosed() {
		return nil, nil, errContextClosed()
	}
	if timeout <= 0 {
		timeout = c.cfg.WaitTimeout
	}

	key := c.nextKey()
	w := c.ledger.RegisterWaiter(key, cc)
	defer c.ledger.RemoveWaiter(key)

	sent = req.header(key)
	if err := c.sendCommon(cc, sent, req.Store); err != nil {
		c.logger.Debug("Send failed, waiting for resend", log.Int32("msg_key", key), log.Error(err))
	}
	return sent, w.Wait(ctx, timeout), nil
}

func (c *Comm) sendCommon(cc *ClientContext, msg *protocol.Header, persist bool) error {
	if msg.IsTracked() {
		c.ledger.AddSentMessage(msg, cc)
		if persist && c.store != nil {
			if _, err := c.store.Store(msg, time.Now()); err != nil {
				c.logger.Error("Failed to store message", log.Int32("msg_key", msg.MsgKey), log.Error(err))
			}
		}
	}
	// A reply acknowledges the message it answers.
	if msg.ReplyMsgKey > 0 && msg.DestClientType > 0 {
		c.ledger.RemoveNeedToAck(msg.DestClientType, msg.DestClientID, msg.ReplyMsgKey)
	}
	return c.sendMessage(msg)
}

// sendMessage attaches the keys owed to the destination and transmits msg.
// The owed keys are cleared only once they went out.
func (c *Comm) sendMessage(msg *protocol.Header) error {
	var owed []int32
	if msg.DestClientType > 0 {
		owed, _ = c.ledger.GetNeedToAckList(msg.DestClientType, msg.DestClientID)
		msg.AckKeys = owed
	}

	if err := c.conn.SendHeader(msg); err != nil {
		c.logger.Debug("Failed to send message",
			log.Int32("msg_key", msg.MsgKey),
			log.String("msg_type", msg.MsgType.String()),
			log.Error(err))
		if protocol.IsIOFailure(err) {
			c.disconnect(protocol.ReasonServerDisconnected, err.Error(), false)
		}
		return err
	}

	if msg.DestClientType > 0 {
		c.ledger.RemoveFromNeedToAckList(msg.DestClientType, msg.DestClientID, owed)
	}
	return nil
}

// SendAck acknowledges msg to its origin.
func (c *Comm) SendAck(msg *protocol.Header) error {
	return c.sendMessage(&protocol.Header{
		MsgKey:         msg.MsgKey,
		MsgType:        protocol.MsgTypeAck,
		DestClientType: msg.OrigClientType,
		DestClientID:   msg.OrigClientID,
	})
}

// SendNack tells the origin of msg that it was received but not processed.
func (c *Comm) SendNack(msg *protocol.Header, reason int32, details string) error {
	return c.sendMessage(&protocol.Header{
		MsgKey:         msg.MsgKey,
		MsgType:        protocol.MsgTypeNack,
		DestClientType: msg.OrigClientType,
		DestClientID:   msg.OrigClientID,
		Payload:        (&protocol.NackDetails{Reason: reason, Details: details}).Marshal(),
	})
}

// AddSubscribe adds (subscribe) or removes a subscription. A change is sent
// right away when the session is logged on, and on every later logon. It
// reports whether the subscription set changed.
func (c *Comm) AddSubscribe(sub protocol.Subscription, subscribe bool) bool {
	c.mu.Lock()
	_, had := c.subs[sub]
	if subscribe {
		c.subs[sub] = struct{}{}
	} else {
		delete(c.subs, sub)
	}
	changed := had != subscribe
	send := changed && c.state == protocol.Connected && c.loggedOn.Load()
	c.mu.Unlock()

	if send {
		c.sendSubscription(sub, subscribe)
	}
	return changed
}

// Subscriptions returns the current subscription set in a stable order.
func (c *Comm) Subscriptions() []protocol.Subscription {
	c.mu.Lock()
	out := make([]protocol.Subscription, 0, len(c.subs))
	for sub := range c.subs {
		out = append(out, sub)
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(x, y protocol.Subscription) int {
		return cmp.Or(
			cmp.Compare(x.ClientType, y.ClientType),
			cmp.Compare(x.ClientID, y.ClientID),
			cmp.Compare(x.Topic, y.Topic),
		)
	})
	return out
}

func (c *Comm) sendSubscribeMessages() {
	for _, sub := range c.Subscriptions() {
		c.sendSubscription(sub, true)
	}
}

func (c *Comm) sendSubscription(sub protocol.Subscription, subscribe bool) {
	typ := protocol.MsgTypeSubscribe
	if !subscribe {
		typ = protocol.MsgTypeUnsubscribe
	}
	msg := &protocol.Header{MsgKey: c.nextKey(), MsgType: typ, Payload: sub.Marshal()}
	if err := c.sendMessage(msg); err != nil {
		return
	}
	c.publish(EventSubscribed, Subscribed{Subscription: sub, Subscribe: subscribe})
}

// IsClientOnline reports whether the destination is known to be online.
func (c *Comm) IsClientOnline(clientType, clientID int32) bool {
	return c.ledger.IsClientOnline(clientType, clientID)
}

func (c *Comm) OnlineStatus(clientType, clientID int32) protocol.OnlineStatus {
	return c.ledger.OnlineStatus(clientType, clientID)
}

// NeedToAckMsg reports whether msg is tracked and resent until acknowledged.
func (c *Comm) NeedToAckMsg(msg *protocol.Header) bool {
	return msg != nil && msg.IsTracked()
}

func errContextClosed() error {
	return protocol.NewProtocolError(protocol.ErrorCodeContextClosed, "client context closed", protocol.ErrContextClosed)
}
