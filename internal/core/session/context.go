package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

type (
	// AckHandler receives the sent message an ack arrived for.
	AckHandler func(sent *protocol.Header)
	// MessageHandler receives an inbound message and, for replies, the sent
	// message it answers.
	MessageHandler func(rx, forSent *protocol.Header)
)

// ClientContext is a logical sender sharing its session with other
// contexts. Acks and replies to the messages it sent are routed back to its
// handlers. Handlers run on the read loop goroutine.
type ClientContext struct {
	id     uuid.UUID
	comm   *Comm
	closed atomic.Bool

	onAck     atomic.Pointer[AckHandler]
	onMessage atomic.Pointer[MessageHandler]
}

func newClientContext(c *Comm) *ClientContext {
	return &ClientContext{id: uuid.New(), comm: c}
}

// NewContext creates a context bound to the session.
func (c *Comm) NewContext() *ClientContext {
	cc := newClientContext(c)
	c.ledger.AddContext(cc)
	return cc
}

func (cc *ClientContext) ID() uuid.UUID {
	return cc.id
}

func (cc *ClientContext) SetAckHandler(fn AckHandler) {
	cc.onAck.Store(&fn)
}

func (cc *ClientContext) SetMessageHandler(fn MessageHandler) {
	cc.onMessage.Store(&fn)
}

func (cc *ClientContext) SendCommon(req SendRequest) (*protocol.Header, error) {
	return cc.comm.SendCommon(cc, req)
}

func (cc *ClientContext) SendCommonAndWait(ctx context.Context, req SendRequest, timeout time.Duration) (sent, received *protocol.Header, err error) {
	return cc.comm.SendCommonAndWait(ctx, cc, req, timeout)
}

// SendReply answers replyTo: the reply goes to its origin and carries its
// key as ReplyMsgKey.
func (cc *ClientContext) SendReply(typ protocol.MsgType, payload []byte, replyTo *protocol.Header, store, archived bool) (*protocol.Header, error) {
	return cc.comm.SendCommon(cc, SendRequest{
		Type:           typ,
		Payload:        payload,
		DestClientType: replyTo.OrigClientType,
		DestClientID:   replyTo.OrigClientID,
		ReplyMsgKey:    replyTo.MsgKey,
		Store:          store,
		Archived:       archived,
	})
}

func (cc *ClientContext) SendAck(msg *protocol.Header) error {
	if cc.isClosed() {
		return errContextClosed()
	}
	return cc.comm.SendAck(msg)
}

func (cc *ClientContext) SendNack(msg *protocol.Header, reason int32, details string) error {
	if cc.isClosed() {
		return errContextClosed()
	}
	return cc.comm.SendNack(msg, reason, details)
}

func (cc *ClientContext) IsConnected() bool {
	return !cc.isClosed() && cc.comm.IsConnected()
}

// IsClientOnline is false once the context is closed.
func (cc *ClientContext) IsClientOnline(clientType, clientID int32) bool {
	return !cc.isClosed() && cc.comm.IsClientOnline(clientType, clientID)
}

// Close detaches the context from the session. Its pending messages stop
// being tracked, blocked waits return nil and later sends fail with
// ErrContextClosed.
func (cc *ClientContext) Close() error {
	if !cc.closed.CompareAndSwap(false, true) {
		return nil
	}
	cc.comm.ledger.RemoveContext(cc)
	return nil
}

func (cc *ClientContext) isClosed() bool {
	return cc != nil && cc.closed.Load()
}

func (cc *ClientContext) ackReceived(sent *protocol.Header) {
	if fn := cc.onAck.Load(); fn != nil && *fn != nil {
		(*fn)(sent)
	}
}

func (cc *ClientContext) messageReceived(rx, forSent *protocol.Header) {
	if fn := cc.onMessage.Load(); fn != nil && *fn != nil {
		(*fn)(rx, forSent)
	}
}
