package session

import (
	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/transport"
)

func (c *Comm) onFrame(ev transport.FrameEvent) {
	if ev.Err != nil {
		if protocol.IsIOFailure(ev.Err) {
			c.disconnect(protocol.ReasonServerDisconnected, ev.Err.Error(), false)
		} else {
			c.disconnect(protocol.ReasonException, ev.Err.Error(), false)
		}
		return
	}
	if ev.Header != nil {
		c.handleMessage(ev.Header)
	}
}

func (c *Comm) handleMessage(msg *protocol.Header) {
	c.logger.Debug("Received message",
		log.String("msg_type", msg.MsgType.String()),
		log.Int32("msg_key", msg.MsgKey),
		log.String("from", msg.Orig().String()))

	if msg.MsgType == protocol.MsgTypeAck && !c.loggedOn.Load() && c.isLogonAck(msg.MsgKey) {
		c.logonComplete()
	}

	c.removeStored(msg)

	handled := false
	if msg.MsgType == protocol.MsgTypeLogoff {
		c.ledger.SetClientOnline(msg.OrigClientType, msg.OrigClientID, false)
	} else {
		if c.cfg.AutoAck && msg.IsTracked() {
			c.ledger.AddToNeedToAckList(msg.OrigClientType, msg.OrigClientID, msg.MsgKey)
		}
		c.ledger.SetClientOnline(msg.OrigClientType, msg.OrigClientID, true)

		switch {
		case msg.MsgType == protocol.MsgTypeAck:
			handled = c.handleReceived(msg.MsgKey, msg, true)
		case msg.ReplyMsgKey > 0:
			handled = c.handleReceived(msg.ReplyMsgKey, msg, false)
		}
		// Piggybacked acks never count as handling msg itself.
		for _, key := range msg.AckKeys {
			c.handleReceived(key, msg, true)
		}
	}

	if !handled {
		c.noContext.messageReceived(msg, nil)
	}
	c.publish(EventMessageReceived, msg)
}

// handleReceived correlates rx with the sent message msgKey. A waiter takes
// precedence over the sending context's callbacks.
func (c *Comm) handleReceived(msgKey int32, rx *protocol.Header, ack bool) bool {
	forSent, cc, _ := c.ledger.RemoveSentMessage(rx.OrigClientType, rx.OrigClientID, msgKey)
	if c.ledger.ReleaseWaiter(msgKey, rx) {
		return true
	}
	if cc == nil {
		return false
	}
	if ack {
		cc.ackReceived(forSent)
	} else {
		cc.messageReceived(rx, forSent)
	}
	return true
}

func (c *Comm) removeStored(msg *protocol.Header) {
	if c.store == nil {
		return
	}
	for _, key := range msg.AckKeys {
		c.removeStoredKey(key)
	}
	switch {
	case msg.MsgType == protocol.MsgTypeAck:
		c.removeStoredKey(msg.MsgKey)
	case msg.ReplyMsgKey > 0:
		c.removeStoredKey(msg.ReplyMsgKey)
	}
}

func (c *Comm) removeStoredKey(key int32) {
	if _, err := c.store.Remove(key); err != nil {
		c.logger.Error("Failed to remove stored message", log.Int32("msg_key", key), log.Error(err))
	}
}

func (c *Comm) isLogonAck(key int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logonKey != 0 && c.logonKey == key
}

// logonComplete runs once per logon: it arms the heartbeat, resends the
// subscriptions, replays the store on the first logon of the process and
// announces the logon.
func (c *Comm) logonComplete() {
	c.mu.Lock()
	if c.state != protocol.Connected || !c.loggedOn.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return
	}
	h := c.cfg.HeartbeatPeriod
	c.heartbeat.arm(h, h/2)
	c.mu.Unlock()

	c.logger.Info("Logged on", log.String("addr", c.conn.Addr()))
	c.sendSubscribeMessages()
	replayed := c.replayStore()
	c.publish(EventLogonComplete, LogonComplete{Replayed: replayed})
}

// replayStore resends what a previous run left in the store, each record
// under a fresh key. It only runs once per process.
func (c *Comm) replayStore() int {
	if c.store == nil || !c.needStore.CompareAndSwap(true, false) {
		return 0
	}

	records, err := c.store.PendingRecords()
	if err != nil {
		c.needStore.Store(true)
		c.logger.Error("Failed to load stored messages", log.Error(err))
		c.publish(EventStoreReplayFailed, ReplayFailure{Err: err})
		return 0
	}
	if len(records) == 0 {
		return 0
	}

	c.resendPaused.Store(true)
	defer c.resendPaused.Store(false)

	replayed := 0
	for i, rec := range records {
		if rec.Header == nil {
			continue
		}
		msg := rec.Header.Clone()
		msg.MsgKey = c.nextKey()
		msg.IsArchived = true
		msg.AckKeys = nil

		if err = c.store.Rebind(rec, msg.MsgKey); err != nil {
			c.logger.Error("Stored message replay aborted",
				log.Int64("record_id", int64(rec.ID)),
				log.Int("replayed", replayed),
				log.Error(err))
			c.publish(EventStoreReplayFailed, ReplayFailure{Replayed: replayed, Remaining: len(records) - i, Err: err})
			return replayed
		}
		if msg.IsTracked() {
			c.ledger.AddSentMessage(msg, nil)
		}
		_ = c.sendMessage(msg)
		replayed++
	}

	c.logger.Info("Replayed stored messages", log.Int("count", replayed))
	return replayed
}
