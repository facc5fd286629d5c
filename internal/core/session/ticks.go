package session

import (
	"context"
	"time"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/pkg/concurrent"
)

const ackFlushWorkers = 4

// heartbeatTick sends a heartbeat when the connection saw no traffic in
// either direction for a full heartbeat period.
func (c *Comm) heartbeatTick() {
	if !c.loggedOn.Load() {
		return
	}
	period := c.cfg.HeartbeatPeriod
	now := time.Now()
	if now.Sub(c.conn.LastMessageSent()) < period || now.Sub(c.conn.LastMessageReceived()) < period {
		return
	}
	if err := c.conn.SendHeartbeat(); err != nil {
		c.logger.Debug("Failed to send heartbeat", log.Error(err))
	}
}

func (c *Comm) serverTimeoutTick() {
	if c.State() != protocol.Connected {
		return
	}
	if !c.conn.CheckConnection() {
		c.disconnect(protocol.ReasonServerDisconnected, "Connection closed by server", false)
		return
	}
	if idle := time.Since(c.conn.LastMessageReceived()); idle > c.cfg.ServerTimeout {
		c.disconnect(protocol.ReasonServerNotResponding, "Nothing received for "+idle.Truncate(time.Millisecond).String(), false)
	}
}

func (c *Comm) resendTick() {
	if !c.loggedOn.Load() || c.resendPaused.Load() {
		return
	}
	due := c.ledger.DueForResend(c.cfg.ResendPeriod, time.Now())
	for _, msg := range due {
		if err := c.sendMessage(msg); err != nil {
			return
		}
	}
	if len(due) > 0 {
		c.logger.Debug("Resent unacknowledged messages", log.Int("count", len(due)))
	}
	c.flushOwedAcks()
}

// flushOwedAcks sends an Ack to every destination still owed keys that no
// other outbound message carried.
func (c *Comm) flushOwedAcks() {
	err := concurrent.ForEach(c.ledger.OwedAcks(), ackFlushWorkers, func(dest protocol.ClientKey) error {
		keys, _ := c.ledger.GetNeedToAckList(dest.ClientType, dest.ClientID)
		if len(keys) == 0 {
			return nil
		}
		return c.sendMessage(&protocol.Header{
			MsgKey:         keys[0],
			MsgType:        protocol.MsgTypeAck,
			DestClientType: dest.ClientType,
			DestClientID:   dest.ClientID,
		})
	})
	if err != nil {
		c.logger.Debug("Owed ack flush incomplete", log.Error(err))
	}
}

// retryTick only reconnects from RetryConnect, so a retry that fires late
// never tears down a session that already reconnected.
func (c *Comm) retryTick() {
	c.mu.Lock()
	skip := c.stopped || c.state != protocol.RetryConnect
	c.mu.Unlock()
	if skip || c.closed.Load() {
		return
	}
	c.connect(context.Background())
}
