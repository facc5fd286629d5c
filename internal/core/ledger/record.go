package ledger

import (
	"slices"
	"sync"
	"time"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

type entry struct {
	msg    *protocol.Header
	sentAt time.Time
}

// subscriberRecord holds everything known about one destination.
type subscriberRecord struct {
	mu      sync.Mutex
	key     protocol.ClientKey
	online  bool
	pending map[int32]*entry
	owed    []int32
}

func newSubscriberRecord(key protocol.ClientKey) *subscriberRecord {
	return &subscriberRecord{
		key:     key,
		pending: make(map[int32]*entry),
	}
}

func (r *subscriberRecord) addOrUpdate(msg *protocol.Header, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.pending[msg.MsgKey]; ok {
		e.msg = msg
		e.sentAt = now
		return false
	}
	r.pending[msg.MsgKey] = &entry{msg: msg, sentAt: now}
	return true
}

func (r *subscriberRecord) remove(key int32) *protocol.Header {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[key]
	if !ok {
		return nil
	}
	delete(r.pending, key)
	return e.msg
}

// due returns copies of the entries not sent within period and marks them
// as sent at now.
func (r *subscriberRecord) due(period time.Duration, now time.Time) []*protocol.Header {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.online {
		return nil
	}

	var out []*protocol.Header
	for _, e := range r.pending {
		if now.Sub(e.sentAt) < period {
			continue
		}
		e.sentAt = now
		msg := e.msg.Clone()
		msg.DestClientType = r.key.ClientType
		msg.DestClientID = r.key.ClientID
		msg.IsArchived = true
		out = append(out, msg)
	}
	return out
}

func (r *subscriberRecord) setOnline(online bool) {
	r.mu.Lock()
	r.online = online
	r.mu.Unlock()
}

func (r *subscriberRecord) isOnline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

func (r *subscriberRecord) addOwed(key int32) {
	r.mu.Lock()
	r.owed = append(r.owed, key)
	r.mu.Unlock()
}

func (r *subscriberRecord) owedKeys() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.owed)
}

func (r *subscriberRecord) removeOwed(keys []int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.online = true
	for _, k := range keys {
		if i := slices.Index(r.owed, k); i >= 0 {
			r.owed = slices.Delete(r.owed, i, i+1)
		}
	}
}

func (r *subscriberRecord) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
