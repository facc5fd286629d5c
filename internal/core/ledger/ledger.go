package ledger

import (
	"cmp"
	"encoding/binary"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/pkg/concurrent"
)

// DefaultShardCount is used when New is given a non-positive count.
const DefaultShardCount = 16

type shard struct {
	mx      sync.RWMutex
	records map[protocol.ClientKey]*subscriberRecord
}

type contextEntry struct {
	mu   sync.Mutex
	msgs map[int32]*protocol.Header
}

type waiterEntry[C comparable] struct {
	owner  C
	waiter *Waiter
}

// Ledger tracks messages awaiting acknowledgment per destination, the ack
// keys owed to each destination, destination liveness, and which context
// sent each tracked message. C is the context handle type; its zero value
// means "no context".
//
// Destinations are spread over xxhash-selected shards, each destination has
// its own lock, and the key indexes are concurrent maps, so unrelated
// destinations never contend.
type Ledger[C comparable] struct {
	shards []shard

	dests    sync.Map // msgKey -> protocol.ClientKey
	byKey    sync.Map // msgKey -> C
	contexts sync.Map // C -> *contextEntry
	waiters  sync.Map // msgKey -> *waiterEntry[C]

	now func() time.Time
}

func New[C comparable](shardCount int) *Ledger[C] {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	l := &Ledger[C]{
		shards: make([]shard, shardCount),
		now:    time.Now,
	}
	for i := range l.shards {
		l.shards[i].records = make(map[protocol.ClientKey]*subscriberRecord)
	}
	return l
}

func (l *Ledger[C]) shardFor(key protocol.ClientKey) *shard {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[:4], uint32(key.ClientType))
	binary.LittleEndian.PutUint32(b[4:], uint32(key.ClientID))
	return &l.shards[xxhash.Sum64(b[:])%uint64(len(l.shards))]
}

func (l *Ledger[C]) record(key protocol.ClientKey, create bool) *subscriberRecord {
	sh := l.shardFor(key)

	sh.mx.RLock()
	rec := sh.records[key]
	sh.mx.RUnlock()
	if rec != nil || !create {
		return rec
	}

	sh.mx.Lock()
	defer sh.mx.Unlock()
	if rec = sh.records[key]; rec == nil {
		rec = newSubscriberRecord(key)
		sh.records[key] = rec
	}
	return rec
}

func (l *Ledger[C]) isZero(ctx C) bool {
	var zero C
	return ctx == zero
}

// AddSentMessage tracks a copy of msg against its destination and, when ctx
// is set, against ctx. Broadcast messages are not tracked. It reports whether
// the key was newly added.
func (l *Ledger[C]) AddSentMessage(msg *protocol.Header, ctx C) bool {
	if msg == nil || msg.DestClientType <= 0 {
		return false
	}

	tracked := msg.Clone()
	tracked.AckKeys = nil

	dest := tracked.Dest()
	added := l.record(dest, true).addOrUpdate(tracked, l.now())
	l.dests.Store(tracked.MsgKey, dest)

	if !l.isZero(ctx) {
		l.byKey.Store(tracked.MsgKey, ctx)
		ce := l.contextEntry(ctx, true)
		ce.mu.Lock()
		ce.msgs[tracked.MsgKey] = tracked
		ce.mu.Unlock()
	}
	return added
}

func (l *Ledger[C]) contextEntry(ctx C, create bool) *contextEntry {
	if v, ok := l.contexts.Load(ctx); ok {
		return v.(*contextEntry)
	}
	if !create {
		return nil
	}
	v, _ := l.contexts.LoadOrStore(ctx, &contextEntry{msgs: make(map[int32]*protocol.Header)})
	return v.(*contextEntry)
}

// RemoveSentMessage stops tracking msgKey. The destination recorded at send
// time wins over the given client, which is only consulted for keys this
// ledger never saw. It returns the tracked message, the context that sent it,
// and whether either was found.
func (l *Ledger[C]) RemoveSentMessage(clientType, clientID int32, msgKey int32) (*protocol.Header, C, bool) {
	var (
		ctx   C
		msg   *protocol.Header
		found bool
	)

	if v, ok := l.byKey.LoadAndDelete(msgKey); ok {
		ctx = v.(C)
		found = true
		if ce := l.contextEntry(ctx, false); ce != nil {
			ce.mu.Lock()
			msg = ce.msgs[msgKey]
			delete(ce.msgs, msgKey)
			ce.mu.Unlock()
		}
	}

	dest := protocol.ClientKey{ClientType: clientType, ClientID: clientID}
	if v, ok := l.dests.LoadAndDelete(msgKey); ok {
		dest = v.(protocol.ClientKey)
	}
	if rec := l.record(dest, false); rec != nil {
		if removed := rec.remove(msgKey); removed != nil {
			msg = removed
			found = true
		}
	}

	return msg, ctx, found
}

// IsTracked reports whether msgKey is awaiting acknowledgment.
func (l *Ledger[C]) IsTracked(msgKey int32) bool {
	_, ok := l.dests.Load(msgKey)
	return ok
}

// GetNeedToAckList returns the keys owed to the destination and whether the
// destination is known at all.
func (l *Ledger[C]) GetNeedToAckList(clientType, clientID int32) ([]int32, bool) {
	rec := l.record(protocol.ClientKey{ClientType: clientType, ClientID: clientID}, false)
	if rec == nil {
		return nil, false
	}
	return rec.owedKeys(), true
}

// AddToNeedToAckList records that msgKey must be acknowledged to the
// destination. Broadcast destinations are ignored.
func (l *Ledger[C]) AddToNeedToAckList(clientType, clientID int32, msgKey int32) {
	if clientType <= 0 {
		return
	}
	l.record(protocol.ClientKey{ClientType: clientType, ClientID: clientID}, true).addOwed(msgKey)
}

// RemoveFromNeedToAckList drops keys that were delivered to the destination
// and marks it online.
func (l *Ledger[C]) RemoveFromNeedToAckList(clientType, clientID int32, keys []int32) {
	if rec := l.record(protocol.ClientKey{ClientType: clientType, ClientID: clientID}, false); rec != nil {
		rec.removeOwed(keys)
	}
}

// RemoveNeedToAck drops a single owed key, if present, without touching the
// online flag.
func (l *Ledger[C]) RemoveNeedToAck(clientType, clientID int32, msgKey int32) bool {
	rec := l.record(protocol.ClientKey{ClientType: clientType, ClientID: clientID}, false)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if i := slices.Index(rec.owed, msgKey); i >= 0 {
		rec.owed = slices.Delete(rec.owed, i, i+1)
		return true
	}
	return false
}

// OwedAcks lists the destinations that are owed at least one ack key.
func (l *Ledger[C]) OwedAcks() []protocol.ClientKey {
	var out []protocol.ClientKey
	l.forEachRecord(func(rec *subscriberRecord) {
		rec.mu.Lock()
		if len(rec.owed) > 0 {
			out = append(out, rec.key)
		}
		rec.mu.Unlock()
	})
	slices.SortFunc(out, compareKeys)
	return out
}

// SetClientOnline updates the online flag of a known destination.
func (l *Ledger[C]) SetClientOnline(clientType, clientID int32, online bool) {
	if rec := l.record(protocol.ClientKey{ClientType: clientType, ClientID: clientID}, false); rec != nil {
		rec.setOnline(online)
	}
}

func (l *Ledger[C]) IsClientOnline(clientType, clientID int32) bool {
	return l.OnlineStatus(clientType, clientID) == protocol.StatusOnline
}

// OnlineStatus is Unknown for destinations never sent to or heard from.
func (l *Ledger[C]) OnlineStatus(clientType, clientID int32) protocol.OnlineStatus {
	rec := l.record(protocol.ClientKey{ClientType: clientType, ClientID: clientID}, false)
	switch {
	case rec == nil:
		return protocol.StatusUnknown
	case rec.isOnline():
		return protocol.StatusOnline
	default:
		return protocol.StatusNotOnline
	}
}

// AddContext registers ctx. It reports false if ctx was already known.
func (l *Ledger[C]) AddContext(ctx C) bool {
	if l.isZero(ctx) {
		return false
	}
	_, loaded := l.contexts.LoadOrStore(ctx, &contextEntry{msgs: make(map[int32]*protocol.Header)})
	return !loaded
}

// RemoveContext detaches every message ctx sent from the ledger, releases
// its waiters with nil, and returns the detached messages.
func (l *Ledger[C]) RemoveContext(ctx C) []*protocol.Header {
	if l.isZero(ctx) {
		return nil
	}

	var removed []*protocol.Header
	if v, ok := l.contexts.LoadAndDelete(ctx); ok {
		ce := v.(*contextEntry)
		ce.mu.Lock()
		for key, msg := range ce.msgs {
			l.byKey.Delete(key)
			if d, ok := l.dests.LoadAndDelete(key); ok {
				if rec := l.record(d.(protocol.ClientKey), false); rec != nil {
					rec.remove(key)
				}
			}
			removed = append(removed, msg)
		}
		ce.msgs = nil
		ce.mu.Unlock()
	}

	l.waiters.Range(func(k, v any) bool {
		we := v.(*waiterEntry[C])
		if we.owner == ctx {
			l.waiters.Delete(k)
			we.waiter.release(nil)
		}
		return true
	})

	slices.SortFunc(removed, compareHeaders)
	return removed
}

// RegisterWaiter installs a waiter for the message that will be sent with
// msgKey. It must be called before the message is sent.
func (l *Ledger[C]) RegisterWaiter(msgKey int32, owner C) *Waiter {
	w := newWaiter(msgKey)
	if prev, loaded := l.waiters.Swap(msgKey, &waiterEntry[C]{owner: owner, waiter: w}); loaded {
		prev.(*waiterEntry[C]).waiter.release(nil)
	}
	return w
}

// ReleaseWaiter hands rx to the waiter registered for msgKey. It reports
// whether a waiter was registered.
func (l *Ledger[C]) ReleaseWaiter(msgKey int32, rx *protocol.Header) bool {
	v, ok := l.waiters.LoadAndDelete(msgKey)
	if !ok {
		return false
	}
	v.(*waiterEntry[C]).waiter.release(rx)
	return true
}

// RemoveWaiter discards the waiter for msgKey without releasing it.
func (l *Ledger[C]) RemoveWaiter(msgKey int32) {
	l.waiters.Delete(msgKey)
}

// DueForResend collects copies of the messages for online destinations that
// were not sent within period, marks them sent at now, and returns them
// ordered by key.
func (l *Ledger[C]) DueForResend(period time.Duration, now time.Time) []*protocol.Header {
	parts := concurrent.ParallelMap(l.snapshotShards(), 0, func(recs []*subscriberRecord) []*protocol.Header {
		var out []*protocol.Header
		for _, rec := range recs {
			out = append(out, rec.due(period, now)...)
		}
		return out
	})

	due := concurrent.Flatten(parts)
	slices.SortFunc(due, compareHeaders)
	return due
}

// Pending returns how many messages await acknowledgment from a destination.
func (l *Ledger[C]) Pending(clientType, clientID int32) int {
	rec := l.record(protocol.ClientKey{ClientType: clientType, ClientID: clientID}, false)
	if rec == nil {
		return 0
	}
	return rec.size()
}

// Len returns the number of tracked messages.
func (l *Ledger[C]) Len() int {
	n := 0
	l.forEachRecord(func(rec *subscriberRecord) { n += rec.size() })
	return n
}

// Clear drops all state and releases every waiter with nil.
func (l *Ledger[C]) Clear() {
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mx.Lock()
		sh.records = make(map[protocol.ClientKey]*subscriberRecord)
		sh.mx.Unlock()
	}
	l.dests.Clear()
	l.byKey.Clear()
	l.contexts.Clear()
	l.waiters.Range(func(k, v any) bool {
		l.waiters.Delete(k)
		v.(*waiterEntry[C]).waiter.release(nil)
		return true
	})
}

func (l *Ledger[C]) snapshotShards() [][]*subscriberRecord {
	out := make([][]*subscriberRecord, len(l.shards))
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mx.RLock()
		recs := make([]*subscriberRecord, 0, len(sh.records))
		for _, rec := range sh.records {
			recs = append(recs, rec)
		}
		sh.mx.RUnlock()
		out[i] = recs
	}
	return out
}

func (l *Ledger[C]) forEachRecord(fn func(rec *subscriberRecord)) {
	for _, recs := range l.snapshotShards() {
		for _, rec := range recs {
			fn(rec)
		}
	}
}

func compareHeaders(a, b *protocol.Header) int {
	return cmp.Compare(a.MsgKey, b.MsgKey)
}

func compareKeys(a, b protocol.ClientKey) int {
	if c := cmp.Compare(a.ClientType, b.ClientType); c != 0 {
		return c
	}
	return cmp.Compare(a.ClientID, b.ClientID)
}
