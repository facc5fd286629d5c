package store

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
)

var ErrRecordNotFound = errors.New("store record not found")

// RecordID identifies a persisted message independently of its MsgKey,
// which changes every time the message is replayed.
type RecordID int64

// Record is one persisted, not yet acknowledged message.
type Record struct {
	ID     RecordID
	Header *protocol.Header
	Date   time.Time
}

// Store persists outbound messages until the destination acknowledges them.
type Store interface {
	// PendingRecords lists what survived from a previous run.
	PendingRecords() ([]Record, error)
	// Store persists h and binds it to h.MsgKey.
	Store(h *protocol.Header, at time.Time) (RecordID, error)
	// Rebind maps a new MsgKey to an already persisted record.
	Rebind(rec Record, msgKey int32) error
	// Remove deletes the record bound to msgKey. It reports false when no
	// record is bound to it.
	Remove(msgKey int32) (bool, error)
}

// Backend is the durable medium behind MsgStore.
type Backend interface {
	List() ([]Record, error)
	Put(h *protocol.Header, at time.Time) (Record, error)
	Delete(id RecordID) error
}

var _ Store = (*MsgStore)(nil)

// MsgStore keeps the MsgKey to record binding of the current process in
// memory and delegates persistence to a Backend.
type MsgStore struct {
	mu      sync.Mutex
	backend Backend
	byKey   map[int32]RecordID
	logger  log.Log
}

func NewMsgStore(backend Backend, logger log.Log) *MsgStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &MsgStore{
		backend: backend,
		byKey:   make(map[int32]RecordID),
		logger:  logger.With(log.String("component", "msg_store")),
	}
}

// PendingRecords lists the backend records not bound to a key of this
// process. Messages stored since startup are still tracked by their sender
// and are left out.
func (s *MsgStore) PendingRecords() ([]Record, error) {
	recs, err := s.backend.List()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.byKey) == 0 {
		return recs, nil
	}
	bound := make(map[RecordID]struct{}, len(s.byKey))
	for _, id := range s.byKey {
		bound[id] = struct{}{}
	}
	return slices.DeleteFunc(recs, func(r Record) bool {
		_, ok := bound[r.ID]
		return ok
	}), nil
}

func (s *MsgStore) Store(h *protocol.Header, at time.Time) (RecordID, error) {
	rec, err := s.backend.Put(h, at)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.byKey[h.MsgKey] = rec.ID
	s.mu.Unlock()

	s.logger.Debug("Stored message", log.Int32("msg_key", h.MsgKey), log.Int64("record_id", int64(rec.ID)))
	return rec.ID, nil
}

func (s *MsgStore) Rebind(rec Record, msgKey int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, id := range s.byKey {
		if id == rec.ID {
			delete(s.byKey, k)
		}
	}
	s.byKey[msgKey] = rec.ID
	return nil
}

func (s *MsgStore) Remove(msgKey int32) (bool, error) {
	s.mu.Lock()
	id, ok := s.byKey[msgKey]
	if ok {
		delete(s.byKey, msgKey)
	}
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := s.backend.Delete(id); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return true, err
	}
	s.logger.Debug("Removed stored message", log.Int32("msg_key", msgKey), log.Int64("record_id", int64(id)))
	return true, nil
}

// Bound returns how many keys are currently bound to records.
func (s *MsgStore) Bound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}
