package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
	"github.com/zeusync/msgcomm/internal/core/store"
	"github.com/zeusync/msgcomm/internal/testutil/peer"
)

func storedHeader(payload string) *protocol.Header {
	return &protocol.Header{
		MsgKey:         500,
		MsgType:        protocol.MsgTypeCustom,
		DestClientType: 5,
		DestClientID:   1,
		Payload:        []byte(payload),
	}
}

func TestComm_ReplaysStoreOnFirstLogon(t *testing.T) {
	backend := store.NewMemoryBackend()
	_, err := backend.Put(storedHeader("persisted"), time.Now())
	require.NoError(t, err)
	fs := &flakyStore{inner: store.NewMsgStore(backend, log.NewNop())}

	p := peer.Start(t)
	c := newTestComm(t, p, nil, WithStore(fs))

	done := connectAndLogon(t, c, p)
	assert.Equal(t, 1, done.Replayed)

	got := p.Expect(wait, func(h *protocol.Header) bool { return string(h.Payload) == "persisted" })
	assert.True(t, got.IsArchived)
	assert.NotEqual(t, int32(500), got.MsgKey)
	assert.True(t, c.Ledger().IsTracked(got.MsgKey))

	p.Send(&protocol.Header{MsgKey: got.MsgKey, MsgType: protocol.MsgTypeAck, OrigClientType: 5, OrigClientID: 1})
	require.Eventually(t, func() bool {
		recs, _ := backend.List()
		return len(recs) == 0
	}, wait, 10*time.Millisecond)

	// later logons of the same process do not replay again
	c.Disconnect()
	assert.Zero(t, connectAndLogon(t, c, p).Replayed)
	assert.Equal(t, 1, fs.calls())
}

func TestComm_StoredBeforeLogonIsNotReplayed(t *testing.T) {
	backend := store.NewMemoryBackend()
	p := peer.Start(t)
	c := newTestComm(t, p, nil, WithStore(store.NewMsgStore(backend, log.NewNop())))

	sent, err := c.SendCommon(nil, SendRequest{Type: protocol.MsgTypeCustom, DestClientType: 5, DestClientID: 1, Store: true})
	assert.ErrorIs(t, err, protocol.ErrNotConnected)
	require.NotNil(t, sent)

	assert.Zero(t, connectAndLogon(t, c, p).Replayed)
	assert.True(t, c.Ledger().IsTracked(sent.MsgKey))
	assert.Equal(t, 1, c.Ledger().Len())

	recs, err := backend.List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, sent.MsgKey, recs[0].Header.MsgKey)

	// the ack under the original key still releases the record
	p.Send(&protocol.Header{MsgKey: sent.MsgKey, MsgType: protocol.MsgTypeAck, OrigClientType: 5, OrigClientID: 1})
	require.Eventually(t, func() bool {
		recs, _ := backend.List()
		return len(recs) == 0
	}, wait, 10*time.Millisecond)
}

func TestComm_StoreMessageUntilAcked(t *testing.T) {
	backend := store.NewMemoryBackend()
	p := peer.Start(t)
	c := newTestComm(t, p, nil, WithStore(store.NewMsgStore(backend, log.NewNop())))
	connectAndLogon(t, c, p)

	sent, err := c.SendCommon(nil, SendRequest{Type: protocol.MsgTypeCustom, DestClientType: 5, DestClientID: 1, Store: true})
	require.NoError(t, err)
	_, err = c.SendCommon(nil, SendRequest{Type: protocol.MsgTypeCustom, Topic: 2, Store: true})
	require.NoError(t, err)

	recs, err := backend.List()
	require.NoError(t, err)
	require.Len(t, recs, 1, "broadcasts are never stored")
	assert.Equal(t, sent.MsgKey, recs[0].Header.MsgKey)

	// a reply to the stored message also releases it
	p.Send(&protocol.Header{MsgKey: 71, MsgType: protocol.MsgTypeCustom, ReplyMsgKey: sent.MsgKey, OrigClientType: 5, OrigClientID: 1})
	require.Eventually(t, func() bool {
		recs, _ := backend.List()
		return len(recs) == 0
	}, wait, 10*time.Millisecond)
}

func TestComm_FileStoreConfig(t *testing.T) {
	path := t.TempDir() + "/pending.yaml"
	backend, err := store.OpenFileBackend(path, nil)
	require.NoError(t, err)
	_, err = backend.Put(storedHeader("from disk"), time.Now())
	require.NoError(t, err)

	p := peer.Start(t)
	c := newTestComm(t, p, func(cfg *Config) {
		cfg.Store = StoreConfig{Kind: "file", Path: path}
	})
	assert.Equal(t, 1, connectAndLogon(t, c, p).Replayed)
	p.Expect(wait, func(h *protocol.Header) bool { return string(h.Payload) == "from disk" })
}

type flakyStore struct {
	inner store.Store

	mu          sync.Mutex
	listErr     error
	rebindErrAt int
	rebinds     int
	listCalls   int
}

func (s *flakyStore) PendingRecords() ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		err := s.listErr
		s.listErr = nil
		return nil, err
	}
	return s.inner.PendingRecords()
}

func (s *flakyStore) Store(h *protocol.Header, at time.Time) (store.RecordID, error) {
	return s.inner.Store(h, at)
}

func (s *flakyStore) Rebind(rec store.Record, msgKey int32) error {
	s.mu.Lock()
	s.rebinds++
	n := s.rebinds
	s.mu.Unlock()
	if n == s.rebindErrAt {
		return errors.New("disk full")
	}
	return s.inner.Rebind(rec, msgKey)
}

func (s *flakyStore) Remove(msgKey int32) (bool, error) {
	return s.inner.Remove(msgKey)
}

func (s *flakyStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func TestComm_ReplayAbortsOnStoreFailure(t *testing.T) {
	backend := store.NewMemoryBackend()
	for _, payload := range []string{"one", "two", "three"} {
		_, err := backend.Put(storedHeader(payload), time.Now())
		require.NoError(t, err)
	}
	fs := &flakyStore{inner: store.NewMsgStore(backend, log.NewNop()), rebindErrAt: 2}

	p := peer.Start(t)
	c := newTestComm(t, p, nil, WithStore(fs))
	failures := make(chan ReplayFailure, 1)
	_, err := c.OnStoreReplayFailed(func(v ReplayFailure) { failures <- v })
	require.NoError(t, err)

	assert.Equal(t, 1, connectAndLogon(t, c, p).Replayed)

	select {
	case v := <-failures:
		assert.Equal(t, 1, v.Replayed)
		assert.Equal(t, 2, v.Remaining)
		assert.EqualError(t, v.Err, "disk full")
	default:
		t.Fatal("replay failure not published")
	}

	// unreplayed records stay in the store for the next run
	recs, err := backend.List()
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestComm_PendingRecordsFailureRetriesOnNextLogon(t *testing.T) {
	backend := store.NewMemoryBackend()
	_, err := backend.Put(storedHeader("late"), time.Now())
	require.NoError(t, err)
	fs := &flakyStore{inner: store.NewMsgStore(backend, log.NewNop()), listErr: errors.New("locked")}

	p := peer.Start(t)
	c := newTestComm(t, p, nil, WithStore(fs))

	assert.Zero(t, connectAndLogon(t, c, p).Replayed)
	c.Disconnect()
	require.True(t, c.Connect(context.Background()))
	p.Expect(wait, func(h *protocol.Header) bool { return string(h.Payload) == "late" })
	assert.Equal(t, 2, fs.calls())
}
