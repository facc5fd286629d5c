package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

func custom(key int32) *protocol.Header {
	return &protocol.Header{
		MsgKey:         key,
		MsgType:        protocol.MsgTypeCustom,
		DestClientType: 3,
		DestClientID:   4,
		Payload:        []byte("body"),
	}
}

func TestMsgStore_StoreAndRemove(t *testing.T) {
	s := NewMsgStore(NewMemoryBackend(), nil)

	id, err := s.Store(custom(5), time.Now())
	require.NoError(t, err)
	assert.NotZero(t, id)

	recs, err := s.PendingRecords()
	require.NoError(t, err)
	assert.Empty(t, recs, "records stored by this process are not pending")

	removed, err := s.Remove(6)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = s.Remove(5)
	require.NoError(t, err)
	assert.True(t, removed)

	recs, err = NewMsgStore(s.backend, nil).PendingRecords()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMsgStore_PendingSkipsRecordsOfThisProcess(t *testing.T) {
	backend := NewMemoryBackend()
	old, err := backend.Put(custom(1), time.Now())
	require.NoError(t, err)

	s := NewMsgStore(backend, nil)
	_, err = s.Store(custom(2), time.Now())
	require.NoError(t, err)

	recs, err := s.PendingRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, old.ID, recs[0].ID)

	// after restart both are pending
	recs, err = NewMsgStore(backend, nil).PendingRecords()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestMsgStore_Rebind(t *testing.T) {
	backend := NewMemoryBackend()
	first := NewMsgStore(backend, nil)
	_, err := first.Store(custom(1), time.Now())
	require.NoError(t, err)

	// a fresh process only knows what the backend holds
	second := NewMsgStore(backend, nil)
	recs, err := second.PendingRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)

	removed, err := second.Remove(1)
	require.NoError(t, err)
	assert.False(t, removed, "old keys are not bound in a new process")

	require.NoError(t, second.Rebind(recs[0], 40))
	require.NoError(t, second.Rebind(recs[0], 41))
	assert.Equal(t, 1, second.Bound(), "rebinding replaces the previous key")

	removed, err = second.Remove(41)
	require.NoError(t, err)
	assert.True(t, removed)

	recs, err = second.PendingRecords()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type failingBackend struct {
	*MemoryBackend
	err error
}

func (b failingBackend) Put(*protocol.Header, time.Time) (Record, error) { return Record{}, b.err }
func (b failingBackend) Delete(RecordID) error                          { return b.err }

func TestMsgStore_BackendErrors(t *testing.T) {
	boom := errors.New("disk full")
	s := NewMsgStore(failingBackend{MemoryBackend: NewMemoryBackend(), err: boom}, nil)

	_, err := s.Store(custom(1), time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Bound())

	require.NoError(t, s.Rebind(Record{ID: 3}, 9))
	removed, err := s.Remove(9)
	assert.True(t, removed)
	assert.ErrorIs(t, err, boom)
}

func TestMemoryBackend_StoresCopies(t *testing.T) {
	b := NewMemoryBackend()
	h := custom(1)
	_, err := b.Put(h, time.Now())
	require.NoError(t, err)
	h.Payload[0] = 'X'

	recs, err := b.List()
	require.NoError(t, err)
	assert.Equal(t, "body", string(recs[0].Header.Payload))

	assert.ErrorIs(t, b.Delete(99), ErrRecordNotFound)
}

func TestFileBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.yaml")

	b, err := OpenFileBackend(path, nil)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first, err := b.Put(custom(1), at)
	require.NoError(t, err)
	second, err := b.Put(custom(2), at.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, b.Delete(first.ID))

	reopened, err := OpenFileBackend(path, protocol.ProtoCodec{})
	require.NoError(t, err)
	recs, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, second.ID, recs[0].ID)
	assert.Equal(t, custom(2), recs[0].Header)
	assert.True(t, recs[0].Date.Equal(at.Add(time.Minute)))

	third, err := reopened.Put(custom(3), at)
	require.NoError(t, err)
	assert.Greater(t, third.ID, second.ID, "ids are not reused after reopen")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFileBackend_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.yaml")
	require.NoError(t, os.WriteFile(path, []byte("records: [{id: 1, header: '!!!'}]"), 0o600))

	_, err := OpenFileBackend(path, nil)
	assert.Error(t, err)
}
