package store

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps records for the lifetime of the process only.
type MemoryBackend struct {
	mu      sync.RWMutex
	nextID  RecordID
	records map[RecordID]Record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[RecordID]Record)}
}

func (b *MemoryBackend) List() ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Record, 0, len(b.records))
	for _, rec := range b.records {
		rec.Header = rec.Header.Clone()
		out = append(out, rec)
	}
	slices.SortFunc(out, func(x, y Record) int { return cmp.Compare(x.ID, y.ID) })
	return out, nil
}

func (b *MemoryBackend) Put(h *protocol.Header, at time.Time) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	rec := Record{ID: b.nextID, Header: h.Clone(), Date: at}
	b.records[rec.ID] = rec
	return rec, nil
}

func (b *MemoryBackend) Delete(id RecordID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(b.records, id)
	return nil
}
