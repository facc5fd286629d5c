package store

import (
	"cmp"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

var _ Backend = (*FileBackend)(nil)

type fileRecord struct {
	ID     int64     `yaml:"id"`
	Date   time.Time `yaml:"date"`
	Header string    `yaml:"header"`
}

type fileSnapshot struct {
	NextID  int64        `yaml:"next_id"`
	Records []fileRecord `yaml:"records"`
}

// FileBackend persists records as a YAML snapshot. Every change rewrites the
// snapshot through a temporary file and a rename.
type FileBackend struct {
	mu      sync.Mutex
	path    string
	codec   protocol.Codec
	nextID  RecordID
	records map[RecordID]Record
}

// OpenFileBackend loads the snapshot at path, or starts empty when the file
// does not exist.
func OpenFileBackend(path string, codec protocol.Codec) (*FileBackend, error) {
	if codec == nil {
		codec = protocol.ProtoCodec{}
	}
	b := &FileBackend{
		path:    path,
		codec:   codec,
		records: make(map[RecordID]Record),
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) load() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store %s: %w", b.path, err)
	}

	var snap fileSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse store %s: %w", b.path, err)
	}

	b.nextID = RecordID(snap.NextID)
	for _, fr := range snap.Records {
		raw, err := base64.StdEncoding.DecodeString(fr.Header)
		if err != nil {
			return fmt.Errorf("record %d: %w", fr.ID, err)
		}
		h, err := b.codec.Decode(raw)
		if err != nil {
			return fmt.Errorf("record %d: %w", fr.ID, err)
		}
		id := RecordID(fr.ID)
		b.records[id] = Record{ID: id, Header: h, Date: fr.Date}
		if id > b.nextID {
			b.nextID = id
		}
	}
	return nil
}

func (b *FileBackend) List() ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, 0, len(b.records))
	for _, rec := range b.records {
		rec.Header = rec.Header.Clone()
		out = append(out, rec)
	}
	slices.SortFunc(out, func(x, y Record) int { return cmp.Compare(x.ID, y.ID) })
	return out, nil
}

func (b *FileBackend) Put(h *protocol.Header, at time.Time) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	rec := Record{ID: b.nextID, Header: h.Clone(), Date: at}
	b.records[rec.ID] = rec
	if err := b.flush(); err != nil {
		delete(b.records, rec.ID)
		return Record{}, err
	}
	return rec, nil
}

func (b *FileBackend) Delete(id RecordID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	delete(b.records, id)
	if err := b.flush(); err != nil {
		b.records[id] = rec
		return err
	}
	return nil
}

func (b *FileBackend) flush() error {
	snap := fileSnapshot{NextID: int64(b.nextID)}
	for _, rec := range b.records {
		raw, err := b.codec.Encode(rec.Header)
		if err != nil {
			return err
		}
		snap.Records = append(snap.Records, fileRecord{
			ID:     int64(rec.ID),
			Date:   rec.Date,
			Header: base64.StdEncoding.EncodeToString(raw),
		})
	}
	slices.SortFunc(snap.Records, func(x, y fileRecord) int { return cmp.Compare(x.ID, y.ID) })

	data, err := yaml.Marshal(&snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
