package storage

import (
	"context"
	"sync"
	"time"

	"rickybot/internal/models"
)

var (
	_ KeyedStore = (*MemoryKeyedStore)(nil)
	_ BlobStore  = (*MemoryBlobStore)(nil)
)

// MemoryKeyedStore is a process-local KeyedStore used for dry runs and tests
type MemoryKeyedStore struct {
	mu      sync.Mutex
	records map[string]*models.DayRecord
	stats   map[string]models.DeletionStats
}

func NewMemoryKeyedStore() *MemoryKeyedStore {
	return &MemoryKeyedStore{
		records: map[string]*models.DayRecord{},
		stats:   map[string]models.DeletionStats{},
	}
}

func (m *MemoryKeyedStore) GetRecord(ctx context.Context, key string) (*models.DayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := &models.DayRecord{Key: rec.Key, UpdatedAt: rec.UpdatedAt, Attributes: map[string][]string{}}
	for name, values := range rec.Attributes {
		out.Attributes[name] = append([]string(nil), values...)
	}
	return out, nil
}

func (m *MemoryKeyedStore) SetAttribute(ctx context.Context, key, name string, values []string) error {
	if err := validAttributeName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		rec = &models.DayRecord{Key: key, Attributes: map[string][]string{}}
		m.records[key] = rec
	}
	rec.Attributes[name] = append([]string{}, values...)
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryKeyedStore) DeleteRecord(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	delete(m.stats, key)
	return nil
}

func (m *MemoryKeyedStore) GetStats(ctx context.Context, key string) (*models.DeletionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryKeyedStore) PutStats(ctx context.Context, key string, stats models.DeletionStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats[key] = stats
	return nil
}

func (m *MemoryKeyedStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryKeyedStore) Close() error                   { return nil }

// MemoryBlobStore is a process-local BlobStore used for dry runs and tests
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: map[string][]byte{}}
}

func (m *MemoryBlobStore) Head(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blobs[key]
	return ok, nil
}

func (m *MemoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBlobStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)
	return nil
}
