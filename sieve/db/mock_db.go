package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// MockAddressStore is an in-memory AddressStore used by tests of the
// packages that sit on top of the store.
type MockAddressStore struct {
	mu       sync.RWMutex
	records  map[string]AddressRecord
	snapshot *Snapshot
	closed   bool

	// LookupErr, when set, is returned by every Lookup.
	LookupErr error
	lookups   atomic.Int64
}

func NewMockAddressStore() *MockAddressStore {
	return &MockAddressStore{
		records: make(map[string]AddressRecord),
	}
}

// NewMockAddressStoreWith returns an ingested mock holding the given records.
func NewMockAddressStoreWith(records ...AddressRecord) *MockAddressStore {
	m := NewMockAddressStore()
	snap := NewSnapshot("mock", 0)
	for _, rec := range records {
		rec.SnapshotID = snap.ID
		if _, exists := m.records[rec.Address]; !exists {
			m.records[rec.Address] = rec
		}
	}
	snap.Records = int64(len(m.records))
	m.snapshot = snap
	return m
}

// Lookups returns how many times Lookup was called.
func (m *MockAddressStore) Lookups() int64 {
	return m.lookups.Load()
}

func (m *MockAddressStore) Lookup(ctx context.Context, key string) (AddressRecord, bool, error) {
	m.lookups.Add(1)
	if m.LookupErr != nil {
		return AddressRecord{}, false, m.LookupErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return AddressRecord{}, false, ErrStoreClosed
	}
	rec, ok := m.records[key]
	return rec, ok, nil
}

func (m *MockAddressStore) ScanKeys(ctx context.Context, fn func(key string) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockAddressStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MockAddressStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return nil, nil
	}
	snap := *m.snapshot
	return &snap, nil
}

func (m *MockAddressStore) InitSchema(ctx context.Context) error {
	return nil
}

func (m *MockAddressStore) NewBulkLoader(ctx context.Context, batchSize int) (BulkLoader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.Ingested() {
		return nil, ErrAlreadyIngested
	}
	return &mockLoader{store: m}, nil
}

func (m *MockAddressStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type mockLoader struct {
	store   *MockAddressStore
	pending []AddressRecord
	done    bool
}

func (l *mockLoader) Insert(rec AddressRecord) error {
	if l.done {
		return fmt.Errorf("bulk loader already finished")
	}
	l.pending = append(l.pending, rec)
	return nil
}

func (l *mockLoader) Inserted() int64 {
	return int64(len(l.pending))
}

func (l *mockLoader) Commit(ctx context.Context, snapshot *Snapshot) error {
	if l.done {
		return fmt.Errorf("bulk loader already finished")
	}
	l.done = true

	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.records = make(map[string]AddressRecord, len(l.pending))
	for _, rec := range l.pending {
		if _, exists := l.store.records[rec.Address]; exists {
			continue
		}
		rec.SnapshotID = snapshot.ID
		l.store.records[rec.Address] = rec
	}
	snapshot.Records = int64(len(l.store.records))
	snap := *snapshot
	l.store.snapshot = &snap
	return nil
}

func (l *mockLoader) Rollback() error {
	l.done = true
	return nil
}
