package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

type memoryEntry struct {
	key []byte
	rec model.APIQueryRecord
}

type memoryLog struct {
	seq     uint64
	entries []memoryEntry
}

// MemoryStore implements Store using in-memory storage.
type MemoryStore struct {
	mu        sync.RWMutex
	endpoints map[string]model.Endpoint
	logs      map[string]*memoryLog
	inventory map[string]InventoryRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		endpoints: make(map[string]model.Endpoint),
		logs:      make(map[string]*memoryLog),
		inventory: make(map[string]InventoryRecord),
	}
}

// LoadEndpoints returns every stored endpoint ordered by id.
func (s *MemoryStore) LoadEndpoints(ctx context.Context) ([]model.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		out = append(out, ep.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveEndpoint stores ep.
func (s *MemoryStore) SaveEndpoint(ctx context.Context, ep model.Endpoint) error {
	s.mu.Lock()
	s.endpoints[ep.ID] = ep.Clone()
	s.mu.Unlock()
	return nil
}

// DeleteEndpoint removes an endpoint.
func (s *MemoryStore) DeleteEndpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.endpoints, id)
	s.mu.Unlock()
	return nil
}

// AppendRecord stores rec.
func (s *MemoryStore) AppendRecord(ctx context.Context, rec model.APIQueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[rec.EndpointID]
	if !ok {
		log = &memoryLog{}
		s.logs[rec.EndpointID] = log
	}
	log.seq++
	key := recordKey(rec.Timestamp, log.seq)

	i := sort.Search(len(log.entries), func(i int) bool {
		return bytes.Compare(log.entries[i].key, key) > 0
	})
	log.entries = append(log.entries, memoryEntry{})
	copy(log.entries[i+1:], log.entries[i:])
	log.entries[i] = memoryEntry{key: key, rec: rec.Clone()}
	return nil
}

// PageRecords returns up to limit records after the cursor.
func (s *MemoryStore) PageRecords(ctx context.Context, endpointID string, cursor Cursor, limit int) ([]model.APIQueryRecord, Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[endpointID]
	if !ok {
		return nil, cursor, nil
	}

	start := sort.Search(len(log.entries), func(i int) bool {
		return after(log.entries[i].key, cursor)
	})

	var (
		out  []model.APIQueryRecord
		last = cursor
	)
	for i := start; i < len(log.entries) && len(out) < limit; i++ {
		out = append(out, log.entries[i].rec.Clone())
		last = log.entries[i].key
	}
	return out, last, nil
}

// CountRecords returns the number of records stored for endpointID.
func (s *MemoryStore) CountRecords(ctx context.Context, endpointID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if log, ok := s.logs[endpointID]; ok {
		return len(log.entries), nil
	}
	return 0, nil
}

// RecordEndpoints returns the ids with ledger entries, sorted.
func (s *MemoryStore) RecordEndpoints(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadInventory returns every inventory record ordered by id.
func (s *MemoryStore) LoadInventory(ctx context.Context) ([]InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]InventoryRecord, 0, len(s.inventory))
	for _, rec := range s.inventory {
		rec.Outcomes = append([]bool(nil), rec.Outcomes...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveInventory stores rec.
func (s *MemoryStore) SaveInventory(ctx context.Context, rec InventoryRecord) error {
	s.mu.Lock()
	rec.Outcomes = append([]bool(nil), rec.Outcomes...)
	s.inventory[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

// DeleteInventory removes an inventory record.
func (s *MemoryStore) DeleteInventory(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.inventory, id)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
