// Package store provides the in-process entity cache the resolver reads from
// and writes fetch results into.
package store

import (
	"sync"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
)

// Memory is a concurrency-safe key/value store of records for one entity
// type. Entries are only added or overwritten, never removed.
type Memory[K comparable, V any] struct {
	mu      sync.RWMutex
	records map[K]entity.Record[V]
}

// NewMemory creates an empty store.
func NewMemory[K comparable, V any]() *Memory[K, V] {
	return &Memory[K, V]{
		records: make(map[K]entity.Record[V]),
	}
}

// Read returns the record for id, or an Absent record if there is none.
func (m *Memory[K, V]) Read(id K) entity.Record[V] {
	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return entity.Record[V]{Status: entity.StatusAbsent}
	}
	return rec
}

// Write replaces the record for id.
func (m *Memory[K, V]) Write(id K, rec entity.Record[V]) {
	m.mu.Lock()
	m.records[id] = rec
	m.mu.Unlock()
}

// Update applies fn to the current record for id under the write lock and
// stores the result. It returns the stored record.
func (m *Memory[K, V]) Update(id K, fn func(entity.Record[V]) entity.Record[V]) entity.Record[V] {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := fn(m.records[id])
	m.records[id] = rec
	return rec
}

// Len returns the number of records held.
func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Snapshot returns a copy of all records.
func (m *Memory[K, V]) Snapshot() map[K]entity.Record[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[K]entity.Record[V], len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out
}

// CountByStatus returns how many records are in each status.
func (m *Memory[K, V]) CountByStatus() map[entity.Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[entity.Status]int)
	for _, rec := range m.records {
		counts[rec.Status]++
	}
	return counts
}
