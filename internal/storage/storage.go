// Package storage is the key-value layer stored procedures read from and
// write to, grounded on kv/storage/mem_storage.go in the teacher repository
// but simplified to a single flat keyspace: this system's storage layer is
// deliberately out of scope (spec.md Non-goals), so only the minimal surface
// the Worker pool needs is implemented.
package storage

import (
	"sync"

	"github.com/abadid/SLOG/internal/txn"
)

// Record is a value plus the master-region bookkeeping RemasterManager and
// the Scheduler's Accept path need to detect a stale master assignment.
type Record struct {
	Value  []byte
	Master txn.MasterMetadata
}

// Storage is the interface stored procedures and the Scheduler's remaster
// path use to read and mutate committed state.
type Storage interface {
	Get(key string) (Record, bool)
	Set(key string, rec Record)
	Delete(key string)
}

// MemStorage is an in-memory Storage, the only implementation this system
// needs since its own storage engine is out of scope.
type MemStorage struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemStorage() *MemStorage {
	return &MemStorage{data: make(map[string]Record)}
}

func (s *MemStorage) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[key]
	return rec, ok
}

func (s *MemStorage) Set(key string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = rec
}

func (s *MemStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}
