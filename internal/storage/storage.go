// Package storage keeps facts a forward task captured so its virtual twin can compute deltas.
package storage

import (
	"sync"

	"github.com/google/uuid"

	"aptoswarm/internal/models"
)

type key struct {
	walletID uuid.UUID
	taskID   uuid.UUID
}

// ExecutionStorage is an in-memory store keyed by (wallet, task). It lives for the
// application lifetime and is reset at the start of each run.
type ExecutionStorage struct {
	mu      sync.RWMutex
	records map[key]models.ExecutionRecord
}

// NewExecutionStorage creates an empty store
func NewExecutionStorage() *ExecutionStorage {
	return &ExecutionStorage{
		records: make(map[key]models.ExecutionRecord),
	}
}

// Set stores the record for a wallet and task, replacing any previous one
func (s *ExecutionStorage) Set(walletID, taskID uuid.UUID, rec models.ExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key{walletID, taskID}] = rec
}

// Get returns the record for a wallet and task
func (s *ExecutionStorage) Get(walletID, taskID uuid.UUID) (models.ExecutionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key{walletID, taskID}]
	return rec, ok
}

// Len returns the number of stored records
func (s *ExecutionStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Reset drops every record
func (s *ExecutionStorage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[key]models.ExecutionRecord)
}
