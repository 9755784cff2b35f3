// Package ownership persists seal-ownership records and their one-time chain result.
package ownership

import (
	"context"
	"sync"
	"time"

	"citywalk/internal/certification/models"
	id "citywalk/pkg/domain"
	"citywalk/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded store for tests and local development.
// PersistChainResult is a compare-and-set on the chained flag.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.OwnershipID]*models.SealOwnershipRecord
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.OwnershipID]*models.SealOwnershipRecord),
		now:     time.Now,
	}
}

// Save inserts or replaces a record.
func (s *InMemory) Save(_ context.Context, record *models.SealOwnershipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, ownershipID id.OwnershipID) (*models.SealOwnershipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[ownershipID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

// PersistChainResult marks the record chained. It returns sentinel.ErrConflict
// when the record was already chained.
func (s *InMemory) PersistChainResult(_ context.Context, ownershipID id.OwnershipID, result models.ChainResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[ownershipID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Chained {
		return sentinel.ErrConflict
	}
	record.ApplyChain(result, s.now())
	return nil
}
