package store

import (
	"context"
	"sync"

	"custodia/internal/registry/models"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// MemoryStore is the in-memory registry store used in development and unit
// tests. Clones on the way in and out so callers never share aggregate state
// with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	registries map[id.RegistryID]*models.Registry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{registries: make(map[id.RegistryID]*models.Registry)}
}

func (s *MemoryStore) Create(_ context.Context, reg *models.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registries[reg.ID]; exists {
		return sentinel.ErrConflict
	}
	s.registries[reg.ID] = reg.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, registryID id.RegistryID) (*models.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registries[registryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return reg.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, reg *models.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.registries[reg.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	// The proposal counter advances independently through AllocateSeq; a
	// stale aggregate must not rewind it.
	clone := reg.Clone()
	if current.ProposalSeq > clone.ProposalSeq {
		clone.ProposalSeq = current.ProposalSeq
	}
	s.registries[reg.ID] = clone
	return nil
}

func (s *MemoryStore) AllocateSeq(_ context.Context, registryID id.RegistryID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registries[registryID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	reg.ProposalSeq++
	return reg.ProposalSeq, nil
}
