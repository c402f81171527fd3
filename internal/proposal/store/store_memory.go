package store

import (
	"context"
	"sort"
	"sync"

	"custodia/internal/proposal/models"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for tests and single-node runs.
type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[id.ProposalKey]*models.Proposal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proposals: make(map[id.ProposalKey]*models.Proposal)}
}

func (s *MemoryStore) Create(_ context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposals[p.Key()]; ok {
		return sentinel.ErrConflict
	}
	s.proposals[p.Key()] = p.Clone()
	return nil
}

func (s *MemoryStore) FindByKey(_ context.Context, key id.ProposalKey) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposals[p.Key()]; !ok {
		return sentinel.ErrNotFound
	}
	s.proposals[p.Key()] = p.Clone()
	return nil
}

func (s *MemoryStore) ListByRegistry(_ context.Context, registryID id.RegistryID) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Proposal
	for key, p := range s.proposals {
		if key.Registry == registryID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
