package ledger

import (
	"context"
	"sync"

	"custodia/pkg/platform/sentinel"
)

// MemoryStore keeps balances in memory behind one mutex, which makes every
// operation — including the two-sided transfer — atomic by construction.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[AccountID]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[AccountID]int64)}
}

func (s *MemoryStore) Balance(_ context.Context, account AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *MemoryStore) Credit(_ context.Context, account AccountID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] += amount
	return nil
}

func (s *MemoryStore) Transfer(_ context.Context, from, to AccountID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[from] < amount {
		return sentinel.ErrInsufficientFunds
	}
	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}
