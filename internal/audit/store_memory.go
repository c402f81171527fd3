package audit

import (
	"context"
	"sync"

	id "custodia/pkg/domain"
)

// MemoryStore keeps the audit trail in memory. Used in development and as the
// assertion point in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByRegistry(_ context.Context, registryID id.RegistryID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Registry == registryID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every recorded event in emission order.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
