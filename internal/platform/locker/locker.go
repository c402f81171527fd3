// Package locker serializes mutations per entity.
//
// Every observe-then-commit sequence against a registry or a proposal runs
// under the entity's lock, so no two operations can read the same tally or
// owner set and both commit. The in-process implementation is the default; a
// Redis lease lock covers multi-instance deployments.
package locker

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a keyed entity. Release must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Memory is an in-process keyed lock. One slot per key; waiters queue on the
// slot channel and honor context cancellation.
type Memory struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]chan struct{})}
}

func (m *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	slot := m.slot(key)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[key] = slot
	}
	return slot
}
