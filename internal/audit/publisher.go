package audit

//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Publisher,Store

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Publisher accepts audit events from domain services. Implementations decide
// delivery semantics; services treat a failed Emit as a failed operation so no
// state change goes unrecorded.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists audit events for inspection.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRegistry(ctx context.Context, registryID id.RegistryID) ([]Event, error)
}

// StorePublisher writes events synchronously to a store. The default sink for
// development and tests.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.store.Append(ctx, event)
}
