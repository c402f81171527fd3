// Package store persists owner registries.
package store

import (
	"context"

	"custodia/internal/registry/models"
	id "custodia/pkg/domain"
)

// Store persists registries. Implementations return sentinel facts
// (sentinel.ErrNotFound, sentinel.ErrConflict); the service translates.
type Store interface {
	Create(ctx context.Context, reg *models.Registry) error
	FindByID(ctx context.Context, registryID id.RegistryID) (*models.Registry, error)
	Update(ctx context.Context, reg *models.Registry) error
	// AllocateSeq atomically advances the registry's proposal counter and
	// returns the allocated sequence number. Allocation must be atomic even
	// without the registry lock held, so concurrent proposers can never
	// receive the same number.
	AllocateSeq(ctx context.Context, registryID id.RegistryID) (uint64, error)
}
