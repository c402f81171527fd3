// Package store persists proposal aggregates.
package store

import (
	"context"

	"custodia/internal/proposal/models"
	id "custodia/pkg/domain"
)

// Store is the proposal persistence port. Create fails with
// sentinel.ErrConflict when the key is taken; FindByKey fails with
// sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, p *models.Proposal) error
	FindByKey(ctx context.Context, key id.ProposalKey) (*models.Proposal, error)
	Update(ctx context.Context, p *models.Proposal) error
	ListByRegistry(ctx context.Context, registryID id.RegistryID) ([]*models.Proposal, error)
}
