// Package policy makes governance-of-governance pluggable. The registry's
// core invariants never depend on which policy gates membership changes; a
// deployment picks one policy and applies it consistently, because mixing
// policies across instances would split-brain the owner set.
package policy

import (
	"context"

	"custodia/internal/registry/models"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// Action names a governance operation on a registry.
type Action string

const (
	ActionAddOwner        Action = "add_owner"
	ActionRemoveOwner     Action = "remove_owner"
	ActionChangeThreshold Action = "change_threshold"
)

// ErrNotAuthority rejects governance calls from parties the policy does not
// recognize.
var ErrNotAuthority = dErrors.New(dErrors.CodeForbidden, "caller is not authorized to govern this registry")

// Governance decides whether a caller may perform a governance action on a
// registry. Implementations must be side-effect free: the registry service
// applies the mutation only after authorization succeeds.
type Governance interface {
	Authorize(ctx context.Context, reg *models.Registry, caller id.PartyID, action Action) error
}

// Authority is the reference policy: a single designated party, fixed at
// registry creation, gates every governance action. Stricter deployments can
// substitute a policy that routes these actions through the proposal engine
// itself.
type Authority struct{}

func NewAuthority() Authority {
	return Authority{}
}

func (Authority) Authorize(_ context.Context, reg *models.Registry, caller id.PartyID, _ Action) error {
	if caller != reg.Authority {
		return ErrNotAuthority
	}
	return nil
}
