// Package models holds the owner registry aggregate.
package models

import (
	"fmt"
	"time"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// MaxOwners caps the owner set. Ten matches the widest quorum the upstream
// ledger programs accept.
const MaxOwners = 10

// Specific failure kinds, errors.Is-able by callers and mapped to transport
// by their codes.
var (
	ErrInvalidOwnerCount     = dErrors.New(dErrors.CodeValidation, "owner set must have between 1 and 10 members")
	ErrDuplicateOwner        = dErrors.New(dErrors.CodeValidation, "owner set contains duplicate parties")
	ErrInvalidThreshold      = dErrors.New(dErrors.CodeValidation, "threshold must be at least 1")
	ErrThresholdTooHigh      = dErrors.New(dErrors.CodeValidation, "threshold cannot exceed the number of owners")
	ErrTooManyOwners         = dErrors.New(dErrors.CodeConflict, "registry already has the maximum number of owners")
	ErrAlreadyOwner          = dErrors.New(dErrors.CodeConflict, "party is already an owner")
	ErrNotAnOwner            = dErrors.New(dErrors.CodeConflict, "party is not an owner of this registry")
	ErrCannotRemoveLastOwner = dErrors.New(dErrors.CodeInvariantViolation, "cannot remove the last remaining owner")
)

// Registry is the aggregate root for one jointly controlled treasury.
//
// Invariants:
//   - 1 <= len(Owners) <= MaxOwners, no duplicates
//   - 1 <= Threshold <= len(Owners), after every operation (removal clamps)
//   - ProposalSeq is monotonic; allocated sequence numbers are never reused
//
// Owner order is insertion order. It matters only for display; authorization
// treats Owners as a set.
type Registry struct {
	ID          id.RegistryID
	Owners      []id.PartyID
	Threshold   int
	ProposalSeq uint64
	// Authority is the party permitted to mutate membership and threshold
	// under the default governance policy. Pluggable policies may ignore it.
	Authority id.PartyID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRegistry validates and constructs a registry.
func NewRegistry(registryID id.RegistryID, authority id.PartyID, owners []id.PartyID, threshold int, now time.Time) (*Registry, error) {
	if len(owners) == 0 || len(owners) > MaxOwners {
		return nil, ErrInvalidOwnerCount
	}
	seen := make(map[id.PartyID]struct{}, len(owners))
	for _, owner := range owners {
		if _, dup := seen[owner]; dup {
			return nil, ErrDuplicateOwner
		}
		seen[owner] = struct{}{}
	}
	if threshold < 1 {
		return nil, ErrInvalidThreshold
	}
	if threshold > len(owners) {
		return nil, ErrThresholdTooHigh
	}

	return &Registry{
		ID:        registryID,
		Owners:    append([]id.PartyID(nil), owners...),
		Threshold: threshold,
		Authority: authority,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsOwner reports current membership.
func (r *Registry) IsOwner(party id.PartyID) bool {
	for _, owner := range r.Owners {
		if owner == party {
			return true
		}
	}
	return false
}

// CanAddOwner checks the add-owner transition without applying it.
func (r *Registry) CanAddOwner(owner id.PartyID) error {
	if len(r.Owners) >= MaxOwners {
		return ErrTooManyOwners
	}
	if r.IsOwner(owner) {
		return ErrAlreadyOwner
	}
	return nil
}

// ApplyAddOwner appends the owner. The threshold is left untouched: growing
// the set never silently raises the bar for in-flight proposals.
func (r *Registry) ApplyAddOwner(owner id.PartyID, now time.Time) {
	r.Owners = append(r.Owners, owner)
	r.UpdatedAt = now
}

// AddOwner validates and applies in one call.
func (r *Registry) AddOwner(owner id.PartyID, now time.Time) error {
	if err := r.CanAddOwner(owner); err != nil {
		return err
	}
	r.ApplyAddOwner(owner, now)
	return nil
}

// CanRemoveOwner checks the remove-owner transition without applying it.
func (r *Registry) CanRemoveOwner(owner id.PartyID) error {
	if !r.IsOwner(owner) {
		return ErrNotAnOwner
	}
	if len(r.Owners) == 1 {
		return ErrCannotRemoveLastOwner
	}
	return nil
}

// ApplyRemoveOwner removes the owner and reports whether the threshold was
// clamped down to the shrunken owner count. Callers surface the clamp as an
// observable event rather than letting it pass silently.
func (r *Registry) ApplyRemoveOwner(owner id.PartyID, now time.Time) (clamped bool) {
	kept := r.Owners[:0]
	for _, o := range r.Owners {
		if o != owner {
			kept = append(kept, o)
		}
	}
	r.Owners = kept
	if r.Threshold > len(r.Owners) {
		r.Threshold = len(r.Owners)
		clamped = true
	}
	r.UpdatedAt = now
	return clamped
}

// RemoveOwner validates and applies in one call.
func (r *Registry) RemoveOwner(owner id.PartyID, now time.Time) (clamped bool, err error) {
	if err := r.CanRemoveOwner(owner); err != nil {
		return false, err
	}
	return r.ApplyRemoveOwner(owner, now), nil
}

// CanChangeThreshold checks the new threshold against the current owner set.
func (r *Registry) CanChangeThreshold(threshold int) error {
	if threshold < 1 {
		return ErrInvalidThreshold
	}
	if threshold > len(r.Owners) {
		return ErrThresholdTooHigh
	}
	return nil
}

// ApplyChangeThreshold sets the new threshold.
func (r *Registry) ApplyChangeThreshold(threshold int, now time.Time) {
	r.Threshold = threshold
	r.UpdatedAt = now
}

// ChangeThreshold validates and applies in one call.
func (r *Registry) ChangeThreshold(threshold int, now time.Time) error {
	if err := r.CanChangeThreshold(threshold); err != nil {
		return err
	}
	r.ApplyChangeThreshold(threshold, now)
	return nil
}

// Clone returns an independent copy so stores never alias caller state.
func (r *Registry) Clone() *Registry {
	cp := *r
	cp.Owners = append([]id.PartyID(nil), r.Owners...)
	return &cp
}

func (r *Registry) String() string {
	return fmt.Sprintf("registry %s (%d owners, threshold %d)", r.ID, len(r.Owners), r.Threshold)
}
