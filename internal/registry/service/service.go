// Package service orchestrates owner registry governance: creation,
// membership changes, threshold changes, and treasury funding. Every mutation
// runs under the registry's entity lock so no two governance calls can
// interleave their read-modify-write cycles.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custodia/internal/audit"
	"custodia/internal/ledger"
	"custodia/internal/platform/locker"
	registrymetrics "custodia/internal/registry/metrics"
	"custodia/internal/registry/models"
	"custodia/internal/registry/policy"
	"custodia/internal/registry/store"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// ErrRegistryNotFound is returned for lookups of unknown registries.
var ErrRegistryNotFound = dErrors.New(dErrors.CodeNotFound, "registry not found")

// Info is the read model returned to callers inspecting a registry.
type Info struct {
	ID            id.RegistryID
	Owners        []id.PartyID
	Threshold     int
	ProposalCount uint64
	Balance       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Service coordinates registry governance.
type Service struct {
	registries store.Store
	treasury   *ledger.Service
	governance policy.Governance
	locks      locker.Locker
	publisher  audit.Publisher
	metrics    *registrymetrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithMetrics attaches the prometheus collectors.
func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher attaches the audit sink.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func New(registries store.Store, treasury *ledger.Service, governance policy.Governance, locks locker.Locker, opts ...Option) *Service {
	s := &Service{
		registries: registries,
		treasury:   treasury,
		governance: governance,
		locks:      locks,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockKey names the entity lock for a registry. The proposal engine uses the
// same key when it needs a stable membership view across one mutation.
func LockKey(registryID id.RegistryID) string {
	return "registry/" + registryID.String()
}

// Create validates and persists a new registry. The creating party becomes
// its governance authority under the default policy.
func (s *Service) Create(ctx context.Context, authority id.PartyID, owners []id.PartyID, threshold int) (*models.Registry, error) {
	reg, err := models.NewRegistry(id.NewRegistryID(), authority, owners, threshold, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.registries.Create(ctx, reg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create registry")
	}

	if err := s.emit(ctx, audit.Event{
		Action:   audit.ActionRegistryCreated,
		Registry: reg.ID,
		Actor:    authority,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementRegistriesCreated()
	}
	return reg, nil
}

// Info returns the registry's current owner set, threshold, proposal count
// and treasury balance.
func (s *Service) Info(ctx context.Context, registryID id.RegistryID) (*Info, error) {
	reg, err := s.load(ctx, registryID)
	if err != nil {
		return nil, err
	}
	balance, err := s.treasury.Balance(ctx, ledger.TreasuryAccount(registryID))
	if err != nil {
		return nil, err
	}
	return &Info{
		ID:            reg.ID,
		Owners:        reg.Owners,
		Threshold:     reg.Threshold,
		ProposalCount: reg.ProposalSeq,
		Balance:       balance,
		CreatedAt:     reg.CreatedAt,
		UpdatedAt:     reg.UpdatedAt,
	}, nil
}

// AddOwner grows the owner set. The threshold does not auto-increase.
func (s *Service) AddOwner(ctx context.Context, registryID id.RegistryID, caller, owner id.PartyID) error {
	return s.govern(ctx, registryID, caller, policy.ActionAddOwner, func(reg *models.Registry, now time.Time) ([]audit.Event, error) {
		if err := reg.AddOwner(owner, now); err != nil {
			return nil, err
		}
		return []audit.Event{{
			Action:   audit.ActionOwnerAdded,
			Registry: registryID,
			Actor:    caller,
			Subject:  owner,
		}}, nil
	})
}

// RemoveOwner shrinks the owner set. A removal that drops the owner count
// below the threshold clamps the threshold and surfaces the clamp as its own
// audit event.
func (s *Service) RemoveOwner(ctx context.Context, registryID id.RegistryID, caller, owner id.PartyID) error {
	var clamped bool
	err := s.govern(ctx, registryID, caller, policy.ActionRemoveOwner, func(reg *models.Registry, now time.Time) ([]audit.Event, error) {
		before := reg.Threshold
		var err error
		clamped, err = reg.RemoveOwner(owner, now)
		if err != nil {
			return nil, err
		}
		events := []audit.Event{{
			Action:   audit.ActionOwnerRemoved,
			Registry: registryID,
			Actor:    caller,
			Subject:  owner,
		}}
		if clamped {
			events = append(events, audit.Event{
				Action:   audit.ActionThresholdClamped,
				Registry: registryID,
				Actor:    caller,
				Detail:   thresholdDetail(before, reg.Threshold),
			})
		}
		return events, nil
	})
	if err != nil {
		return err
	}
	if clamped && s.metrics != nil {
		s.metrics.IncrementThresholdClamps()
	}
	return nil
}

// ChangeThreshold sets a new approval threshold.
func (s *Service) ChangeThreshold(ctx context.Context, registryID id.RegistryID, caller id.PartyID, threshold int) error {
	return s.govern(ctx, registryID, caller, policy.ActionChangeThreshold, func(reg *models.Registry, now time.Time) ([]audit.Event, error) {
		before := reg.Threshold
		if err := reg.ChangeThreshold(threshold, now); err != nil {
			return nil, err
		}
		return []audit.Event{{
			Action:   audit.ActionThresholdChanged,
			Registry: registryID,
			Actor:    caller,
			Detail:   thresholdDetail(before, threshold),
		}}, nil
	})
}

// Deposit credits the registry's treasury. Anyone may fund a treasury; only
// quorum moves funds out.
func (s *Service) Deposit(ctx context.Context, registryID id.RegistryID, caller id.PartyID, amount int64) error {
	if _, err := s.load(ctx, registryID); err != nil {
		return err
	}
	if err := s.treasury.Deposit(ctx, ledger.TreasuryAccount(registryID), amount); err != nil {
		return err
	}
	return s.emit(ctx, audit.Event{
		Action:   audit.ActionTreasuryFunded,
		Registry: registryID,
		Actor:    caller,
		Amount:   amount,
	})
}

// govern runs one governance mutation under the registry lock: authorize,
// mutate, persist, then emit the mutation's audit events.
func (s *Service) govern(ctx context.Context, registryID id.RegistryID, caller id.PartyID, action policy.Action, mutate func(*models.Registry, time.Time) ([]audit.Event, error)) error {
	start := time.Now()

	release, err := s.locks.Acquire(ctx, LockKey(registryID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire registry lock")
	}
	defer release()

	reg, err := s.load(ctx, registryID)
	if err != nil {
		return err
	}
	if err := s.governance.Authorize(ctx, reg, caller, action); err != nil {
		return err
	}

	events, err := mutate(reg, requestcontext.Now(ctx))
	if err != nil {
		return err
	}

	if err := s.registries.Update(ctx, reg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist registry")
	}
	for _, event := range events {
		if err := s.emit(ctx, event); err != nil {
			return err
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementGovernanceOp(string(action))
		s.metrics.ObserveGovernance(start)
	}
	return nil
}

func (s *Service) load(ctx context.Context, registryID id.RegistryID) (*models.Registry, error) {
	reg, err := s.registries.FindByID(ctx, registryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrRegistryNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry")
	}
	return reg, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.publisher == nil {
		return nil
	}
	event.Timestamp = requestcontext.Now(ctx)
	if err := s.publisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func thresholdDetail(before, after int) string {
	return fmt.Sprintf("threshold %d -> %d", before, after)
}
