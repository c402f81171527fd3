package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/internal/ledger"
	"custodia/internal/platform/locker"
	registrymetrics "custodia/internal/registry/metrics"
	"custodia/internal/registry/models"
	"custodia/internal/registry/policy"
	"custodia/internal/registry/store"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

// governanceMetrics registers on the global prometheus registerer, so it is
// created once for the whole test binary.
var governanceMetrics = registrymetrics.New()

// failingRegistryStore wraps the memory store and fails Update while armed.
type failingRegistryStore struct {
	*store.MemoryStore
	failUpdate bool
}

func (f *failingRegistryStore) Update(ctx context.Context, reg *models.Registry) error {
	if f.failUpdate {
		return errors.New("connection reset")
	}
	return f.MemoryStore.Update(ctx, reg)
}

// =============================================================================
// Registry Service Test Suite
// =============================================================================
// Justification for unit tests: governance authorization, the threshold clamp
// audit trail, and treasury wiring live in the service layer and are cheaper
// to pin down here than through the HTTP surface.

type RegistryServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *store.MemoryStore
	trail   *audit.MemoryStore
	service *Service

	alice id.PartyID
	bob   id.PartyID
	carol id.PartyID
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewMemoryStore()
	s.trail = audit.NewMemoryStore()
	s.service = New(s.store, ledger.NewService(ledger.NewMemoryStore()), policy.NewAuthority(), locker.NewMemory(),
		WithAuditPublisher(audit.NewStorePublisher(s.trail)),
	)

	s.alice = s.party("alice")
	s.bob = s.party("bob")
	s.carol = s.party("carol")
}

func (s *RegistryServiceSuite) party(name string) id.PartyID {
	p, err := id.ParsePartyID(name)
	s.Require().NoError(err)
	return p
}

func (s *RegistryServiceSuite) create(threshold int, owners ...id.PartyID) *models.Registry {
	reg, err := s.service.Create(s.ctx, s.alice, owners, threshold)
	s.Require().NoError(err)
	return reg
}

func (s *RegistryServiceSuite) actions(registryID id.RegistryID) []audit.Action {
	events, err := s.trail.ListByRegistry(s.ctx, registryID)
	s.Require().NoError(err)
	out := make([]audit.Action, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

func (s *RegistryServiceSuite) TestCreate() {
	s.Run("persists and audits", func() {
		reg := s.create(2, s.alice, s.bob)
		s.Equal(s.alice, reg.Authority)
		s.Equal([]audit.Action{audit.ActionRegistryCreated}, s.actions(reg.ID))
	})

	s.Run("invalid threshold surfaces the domain error", func() {
		_, err := s.service.Create(s.ctx, s.alice, []id.PartyID{s.alice}, 2)
		s.ErrorIs(err, models.ErrThresholdTooHigh)
	})
}

func (s *RegistryServiceSuite) TestInfo() {
	s.Run("includes treasury balance", func() {
		reg := s.create(1, s.alice)
		s.Require().NoError(s.service.Deposit(s.ctx, reg.ID, s.alice, 750))

		info, err := s.service.Info(s.ctx, reg.ID)
		s.NoError(err)
		s.Equal(int64(750), info.Balance)
		s.Equal(1, info.Threshold)
	})

	s.Run("unknown registry", func() {
		_, err := s.service.Info(s.ctx, id.NewRegistryID())
		s.ErrorIs(err, ErrRegistryNotFound)
	})
}

func (s *RegistryServiceSuite) TestGovernanceAuthorization() {
	reg := s.create(1, s.alice, s.bob)

	s.Run("non authority cannot govern", func() {
		err := s.service.AddOwner(s.ctx, reg.ID, s.bob, s.carol)
		s.ErrorIs(err, policy.ErrNotAuthority)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("authority can govern", func() {
		s.NoError(s.service.AddOwner(s.ctx, reg.ID, s.alice, s.carol))
	})
}

func (s *RegistryServiceSuite) TestRemoveOwner() {
	s.Run("clamp emits its own audit event", func() {
		reg := s.create(3, s.alice, s.bob, s.carol)
		s.NoError(s.service.RemoveOwner(s.ctx, reg.ID, s.alice, s.carol))

		updated, err := s.service.Info(s.ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal(2, updated.Threshold)
		s.Equal([]audit.Action{
			audit.ActionRegistryCreated,
			audit.ActionOwnerRemoved,
			audit.ActionThresholdClamped,
		}, s.actions(reg.ID))
	})

	s.Run("plain removal emits no clamp event", func() {
		reg := s.create(1, s.alice, s.bob)
		s.NoError(s.service.RemoveOwner(s.ctx, reg.ID, s.alice, s.bob))
		s.Equal([]audit.Action{
			audit.ActionRegistryCreated,
			audit.ActionOwnerRemoved,
		}, s.actions(reg.ID))
	})
}

func (s *RegistryServiceSuite) TestChangeThreshold() {
	reg := s.create(1, s.alice, s.bob)

	s.NoError(s.service.ChangeThreshold(s.ctx, reg.ID, s.alice, 2))
	info, err := s.service.Info(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(2, info.Threshold)

	s.ErrorIs(s.service.ChangeThreshold(s.ctx, reg.ID, s.alice, 5), models.ErrThresholdTooHigh)
}

// TestClampMetricCountsPersistedClampsOnly pins the clamp counter to the
// store: a removal that fails to persist must not show up as a clamp.
func (s *RegistryServiceSuite) TestClampMetricCountsPersistedClampsOnly() {
	flaky := &failingRegistryStore{MemoryStore: s.store}
	svc := New(flaky, ledger.NewService(ledger.NewMemoryStore()), policy.NewAuthority(), locker.NewMemory(),
		WithMetrics(governanceMetrics),
	)

	reg, err := svc.Create(s.ctx, s.alice, []id.PartyID{s.alice, s.bob}, 2)
	s.Require().NoError(err)

	clamps := func() float64 { return testutil.ToFloat64(governanceMetrics.ThresholdClamps) }
	before := clamps()

	flaky.failUpdate = true
	err = svc.RemoveOwner(s.ctx, reg.ID, s.alice, s.bob)
	s.Error(err)
	s.Equal(before, clamps())

	flaky.failUpdate = false
	s.Require().NoError(svc.RemoveOwner(s.ctx, reg.ID, s.alice, s.bob))
	s.Equal(before+1, clamps())
}

func (s *RegistryServiceSuite) TestDeposit() {
	reg := s.create(1, s.alice)

	s.Run("anyone may fund", func() {
		s.NoError(s.service.Deposit(s.ctx, reg.ID, s.carol, 100))
		s.Contains(s.actions(reg.ID), audit.ActionTreasuryFunded)
	})

	s.Run("non positive amount rejected", func() {
		err := s.service.Deposit(s.ctx, reg.ID, s.alice, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown registry rejected", func() {
		err := s.service.Deposit(s.ctx, id.NewRegistryID(), s.alice, 100)
		s.ErrorIs(err, ErrRegistryNotFound)
	})
}
