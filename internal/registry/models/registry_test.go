package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
)

// =============================================================================
// Registry Aggregate Test Suite
// =============================================================================

type RegistrySuite struct {
	suite.Suite
	now time.Time

	alice id.PartyID
	bob   id.PartyID
	carol id.PartyID
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.alice = s.party("alice")
	s.bob = s.party("bob")
	s.carol = s.party("carol")
}

func (s *RegistrySuite) party(name string) id.PartyID {
	p, err := id.ParsePartyID(name)
	s.Require().NoError(err)
	return p
}

func (s *RegistrySuite) newRegistry(threshold int, owners ...id.PartyID) *Registry {
	reg, err := NewRegistry(id.NewRegistryID(), s.alice, owners, threshold, s.now)
	s.Require().NoError(err)
	return reg
}

func (s *RegistrySuite) TestNewRegistry() {
	s.Run("valid registry", func() {
		reg := s.newRegistry(2, s.alice, s.bob, s.carol)
		s.Len(reg.Owners, 3)
		s.Equal(2, reg.Threshold)
		s.Equal(uint64(0), reg.ProposalSeq)
	})

	s.Run("empty owner set rejected", func() {
		_, err := NewRegistry(id.NewRegistryID(), s.alice, nil, 1, s.now)
		s.ErrorIs(err, ErrInvalidOwnerCount)
	})

	s.Run("more than ten owners rejected", func() {
		owners := make([]id.PartyID, MaxOwners+1)
		for i := range owners {
			owners[i] = s.party(string(rune('a'+i)) + "-owner")
		}
		_, err := NewRegistry(id.NewRegistryID(), s.alice, owners, 1, s.now)
		s.ErrorIs(err, ErrInvalidOwnerCount)
	})

	s.Run("duplicate owners rejected", func() {
		_, err := NewRegistry(id.NewRegistryID(), s.alice, []id.PartyID{s.alice, s.alice}, 1, s.now)
		s.ErrorIs(err, ErrDuplicateOwner)
	})

	s.Run("zero threshold rejected", func() {
		_, err := NewRegistry(id.NewRegistryID(), s.alice, []id.PartyID{s.alice}, 0, s.now)
		s.ErrorIs(err, ErrInvalidThreshold)
	})

	s.Run("threshold above owner count rejected", func() {
		_, err := NewRegistry(id.NewRegistryID(), s.alice, []id.PartyID{s.alice, s.bob}, 3, s.now)
		s.ErrorIs(err, ErrThresholdTooHigh)
	})
}

func (s *RegistrySuite) TestAddOwner() {
	s.Run("adds a new owner without touching the threshold", func() {
		reg := s.newRegistry(2, s.alice, s.bob)
		s.NoError(reg.AddOwner(s.carol, s.now))
		s.True(reg.IsOwner(s.carol))
		s.Equal(2, reg.Threshold)
	})

	s.Run("existing owner rejected", func() {
		reg := s.newRegistry(1, s.alice, s.bob)
		s.ErrorIs(reg.AddOwner(s.bob, s.now), ErrAlreadyOwner)
	})

	s.Run("capacity enforced", func() {
		owners := make([]id.PartyID, MaxOwners)
		for i := range owners {
			owners[i] = s.party(string(rune('a'+i)) + "-owner")
		}
		reg := s.newRegistry(1, owners...)
		s.ErrorIs(reg.AddOwner(s.party("overflow"), s.now), ErrTooManyOwners)
	})
}

func (s *RegistrySuite) TestRemoveOwner() {
	s.Run("removes without clamping when threshold still fits", func() {
		reg := s.newRegistry(2, s.alice, s.bob, s.carol)
		clamped, err := reg.RemoveOwner(s.carol, s.now)
		s.NoError(err)
		s.False(clamped)
		s.Equal(2, reg.Threshold)
		s.False(reg.IsOwner(s.carol))
	})

	s.Run("clamps threshold to the new owner count", func() {
		reg := s.newRegistry(3, s.alice, s.bob, s.carol)
		clamped, err := reg.RemoveOwner(s.carol, s.now)
		s.NoError(err)
		s.True(clamped)
		s.Equal(2, reg.Threshold)
	})

	s.Run("non owner rejected", func() {
		reg := s.newRegistry(1, s.alice)
		_, err := reg.RemoveOwner(s.bob, s.now)
		s.ErrorIs(err, ErrNotAnOwner)
	})

	s.Run("last owner protected", func() {
		reg := s.newRegistry(1, s.alice)
		_, err := reg.RemoveOwner(s.alice, s.now)
		s.ErrorIs(err, ErrCannotRemoveLastOwner)
	})
}

func (s *RegistrySuite) TestChangeThreshold() {
	s.Run("valid change applies", func() {
		reg := s.newRegistry(1, s.alice, s.bob, s.carol)
		s.NoError(reg.ChangeThreshold(3, s.now))
		s.Equal(3, reg.Threshold)
	})

	s.Run("zero rejected", func() {
		reg := s.newRegistry(1, s.alice, s.bob)
		s.ErrorIs(reg.ChangeThreshold(0, s.now), ErrInvalidThreshold)
	})

	s.Run("above owner count rejected", func() {
		reg := s.newRegistry(1, s.alice, s.bob)
		s.ErrorIs(reg.ChangeThreshold(3, s.now), ErrThresholdTooHigh)
	})
}
