package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
)

// =============================================================================
// Proposal State Machine Test Suite
// =============================================================================
// Justification for unit tests: the vote tally drives every status transition,
// including regressions out of Approved, and the edge ordering (side switches,
// unreachable quorum) is much easier to pin down here than through HTTP.

type ProposalSuite struct {
	suite.Suite
	now time.Time

	alice id.PartyID
	bob   id.PartyID
	carol id.PartyID
	dave  id.PartyID
}

func TestProposalSuite(t *testing.T) {
	suite.Run(t, new(ProposalSuite))
}

func (s *ProposalSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.alice = s.party("alice")
	s.bob = s.party("bob")
	s.carol = s.party("carol")
	s.dave = s.party("dave")
}

func (s *ProposalSuite) party(name string) id.PartyID {
	p, err := id.ParsePartyID(name)
	s.Require().NoError(err)
	return p
}

func (s *ProposalSuite) newProposal(proposer id.PartyID) *Proposal {
	key := id.ProposalKey{Registry: id.NewRegistryID(), Seq: 1}
	p, err := NewProposal(key, proposer, s.dave, 500, "ops budget", s.now)
	s.Require().NoError(err)
	return p
}

func (s *ProposalSuite) TestNewProposal() {
	s.Run("proposer approves implicitly and status starts pending", func() {
		p := s.newProposal(s.alice)
		s.Equal(StatusPending, p.Status)
		s.Equal(1, p.Approvals())
		s.Equal(0, p.Rejections())
		s.Equal(VoteApprove, p.Votes[s.alice])
	})

	s.Run("zero amount rejected", func() {
		_, err := NewProposal(id.ProposalKey{Registry: id.NewRegistryID(), Seq: 1}, s.alice, s.dave, 0, "", s.now)
		s.ErrorIs(err, ErrInvalidAmount)
	})

	s.Run("negative amount rejected", func() {
		_, err := NewProposal(id.ProposalKey{Registry: id.NewRegistryID(), Seq: 1}, s.alice, s.dave, -5, "", s.now)
		s.ErrorIs(err, ErrInvalidAmount)
	})

	s.Run("memo at the limit accepted", func() {
		memo := make([]byte, MaxMemoLength)
		for i := range memo {
			memo[i] = 'x'
		}
		p, err := NewProposal(id.ProposalKey{Registry: id.NewRegistryID(), Seq: 1}, s.alice, s.dave, 1, string(memo), s.now)
		s.NoError(err)
		s.Len(p.Memo, MaxMemoLength)
	})

	s.Run("memo over the limit rejected", func() {
		memo := make([]byte, MaxMemoLength+1)
		_, err := NewProposal(id.ProposalKey{Registry: id.NewRegistryID(), Seq: 1}, s.alice, s.dave, 1, string(memo), s.now)
		s.ErrorIs(err, ErrMemoTooLong)
	})

	s.Run("even a one of one registry starts pending", func() {
		// The tally first runs on the next vote, not at creation.
		p := s.newProposal(s.alice)
		s.Equal(StatusPending, p.Status)
	})
}

func (s *ProposalSuite) TestApprove() {
	s.Run("reaching threshold transitions to approved", func() {
		p := s.newProposal(s.alice)
		reached, err := p.Approve(s.bob, 2)
		s.NoError(err)
		s.True(reached)
		s.Equal(StatusApproved, p.Status)
		s.Equal(2, p.Approvals())
	})

	s.Run("below threshold stays pending", func() {
		p := s.newProposal(s.alice)
		reached, err := p.Approve(s.bob, 3)
		s.NoError(err)
		s.False(reached)
		s.Equal(StatusPending, p.Status)
	})

	s.Run("double approval rejected", func() {
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.alice, 3)
		s.ErrorIs(err, ErrAlreadyApproved)
		s.Equal(1, p.Approvals())
	})

	s.Run("an owner on the reject side cannot approve", func() {
		p := s.newProposal(s.alice)
		_, err := p.Reject(s.bob, 3, 2)
		s.Require().NoError(err)
		_, err = p.Approve(s.bob, 2)
		s.ErrorIs(err, ErrAlreadyRejected)
	})

	s.Run("approved proposal takes no further approvals", func() {
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.bob, 2)
		s.Require().NoError(err)
		_, err = p.Approve(s.carol, 2)
		s.ErrorIs(err, ErrNotPending)
	})

	s.Run("terminal proposal takes no approvals", func() {
		p := s.newProposal(s.alice)
		p.ApplyCancel()
		_, err := p.Approve(s.bob, 2)
		s.ErrorIs(err, ErrNotPending)
	})
}

func (s *ProposalSuite) TestReject() {
	s.Run("rejection overrides the same owner's approval", func() {
		// 3 owners, threshold 2: alice and bob approve, then bob rejects.
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.bob, 2)
		s.Require().NoError(err)
		s.Equal(StatusApproved, p.Status)

		status, err := p.Reject(s.bob, 3, 2)
		s.NoError(err)
		s.Equal(StatusPending, status)
		s.Equal(1, p.Approvals())
		s.Equal(1, p.Rejections())
	})

	s.Run("quorum unreachable terminates as rejected", func() {
		// 3 owners, threshold 2: two rejections leave at most one approval.
		p := s.newProposal(s.alice)
		_, err := p.Reject(s.bob, 3, 2)
		s.Require().NoError(err)
		s.Equal(StatusPending, p.Status)

		status, err := p.Reject(s.carol, 3, 2)
		s.NoError(err)
		s.Equal(StatusRejected, status)
		s.True(p.Status.IsTerminal())
	})

	s.Run("proposer rejecting own proposal in a one of one fails fast", func() {
		p := s.newProposal(s.alice)
		status, err := p.Reject(s.alice, 1, 1)
		s.NoError(err)
		s.Equal(StatusRejected, status)
		s.Equal(0, p.Approvals())
	})

	s.Run("double rejection rejected", func() {
		p := s.newProposal(s.alice)
		_, err := p.Reject(s.bob, 4, 2)
		s.Require().NoError(err)
		_, err = p.Reject(s.bob, 4, 2)
		s.ErrorIs(err, ErrAlreadyRejected)
	})

	s.Run("rejection with quorum still reachable leaves approved standing", func() {
		// 4 owners, threshold 2: a bystander rejection does not regress an
		// approved proposal whose tally still meets the threshold.
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.bob, 2)
		s.Require().NoError(err)

		status, err := p.Reject(s.carol, 4, 2)
		s.NoError(err)
		s.Equal(StatusApproved, status)
	})

	s.Run("terminal proposal takes no rejections", func() {
		p := s.newProposal(s.alice)
		p.ApplyCancel()
		_, err := p.Reject(s.bob, 3, 2)
		s.ErrorIs(err, ErrNotOpen)
	})
}

func (s *ProposalSuite) TestExecute() {
	s.Run("pending proposal cannot execute", func() {
		p := s.newProposal(s.alice)
		s.ErrorIs(p.CanExecute(2), ErrNotApproved)
	})

	s.Run("approved proposal executes and stamps the time", func() {
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.bob, 2)
		s.Require().NoError(err)
		s.NoError(p.CanExecute(2))

		executedAt := s.now.Add(time.Minute)
		p.ApplyExecute(executedAt)
		s.Equal(StatusExecuted, p.Status)
		s.Require().NotNil(p.ExecutedAt)
		s.Equal(executedAt, *p.ExecutedAt)
	})

	s.Run("threshold raised after approval blocks execution", func() {
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.bob, 2)
		s.Require().NoError(err)
		s.ErrorIs(p.CanExecute(3), ErrQuorumNotMet)
	})

	s.Run("executed proposal cannot execute again", func() {
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.bob, 2)
		s.Require().NoError(err)
		p.ApplyExecute(s.now)
		s.ErrorIs(p.CanExecute(2), ErrNotApproved)
	})
}

func (s *ProposalSuite) TestCancel() {
	s.Run("proposer cancels a pending proposal", func() {
		p := s.newProposal(s.alice)
		s.NoError(p.CanCancel(s.alice))
		p.ApplyCancel()
		s.Equal(StatusCancelled, p.Status)
	})

	s.Run("proposer cancels an approved proposal", func() {
		p := s.newProposal(s.alice)
		_, err := p.Approve(s.bob, 2)
		s.Require().NoError(err)
		s.NoError(p.CanCancel(s.alice))
	})

	s.Run("non proposer cannot cancel", func() {
		p := s.newProposal(s.alice)
		s.ErrorIs(p.CanCancel(s.bob), ErrNotProposer)
	})

	s.Run("terminal proposal cannot be cancelled", func() {
		p := s.newProposal(s.alice)
		p.ApplyCancel()
		s.ErrorIs(p.CanCancel(s.alice), ErrNotOpen)
	})
}

func (s *ProposalSuite) TestClone() {
	p := s.newProposal(s.alice)
	_, err := p.Approve(s.bob, 3)
	s.Require().NoError(err)

	cp := p.Clone()
	cp.Votes[s.carol] = VoteReject
	s.Equal(2, len(p.Votes))
	s.Equal(3, len(cp.Votes))
}
