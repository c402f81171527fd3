//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/proposal/models"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore

	alice id.PartyID
	bob   id.PartyID
	dave  id.PartyID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = NewPostgresStore(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))

	for name, target := range map[string]*id.PartyID{
		"alice": &s.alice, "bob": &s.bob, "dave": &s.dave,
	} {
		p, err := id.ParsePartyID(name)
		s.Require().NoError(err)
		*target = p
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "proposals"))
}

func (s *PostgresStoreSuite) newProposal(registryID id.RegistryID, seq uint64) *models.Proposal {
	p, err := models.NewProposal(
		id.ProposalKey{Registry: registryID, Seq: seq},
		s.alice, s.dave, 500, "hosting",
		time.Now().UTC().Truncate(time.Microsecond),
	)
	s.Require().NoError(err)
	return p
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	p := s.newProposal(id.NewRegistryID(), 1)
	s.Require().NoError(s.store.Create(ctx, p))

	found, err := s.store.FindByKey(ctx, p.Key())
	s.Require().NoError(err)
	s.Equal(p.Key(), found.Key())
	s.Equal(p.Proposer, found.Proposer)
	s.Equal(p.Recipient, found.Recipient)
	s.Equal(p.Amount, found.Amount)
	s.Equal(p.Memo, found.Memo)
	s.Equal(models.StatusPending, found.Status)
	s.Equal(models.VoteApprove, found.Votes[s.alice])
	s.Nil(found.ExecutedAt)
}

func (s *PostgresStoreSuite) TestCreateConflict() {
	ctx := context.Background()
	p := s.newProposal(id.NewRegistryID(), 1)
	s.Require().NoError(s.store.Create(ctx, p))
	s.ErrorIs(s.store.Create(ctx, p), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindMissing() {
	_, err := s.store.FindByKey(context.Background(), id.ProposalKey{Registry: id.NewRegistryID(), Seq: 1})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestUpdatePersistsVotesAndStatus walks the proposal through votes and
// execution, verifying the JSONB vote map and the executed-at stamp survive a
// round trip.
func (s *PostgresStoreSuite) TestUpdatePersistsVotesAndStatus() {
	ctx := context.Background()
	p := s.newProposal(id.NewRegistryID(), 1)
	s.Require().NoError(s.store.Create(ctx, p))

	_, err := p.Approve(s.bob, 2)
	s.Require().NoError(err)
	executedAt := time.Now().UTC().Truncate(time.Microsecond)
	p.ApplyExecute(executedAt)
	s.Require().NoError(s.store.Update(ctx, p))

	found, err := s.store.FindByKey(ctx, p.Key())
	s.Require().NoError(err)
	s.Equal(models.StatusExecuted, found.Status)
	s.Equal(2, found.Approvals())
	s.Require().NotNil(found.ExecutedAt)
	s.Equal(executedAt, *found.ExecutedAt)
}

func (s *PostgresStoreSuite) TestUpdateMissing() {
	p := s.newProposal(id.NewRegistryID(), 7)
	s.ErrorIs(s.store.Update(context.Background(), p), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByRegistry() {
	ctx := context.Background()
	registryID := id.NewRegistryID()
	for seq := uint64(1); seq <= 3; seq++ {
		s.Require().NoError(s.store.Create(ctx, s.newProposal(registryID, seq)))
	}
	// A different registry's proposal must not leak in.
	s.Require().NoError(s.store.Create(ctx, s.newProposal(id.NewRegistryID(), 1)))

	proposals, err := s.store.ListByRegistry(ctx, registryID)
	s.Require().NoError(err)
	s.Len(proposals, 3)
	for i, p := range proposals {
		s.Equal(uint64(i+1), p.Seq)
	}
}
