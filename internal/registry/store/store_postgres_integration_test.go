//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/registry/models"
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

	var err error
	s.alice, err = id.ParsePartyID("alice")
	s.Require().NoError(err)
	s.bob, err = id.ParsePartyID("bob")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "registries"))
}

func (s *PostgresStoreSuite) newRegistry() *models.Registry {
	reg, err := models.NewRegistry(id.NewRegistryID(), s.alice,
		[]id.PartyID{s.alice, s.bob}, 2, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return reg
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	reg := s.newRegistry()
	s.Require().NoError(s.store.Create(ctx, reg))

	found, err := s.store.FindByID(ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(reg.ID, found.ID)
	s.Equal(reg.Owners, found.Owners)
	s.Equal(reg.Threshold, found.Threshold)
	s.Equal(reg.Authority, found.Authority)
}

func (s *PostgresStoreSuite) TestCreateConflict() {
	ctx := context.Background()
	reg := s.newRegistry()
	s.Require().NoError(s.store.Create(ctx, reg))
	s.ErrorIs(s.store.Create(ctx, reg), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(context.Background(), id.NewRegistryID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()
	reg := s.newRegistry()
	s.Require().NoError(s.store.Create(ctx, reg))

	s.Require().NoError(reg.ChangeThreshold(1, time.Now().UTC()))
	s.Require().NoError(s.store.Update(ctx, reg))

	found, err := s.store.FindByID(ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(1, found.Threshold)
}

func (s *PostgresStoreSuite) TestAllocateSeq() {
	ctx := context.Background()
	reg := s.newRegistry()
	s.Require().NoError(s.store.Create(ctx, reg))

	seq, err := s.store.AllocateSeq(ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(uint64(1), seq)

	seq, err = s.store.AllocateSeq(ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(uint64(2), seq)
}

// TestAllocateSeqConcurrent proves the sequence allocator never hands out
// the same number twice under contention.
func (s *PostgresStoreSuite) TestAllocateSeqConcurrent() {
	ctx := context.Background()
	reg := s.newRegistry()
	s.Require().NoError(s.store.Create(ctx, reg))

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]bool, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.store.AllocateSeq(ctx, reg.ID)
			if err != nil {
				return
			}
			mu.Lock()
			seen[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(seen, workers)
}
