package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type LedgerServiceSuite struct {
	suite.Suite
	ctx     context.Context
	service *Service

	treasury AccountID
	payee    AccountID
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.service = NewService(NewMemoryStore())

	s.treasury = TreasuryAccount(id.NewRegistryID())
	payee, err := id.ParsePartyID("payee")
	s.Require().NoError(err)
	s.payee = PartyAccount(payee)
}

func (s *LedgerServiceSuite) TestBalance() {
	s.Run("unknown account reads zero", func() {
		balance, err := s.service.Balance(s.ctx, s.treasury)
		s.NoError(err)
		s.Equal(int64(0), balance)
	})
}

func (s *LedgerServiceSuite) TestDeposit() {
	s.Run("credits accumulate", func() {
		s.NoError(s.service.Deposit(s.ctx, s.treasury, 100))
		s.NoError(s.service.Deposit(s.ctx, s.treasury, 250))
		balance, err := s.service.Balance(s.ctx, s.treasury)
		s.NoError(err)
		s.Equal(int64(350), balance)
	})

	s.Run("non positive amount rejected", func() {
		err := s.service.Deposit(s.ctx, s.treasury, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *LedgerServiceSuite) TestTransfer() {
	s.Run("moves both sides atomically", func() {
		s.Require().NoError(s.service.Deposit(s.ctx, s.treasury, 500))
		s.NoError(s.service.Transfer(s.ctx, s.treasury, s.payee, 200))

		from, err := s.service.Balance(s.ctx, s.treasury)
		s.Require().NoError(err)
		to, err := s.service.Balance(s.ctx, s.payee)
		s.Require().NoError(err)
		s.Equal(int64(300), from)
		s.Equal(int64(200), to)
	})

	s.Run("insufficient funds leaves balances untouched", func() {
		from, err := s.service.Balance(s.ctx, s.treasury)
		s.Require().NoError(err)

		s.ErrorIs(s.service.Transfer(s.ctx, s.treasury, s.payee, from+1), ErrInsufficientFunds)

		after, err := s.service.Balance(s.ctx, s.treasury)
		s.Require().NoError(err)
		s.Equal(from, after)
	})

	s.Run("exact balance drains to zero", func() {
		from, err := s.service.Balance(s.ctx, s.treasury)
		s.Require().NoError(err)
		s.NoError(s.service.Transfer(s.ctx, s.treasury, s.payee, from))

		after, err := s.service.Balance(s.ctx, s.treasury)
		s.Require().NoError(err)
		s.Equal(int64(0), after)
	})
}

// TestConcurrentTransfers hammers one treasury from many goroutines; the
// store must never let the balance go negative.
func TestConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewMemoryStore())
	treasury := TreasuryAccount(id.NewRegistryID())
	payee, err := id.ParsePartyID("payee")
	if err != nil {
		t.Fatal(err)
	}

	if err := service.Deposit(ctx, treasury, 10); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, 100)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := service.Transfer(ctx, treasury, PartyAccount(payee), 1); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	if got := len(succeeded); got != 10 {
		t.Fatalf("expected exactly 10 transfers to succeed, got %d", got)
	}
	balance, err := service.Balance(ctx, treasury)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 {
		t.Fatalf("expected drained treasury, got %d", balance)
	}
}
