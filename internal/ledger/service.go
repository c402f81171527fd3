package ledger

import (
	"context"
	"errors"

	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// Service fronts the balance store with domain validation and error
// translation. Registry and proposal services consume this, never the store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Balance reports an account's current balance.
func (s *Service) Balance(ctx context.Context, account AccountID) (int64, error) {
	balance, err := s.store.Balance(ctx, account)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return balance, nil
}

// Deposit credits an account. Amounts must be positive; the ledger never
// mints negative value.
func (s *Service) Deposit(ctx context.Context, account AccountID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "deposit amount must be positive")
	}
	if err := s.store.Credit(ctx, account, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit account")
	}
	return nil
}

// ErrInsufficientFunds surfaces when a transfer cannot be covered at transfer
// time. The caller decides whether the authorizing state survives for retry.
var ErrInsufficientFunds = dErrors.New(dErrors.CodeConflict, "insufficient funds in treasury")

// Transfer moves amount between accounts atomically.
func (s *Service) Transfer(ctx context.Context, from, to AccountID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "transfer amount must be positive")
	}
	if err := s.store.Transfer(ctx, from, to, amount); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "transfer failed")
	}
	return nil
}
