package ledger

import "context"

// Store holds balances. Accounts spring into existence on first credit; the
// balance of an unknown account is zero.
//
// Transfer must be atomic: debit and credit both commit or neither is
// observable, and the debit must fail with sentinel.ErrInsufficientFunds when
// the source balance cannot cover the amount at transfer time.
type Store interface {
	Balance(ctx context.Context, account AccountID) (int64, error)
	Credit(ctx context.Context, account AccountID, amount int64) error
	Transfer(ctx context.Context, from, to AccountID, amount int64) error
}
