package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into coded domain errors, so the
// engine's rule language never leaks SQL or cache details.
//
// These state facts about resources, not rule violations:
//   - ErrNotFound: the entity does not exist in the store
//   - ErrConflict: a uniqueness or concurrent-write conflict
//   - ErrInsufficientFunds: a balance cannot cover the requested debit
//   - ErrLockHeld: another process holds the entity lock
//   - ErrUnavailable: the backing resource is temporarily unreachable
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockHeld          = errors.New("lock held")
	ErrUnavailable       = errors.New("unavailable")
)
