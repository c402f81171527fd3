// Package ledger implements the controlled-balance collaborator: the shared
// treasury each registry's owners govern, plus recipient accounts. The engine
// treats approval tallies as logical authorization only; the ledger is where
// funds actually move, atomically, with the balance re-checked at transfer
// time.
package ledger

import (
	id "custodia/pkg/domain"
)

// AccountID addresses one balance. Treasury accounts derive from registry
// ids, recipient accounts from party addresses; the prefixes keep the two
// keyspaces from colliding.
type AccountID string

// TreasuryAccount returns the account holding a registry's pooled funds.
func TreasuryAccount(registryID id.RegistryID) AccountID {
	return AccountID("treasury:" + registryID.String())
}

// PartyAccount returns the account owned by an external party.
func PartyAccount(party id.PartyID) AccountID {
	return AccountID("party:" + party.String())
}

func (a AccountID) String() string {
	return string(a)
}
