// Package domain defines the typed identifiers shared across contexts.
//
// Registry ids are UUIDs minted by this service. Party ids are opaque
// ledger-native address tokens: the service never inspects their structure
// beyond basic shape validation at trust boundaries. Typed wrappers keep the
// compiler from letting one kind of id flow into a slot meant for another.
package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// RegistryID identifies one owner registry and its treasury.
type RegistryID uuid.UUID

// ParseRegistryID parses a registry id from its string form. Empty, malformed
// and nil UUIDs are rejected so stores never see an ambiguous key.
func ParseRegistryID(s string) (RegistryID, error) {
	if s == "" {
		return RegistryID{}, dErrors.New(dErrors.CodeInvalidInput, "registry id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return RegistryID{}, dErrors.New(dErrors.CodeInvalidInput, "registry id must be a valid UUID")
	}
	if u == uuid.Nil {
		return RegistryID{}, dErrors.New(dErrors.CodeInvalidInput, "registry id must not be the nil UUID")
	}
	return RegistryID(u), nil
}

// NewRegistryID mints a fresh registry id.
func NewRegistryID() RegistryID {
	return RegistryID(uuid.New())
}

func (id RegistryID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id RegistryID) String() string {
	return uuid.UUID(id).String()
}

// maxPartyIDLength bounds address tokens. Ledger-native addresses in the
// systems we bridge to are at most 64 characters.
const maxPartyIDLength = 64

// PartyID is an authenticated party's opaque address token.
type PartyID string

// ParsePartyID validates the shape of an address token at a trust boundary.
func ParsePartyID(s string) (PartyID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "party id is required")
	}
	if len(s) > maxPartyIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("party id must be at most %d characters", maxPartyIDLength))
	}
	for _, r := range s {
		if r <= ' ' || r > '~' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "party id contains invalid characters")
		}
	}
	return PartyID(s), nil
}

func (p PartyID) String() string {
	return string(p)
}

// ProposalKey is a proposal's composite identity: the owning registry plus a
// per-registry monotonic sequence number. Sequence numbers are never reused.
type ProposalKey struct {
	Registry RegistryID
	Seq      uint64
}

func (k ProposalKey) String() string {
	return k.Registry.String() + "/" + strconv.FormatUint(k.Seq, 10)
}

// ParseProposalKey parses the "registryID/seq" form produced by String.
func ParseProposalKey(s string) (ProposalKey, error) {
	idx := strings.LastIndexByte(s, '/')
	if idx < 0 {
		return ProposalKey{}, dErrors.New(dErrors.CodeInvalidInput, "proposal key must be registryID/seq")
	}
	registryID, err := ParseRegistryID(s[:idx])
	if err != nil {
		return ProposalKey{}, err
	}
	seq, err := strconv.ParseUint(s[idx+1:], 10, 64)
	if err != nil {
		return ProposalKey{}, dErrors.New(dErrors.CodeInvalidInput, "proposal sequence must be a non-negative integer")
	}
	return ProposalKey{Registry: registryID, Seq: seq}, nil
}
