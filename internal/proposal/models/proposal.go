// Package models holds the transfer proposal aggregate and its vote-driven
// state machine.
package models

import (
	"time"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// MaxMemoLength bounds the free-text memo attached to a proposal.
const MaxMemoLength = 256

// Vote is one owner's recorded position. Modeling votes as a map from party
// to a tagged value makes "a party is never on both sides" structural instead
// of a convention two sets would have to maintain.
type Vote string

const (
	VoteApprove Vote = "approve"
	VoteReject  Vote = "reject"
)

// Status is the proposal lifecycle state.
//
//	Pending -> Approved   (approvals reach threshold)
//	Pending -> Rejected   (quorum becomes unreachable)
//	Pending -> Cancelled  (proposer withdraws)
//	Approved -> Pending   (an approver switches sides and the tally drops)
//	Approved -> Rejected  (quorum becomes unreachable)
//	Approved -> Executed  (funds moved)
//	Approved -> Cancelled (proposer withdraws)
//
// Executed, Rejected and Cancelled are terminal; a proposal never returns to
// Pending by any path other than the explicit side-switch regression, and
// transitions are driven solely by vote tallies, never by time.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transition.
func (s Status) IsTerminal() bool {
	return s == StatusExecuted || s == StatusRejected || s == StatusCancelled
}

// Specific failure kinds for the voting protocol.
var (
	ErrInvalidAmount   = dErrors.New(dErrors.CodeValidation, "transfer amount must be positive")
	ErrMemoTooLong     = dErrors.New(dErrors.CodeValidation, "memo must be at most 256 characters")
	ErrCallerNotOwner  = dErrors.New(dErrors.CodeForbidden, "caller is not a current owner of this registry")
	ErrNotProposer     = dErrors.New(dErrors.CodeForbidden, "only the proposer may cancel a proposal")
	ErrAlreadyApproved = dErrors.New(dErrors.CodeConflict, "owner has already approved this proposal")
	ErrAlreadyRejected = dErrors.New(dErrors.CodeConflict, "owner has already rejected this proposal")
	ErrNotPending      = dErrors.New(dErrors.CodeConflict, "proposal is no longer open for approval")
	ErrNotOpen         = dErrors.New(dErrors.CodeConflict, "proposal is in a terminal status")
	ErrNotApproved     = dErrors.New(dErrors.CodeConflict, "proposal is not approved for execution")
	ErrQuorumNotMet    = dErrors.New(dErrors.CodeConflict, "approval tally no longer meets the threshold")
	ErrProposalExists  = dErrors.New(dErrors.CodeConflict, "proposal already exists")
)

// Proposal is one transfer awaiting quorum. It references its registry by id
// only: the registry keeps no back-pointers, and a proposal stays inspectable
// after the registry's membership changes.
type Proposal struct {
	Registry  id.RegistryID
	Seq       uint64
	Proposer  id.PartyID
	Recipient id.PartyID
	Amount    int64
	Memo      string
	Votes     map[id.PartyID]Vote
	Status    Status
	CreatedAt time.Time
	// ExecutedAt is set exactly once, on the transition to Executed.
	ExecutedAt *time.Time
}

// ValidateTransfer checks the transfer inputs. Exposed so callers can reject
// bad input before paying for a sequence allocation.
func ValidateTransfer(amount int64, memo string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if len(memo) > MaxMemoLength {
		return ErrMemoTooLong
	}
	return nil
}

// NewProposal validates inputs and creates a pending proposal. The proposer's
// approval is recorded implicitly; the tally check itself first runs on the
// next vote, so even a 1-of-N registry sees the proposal enter Pending.
func NewProposal(key id.ProposalKey, proposer, recipient id.PartyID, amount int64, memo string, now time.Time) (*Proposal, error) {
	if err := ValidateTransfer(amount, memo); err != nil {
		return nil, err
	}
	return &Proposal{
		Registry:  key.Registry,
		Seq:       key.Seq,
		Proposer:  proposer,
		Recipient: recipient,
		Amount:    amount,
		Memo:      memo,
		Votes:     map[id.PartyID]Vote{proposer: VoteApprove},
		Status:    StatusPending,
		CreatedAt: now,
	}, nil
}

// Key returns the proposal's composite identity.
func (p *Proposal) Key() id.ProposalKey {
	return id.ProposalKey{Registry: p.Registry, Seq: p.Seq}
}

// Approvals counts recorded approvals.
func (p *Proposal) Approvals() int {
	return p.count(VoteApprove)
}

// Rejections counts recorded rejections.
func (p *Proposal) Rejections() int {
	return p.count(VoteReject)
}

func (p *Proposal) count(v Vote) int {
	n := 0
	for _, vote := range p.Votes {
		if vote == v {
			n++
		}
	}
	return n
}

// Approvers returns the parties currently on the approve side. Order is not
// defined.
func (p *Proposal) Approvers() []id.PartyID {
	return p.side(VoteApprove)
}

// Rejecters returns the parties currently on the reject side.
func (p *Proposal) Rejecters() []id.PartyID {
	return p.side(VoteReject)
}

func (p *Proposal) side(v Vote) []id.PartyID {
	var out []id.PartyID
	for party, vote := range p.Votes {
		if vote == v {
			out = append(out, party)
		}
	}
	return out
}

// CanApprove checks an approval without applying it. Approval is only open
// while Pending: an already-approved proposal needs no further votes, and
// terminal proposals are immutable.
func (p *Proposal) CanApprove(owner id.PartyID) error {
	if p.Status != StatusPending {
		return ErrNotPending
	}
	switch p.Votes[owner] {
	case VoteApprove:
		return ErrAlreadyApproved
	case VoteReject:
		return ErrAlreadyRejected
	}
	return nil
}

// ApplyApprove records the approval and transitions to Approved once the
// tally reaches the threshold. Returns true on that transition.
func (p *Proposal) ApplyApprove(owner id.PartyID, threshold int) (reachedQuorum bool) {
	p.Votes[owner] = VoteApprove
	if p.Approvals() >= threshold {
		p.Status = StatusApproved
		return true
	}
	return false
}

// Approve validates and applies in one call.
func (p *Proposal) Approve(owner id.PartyID, threshold int) (reachedQuorum bool, err error) {
	if err := p.CanApprove(owner); err != nil {
		return false, err
	}
	return p.ApplyApprove(owner, threshold), nil
}

// CanReject checks a rejection without applying it. Rejection stays open
// through Approved: a quorum that has not executed yet can still be pulled
// back.
func (p *Proposal) CanReject(owner id.PartyID) error {
	if p.Status != StatusPending && p.Status != StatusApproved {
		return ErrNotOpen
	}
	if p.Votes[owner] == VoteReject {
		return ErrAlreadyRejected
	}
	return nil
}

// ApplyReject records the rejection — overriding the same owner's prior
// approval, the only way an approval is ever withdrawn — and recomputes the
// status:
//
//   - quorum unreachable (owners - rejections < threshold): Rejected, a
//     terminal fail-fast instead of pending forever;
//   - tally below threshold: Pending, the regression path that pulls an
//     Approved proposal back;
//   - otherwise the status stands.
func (p *Proposal) ApplyReject(owner id.PartyID, ownerCount, threshold int) Status {
	p.Votes[owner] = VoteReject

	maxPossibleApprovals := ownerCount - p.Rejections()
	switch {
	case maxPossibleApprovals < threshold:
		p.Status = StatusRejected
	case p.Approvals() < threshold:
		p.Status = StatusPending
	}
	return p.Status
}

// Reject validates and applies in one call.
func (p *Proposal) Reject(owner id.PartyID, ownerCount, threshold int) (Status, error) {
	if err := p.CanReject(owner); err != nil {
		return p.Status, err
	}
	return p.ApplyReject(owner, ownerCount, threshold), nil
}

// CanExecute checks that the proposal is executable against the current
// threshold. The tally is re-validated here rather than trusted from the
// earlier Approved marking, so a threshold raised mid-flight blocks
// execution until the tally catches up.
func (p *Proposal) CanExecute(threshold int) error {
	if p.Status != StatusApproved {
		return ErrNotApproved
	}
	if p.Approvals() < threshold {
		return ErrQuorumNotMet
	}
	return nil
}

// ApplyExecute marks the proposal executed. Callers move the funds first;
// this runs only after the transfer committed.
func (p *Proposal) ApplyExecute(now time.Time) {
	p.Status = StatusExecuted
	p.ExecutedAt = &now
}

// CanCancel checks a cancellation. Only the proposer may cancel, and only
// while the proposal is still open.
func (p *Proposal) CanCancel(caller id.PartyID) error {
	if caller != p.Proposer {
		return ErrNotProposer
	}
	if p.Status != StatusPending && p.Status != StatusApproved {
		return ErrNotOpen
	}
	return nil
}

// ApplyCancel marks the proposal cancelled.
func (p *Proposal) ApplyCancel() {
	p.Status = StatusCancelled
}

// Clone returns an independent copy so stores never alias caller state.
func (p *Proposal) Clone() *Proposal {
	cp := *p
	cp.Votes = make(map[id.PartyID]Vote, len(p.Votes))
	for party, vote := range p.Votes {
		cp.Votes[party] = vote
	}
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		cp.ExecutedAt = &t
	}
	return &cp
}
