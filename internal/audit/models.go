// Package audit captures the append-only event trail for registry governance
// and fund movement. Domain services emit events; sinks (memory store, Kafka)
// fan out behind the Publisher interface.
package audit

import (
	"time"

	id "custodia/pkg/domain"
)

// Category classifies events by their review audience.
type Category string

const (
	// CategoryGovernance covers membership and threshold changes. These are
	// the events a reviewer reads to reconstruct who controlled the treasury
	// at any point in time.
	CategoryGovernance Category = "governance"
	// CategoryVoting covers individual approvals, rejections and
	// cancellations on proposals.
	CategoryVoting Category = "voting"
	// CategoryTransfer covers actual fund movement: deposits and executed
	// proposals.
	CategoryTransfer Category = "transfer"
)

// Action names one auditable occurrence.
type Action string

const (
	ActionRegistryCreated  Action = "registry_created"
	ActionOwnerAdded       Action = "owner_added"
	ActionOwnerRemoved     Action = "owner_removed"
	ActionThresholdChanged Action = "threshold_changed"
	// ActionThresholdClamped records the automatic clamp applied when an
	// owner removal drops the owner count below the configured threshold.
	ActionThresholdClamped Action = "threshold_clamped"

	ActionProposalCreated   Action = "proposal_created"
	ActionProposalApproved  Action = "proposal_approved"
	ActionProposalRejected  Action = "proposal_rejected"
	ActionProposalCancelled Action = "proposal_cancelled"

	ActionTreasuryFunded   Action = "treasury_funded"
	ActionProposalExecuted Action = "proposal_executed"
)

var actionCategories = map[Action]Category{
	ActionRegistryCreated:  CategoryGovernance,
	ActionOwnerAdded:       CategoryGovernance,
	ActionOwnerRemoved:     CategoryGovernance,
	ActionThresholdChanged: CategoryGovernance,
	ActionThresholdClamped: CategoryGovernance,

	ActionProposalCreated:   CategoryVoting,
	ActionProposalApproved:  CategoryVoting,
	ActionProposalRejected:  CategoryVoting,
	ActionProposalCancelled: CategoryVoting,

	ActionTreasuryFunded:   CategoryTransfer,
	ActionProposalExecuted: CategoryTransfer,
}

// CategoryOf returns the category an action belongs to.
func CategoryOf(action Action) Category {
	if c, ok := actionCategories[action]; ok {
		return c
	}
	return CategoryGovernance
}

// Event is one audit record. Transport-agnostic on purpose: the Kafka sink
// serializes it, the memory sink holds it as-is.
type Event struct {
	Timestamp time.Time
	Action    Action
	Registry  id.RegistryID
	// Seq is the proposal sequence for voting/transfer events, zero for
	// registry-level events.
	Seq   uint64
	Actor id.PartyID
	// Subject is the party an action was applied to (added owner, recipient),
	// when different from the actor.
	Subject id.PartyID
	// Amount carries the value moved for transfer events.
	Amount int64
	// Detail holds action-specific context, e.g. "threshold 3 -> 2".
	Detail string
}

// Key returns the partitioning key for the event, keeping all events of one
// registry in order on the wire.
func (e Event) Key() string {
	return e.Registry.String()
}
