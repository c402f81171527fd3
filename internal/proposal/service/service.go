// Package service orchestrates the transfer proposal lifecycle: creation,
// voting, execution against the treasury, and cancellation. Every mutation
// runs under the proposal's entity lock so concurrent votes serialize into a
// deterministic tally.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/audit"
	"custodia/internal/ledger"
	"custodia/internal/platform/locker"
	proposalmetrics "custodia/internal/proposal/metrics"
	"custodia/internal/proposal/models"
	"custodia/internal/proposal/store"
	registrymodels "custodia/internal/registry/models"
	registrystore "custodia/internal/registry/store"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/platform/tx"
	"custodia/pkg/requestcontext"
)

// Lookup failures for unknown aggregates.
var (
	ErrProposalNotFound = dErrors.New(dErrors.CodeNotFound, "proposal not found")
	ErrRegistryNotFound = dErrors.New(dErrors.CodeNotFound, "registry not found")
)

// Service coordinates proposals against their registry's current membership.
// Membership and threshold are read at call time for every operation: votes
// already recorded survive membership changes, but a removed owner cannot
// cast new ones.
type Service struct {
	proposals  store.Store
	registries registrystore.Store
	treasury   *ledger.Service
	locks      locker.Locker
	txr        tx.Runner
	publisher  audit.Publisher
	metrics    *proposalmetrics.Metrics
	tracer     trace.Tracer
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithMetrics attaches the prometheus collectors.
func WithMetrics(m *proposalmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher attaches the audit sink.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTxRunner sets the unit-of-work runner. SQL-backed deployments pass a
// runner sharing the stores' database so Execute commits the fund movement
// and the proposal's final status together.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) { s.txr = r }
}

func New(proposals store.Store, registries registrystore.Store, treasury *ledger.Service, locks locker.Locker, opts ...Option) *Service {
	s := &Service{
		proposals:  proposals,
		registries: registries,
		treasury:   treasury,
		locks:      locks,
		txr:        tx.Passthrough{},
		tracer:     otel.Tracer("custodia/proposal"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockKey names the entity lock for a proposal.
func LockKey(key id.ProposalKey) string {
	return "proposal/" + key.String()
}

// Propose creates a transfer proposal. The proposer must be a current owner
// and approves implicitly; the sequence number is allocated atomically from
// the registry, so concurrent proposers never collide.
func (s *Service) Propose(ctx context.Context, registryID id.RegistryID, proposer, recipient id.PartyID, amount int64, memo string) (*models.Proposal, error) {
	ctx, span := s.tracer.Start(ctx, "proposal.Propose",
		trace.WithAttributes(attribute.String("registry.id", registryID.String())))
	defer span.End()
	start := time.Now()

	reg, err := s.loadRegistry(ctx, registryID)
	if err != nil {
		return nil, err
	}
	if !reg.IsOwner(proposer) {
		return nil, models.ErrCallerNotOwner
	}
	if err := models.ValidateTransfer(amount, memo); err != nil {
		return nil, err
	}

	seq, err := s.registries.AllocateSeq(ctx, registryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate proposal sequence")
	}

	key := id.ProposalKey{Registry: registryID, Seq: seq}
	p, err := models.NewProposal(key, proposer, recipient, amount, memo, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create proposal")
	}

	if err := s.emit(ctx, audit.Event{
		Action:   audit.ActionProposalCreated,
		Registry: registryID,
		Seq:      seq,
		Actor:    proposer,
		Subject:  recipient,
		Amount:   amount,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementProposalsCreated()
		s.metrics.IncrementVote(string(models.VoteApprove))
		s.metrics.ObserveOperation("propose", start)
	}
	return p, nil
}

// Get returns one proposal.
func (s *Service) Get(ctx context.Context, key id.ProposalKey) (*models.Proposal, error) {
	return s.loadProposal(ctx, key)
}

// List returns a registry's proposals in sequence order.
func (s *Service) List(ctx context.Context, registryID id.RegistryID) ([]*models.Proposal, error) {
	if _, err := s.loadRegistry(ctx, registryID); err != nil {
		return nil, err
	}
	proposals, err := s.proposals.ListByRegistry(ctx, registryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list proposals")
	}
	return proposals, nil
}

// Approve records an approval from a current owner. Reaching the threshold
// transitions the proposal to Approved; it does not execute it.
func (s *Service) Approve(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error) {
	var reachedQuorum bool
	p, err := s.vote(ctx, key, caller, "approve", func(p *models.Proposal, reg *registrymodels.Registry) ([]audit.Event, error) {
		var err error
		reachedQuorum, err = p.Approve(caller, reg.Threshold)
		if err != nil {
			return nil, err
		}
		return []audit.Event{{
			Action:   audit.ActionProposalApproved,
			Registry: key.Registry,
			Seq:      key.Seq,
			Actor:    caller,
			Detail:   string(p.Status),
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementVote(string(models.VoteApprove))
		if reachedQuorum {
			s.metrics.IncrementTransition(string(models.StatusApproved))
		}
	}
	return p, nil
}

// Reject records a rejection from a current owner, withdrawing any prior
// approval they cast. The proposal may regress from Approved to Pending or
// terminate as Rejected once quorum is unreachable.
func (s *Service) Reject(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error) {
	var transitioned models.Status
	p, err := s.vote(ctx, key, caller, "reject", func(p *models.Proposal, reg *registrymodels.Registry) ([]audit.Event, error) {
		before := p.Status
		after, err := p.Reject(caller, len(reg.Owners), reg.Threshold)
		if err != nil {
			return nil, err
		}
		if after != before {
			transitioned = after
		}
		return []audit.Event{{
			Action:   audit.ActionProposalRejected,
			Registry: key.Registry,
			Seq:      key.Seq,
			Actor:    caller,
			Detail:   string(after),
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementVote(string(models.VoteReject))
		if transitioned != "" {
			s.metrics.IncrementTransition(string(transitioned))
		}
	}
	return p, nil
}

// Execute moves the approved amount from the registry's treasury to the
// recipient. The quorum is re-validated against the current threshold, and
// the transfer checks funds at execution time: an underfunded treasury fails
// the call and leaves the proposal Approved for a later retry.
func (s *Service) Execute(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error) {
	ctx, span := s.tracer.Start(ctx, "proposal.Execute",
		trace.WithAttributes(attribute.String("proposal.key", key.String())))
	defer span.End()
	start := time.Now()

	release, err := s.locks.Acquire(ctx, LockKey(key))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire proposal lock")
	}
	defer release()

	p, err := s.loadProposal(ctx, key)
	if err != nil {
		return nil, err
	}
	reg, err := s.loadRegistry(ctx, key.Registry)
	if err != nil {
		return nil, err
	}
	if !reg.IsOwner(caller) {
		return nil, models.ErrCallerNotOwner
	}
	if err := p.CanExecute(reg.Threshold); err != nil {
		return nil, err
	}

	// The status write precedes the transfer and shares its unit of work, so
	// funds never move without Executed becoming durable alongside them: a
	// failed status write aborts before any money moves, and a retry after a
	// committed one stops at CanExecute instead of paying twice.
	treasury := ledger.TreasuryAccount(key.Registry)
	recipient := ledger.PartyAccount(p.Recipient)
	prev := p.Clone()
	p.ApplyExecute(requestcontext.Now(ctx))

	statusPersisted := false
	err = s.txr.InTx(ctx, func(txCtx context.Context) error {
		if err := s.proposals.Update(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist proposal")
		}
		statusPersisted = true
		return s.treasury.Transfer(txCtx, treasury, recipient, p.Amount)
	})
	if err != nil {
		if statusPersisted {
			// The transfer failed after the status write. A transactional
			// runner has already rolled the row back to Approved; stores
			// without rollback need the authorizing state restored so the
			// proposal stays retryable.
			if rerr := s.proposals.Update(ctx, prev); rerr != nil {
				return nil, dErrors.Wrap(rerr, dErrors.CodeInternal, "failed to restore proposal after transfer failure")
			}
		}
		return nil, err
	}

	if err := s.emit(ctx, audit.Event{
		Action:   audit.ActionProposalExecuted,
		Registry: key.Registry,
		Seq:      key.Seq,
		Actor:    caller,
		Subject:  p.Recipient,
		Amount:   p.Amount,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(models.StatusExecuted))
		s.metrics.AddExecutedAmount(p.Amount)
		s.metrics.ObserveOperation("execute", start)
	}
	return p, nil
}

// Cancel withdraws an open proposal. Only the proposer may cancel, whether
// or not they are still an owner.
func (s *Service) Cancel(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error) {
	ctx, span := s.tracer.Start(ctx, "proposal.Cancel",
		trace.WithAttributes(attribute.String("proposal.key", key.String())))
	defer span.End()
	start := time.Now()

	release, err := s.locks.Acquire(ctx, LockKey(key))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire proposal lock")
	}
	defer release()

	p, err := s.loadProposal(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := p.CanCancel(caller); err != nil {
		return nil, err
	}
	p.ApplyCancel()
	if err := s.proposals.Update(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist proposal")
	}

	if err := s.emit(ctx, audit.Event{
		Action:   audit.ActionProposalCancelled,
		Registry: key.Registry,
		Seq:      key.Seq,
		Actor:    caller,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(models.StatusCancelled))
		s.metrics.ObserveOperation("cancel", start)
	}
	return p, nil
}

// vote runs one voting mutation under the proposal lock: load the proposal
// and the registry's current membership, check the voter is a current owner,
// apply, persist, then emit the mutation's audit events.
func (s *Service) vote(ctx context.Context, key id.ProposalKey, caller id.PartyID, operation string, mutate func(*models.Proposal, *registrymodels.Registry) ([]audit.Event, error)) (*models.Proposal, error) {
	ctx, span := s.tracer.Start(ctx, "proposal."+operation,
		trace.WithAttributes(attribute.String("proposal.key", key.String())))
	defer span.End()
	start := time.Now()

	release, err := s.locks.Acquire(ctx, LockKey(key))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire proposal lock")
	}
	defer release()

	p, err := s.loadProposal(ctx, key)
	if err != nil {
		return nil, err
	}
	reg, err := s.loadRegistry(ctx, key.Registry)
	if err != nil {
		return nil, err
	}
	if !reg.IsOwner(caller) {
		return nil, models.ErrCallerNotOwner
	}

	events, err := mutate(p, reg)
	if err != nil {
		return nil, err
	}

	if err := s.proposals.Update(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist proposal")
	}
	for _, event := range events {
		if err := s.emit(ctx, event); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
	return p, nil
}

func (s *Service) loadProposal(ctx context.Context, key id.ProposalKey) (*models.Proposal, error) {
	p, err := s.proposals.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrProposalNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proposal")
	}
	return p, nil
}

func (s *Service) loadRegistry(ctx context.Context, registryID id.RegistryID) (*registrymodels.Registry, error) {
	reg, err := s.registries.FindByID(ctx, registryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrRegistryNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry")
	}
	return reg, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.publisher == nil {
		return nil
	}
	event.Timestamp = requestcontext.Now(ctx)
	if err := s.publisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}
