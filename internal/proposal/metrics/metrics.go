// Package metrics provides observability for the proposal engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks proposal lifecycle counts, vote flow, and latencies.
type Metrics struct {
	ProposalsCreated  prometheus.Counter
	VotesRecorded     *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	ExecutedAmount    prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		ProposalsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_proposals_created_total",
			Help: "Total number of transfer proposals created",
		}),
		VotesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_proposal_votes_total",
			Help: "Votes recorded on proposals, by side",
		}, []string{"side"}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_proposal_status_transitions_total",
			Help: "Proposal status transitions, by resulting status",
		}, []string{"status"}),
		ExecutedAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_proposal_executed_amount_total",
			Help: "Total amount moved by executed proposals",
		}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_proposal_operation_duration_seconds",
			Help:    "Duration of proposal operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

// IncrementProposalsCreated records a successful proposal creation.
func (m *Metrics) IncrementProposalsCreated() {
	m.ProposalsCreated.Inc()
}

// IncrementVote records one recorded vote.
func (m *Metrics) IncrementVote(side string) {
	m.VotesRecorded.WithLabelValues(side).Inc()
}

// IncrementTransition records a status transition by its resulting status.
func (m *Metrics) IncrementTransition(status string) {
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// AddExecutedAmount records the amount moved by an executed proposal.
func (m *Metrics) AddExecutedAmount(amount int64) {
	m.ExecutedAmount.Add(float64(amount))
}

// ObserveOperation records the duration of one proposal operation. Call with
// time.Now() captured at the start.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
