// Package kafka delivers audit events to the durable topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"custodia/internal/audit"
	platformkafka "custodia/internal/platform/kafka"
)

// payload is the wire form of an audit event. Field names are part of the
// consumer contract; extend, never rename.
type payload struct {
	Category  string `json:"category"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	Registry  string `json:"registry"`
	Seq       uint64 `json:"seq,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Publisher serializes events and produces them keyed by registry.
type Publisher struct {
	producer *platformkafka.Producer
}

func NewPublisher(producer *platformkafka.Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(payload{
		Category:  string(audit.CategoryOf(event.Action)),
		Action:    string(event.Action),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Registry:  event.Registry.String(),
		Seq:       event.Seq,
		Actor:     event.Actor.String(),
		Subject:   event.Subject.String(),
		Amount:    event.Amount,
		Detail:    event.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return p.producer.Produce(ctx, event.Key(), body)
}
