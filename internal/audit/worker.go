package audit

import (
	"context"
	"log/slog"
)

// inboxSize bounds the queue between request handling and the sink. Sized for
// bursts; a full inbox applies backpressure rather than dropping governance
// records.
const inboxSize = 256

// AsyncPublisher decouples event emission from sink latency. Emit enqueues;
// the Worker drains the inbox into the real publisher (typically Kafka).
type AsyncPublisher struct {
	inbox chan Event
}

func NewAsyncPublisher() *AsyncPublisher {
	return &AsyncPublisher{inbox: make(chan Event, inboxSize)}
}

func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Worker drains an AsyncPublisher's inbox into a delivery publisher.
type Worker struct {
	source *AsyncPublisher
	sink   Publisher
	logger *slog.Logger
}

func NewWorker(source *AsyncPublisher, sink Publisher, logger *slog.Logger) *Worker {
	return &Worker{source: source, sink: sink, logger: logger}
}

// Run delivers events until the context is cancelled. Delivery failures are
// logged and retried once; a second failure drops the event rather than
// stalling the whole trail.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.source.inbox:
			if err := w.sink.Emit(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "audit delivery failed, retrying",
					"action", event.Action, "registry", event.Registry.String(), "error", err.Error())
				if err := w.sink.Emit(ctx, event); err != nil {
					w.logger.ErrorContext(ctx, "audit delivery failed, dropping event",
						"action", event.Action, "registry", event.Registry.String(), "error", err.Error())
				}
			}
		}
	}
}
