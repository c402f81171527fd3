package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodia/pkg/domain"
)

// flakySink fails the first n Emit calls, then delivers into a MemoryStore.
type flakySink struct {
	mu        sync.Mutex
	failures  int
	delivered []Event
}

func (f *flakySink) Emit(_ context.Context, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("sink down")
	}
	f.delivered = append(f.delivered, event)
	return nil
}

func (f *flakySink) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.delivered...)
}

func runWorker(t *testing.T, sink Publisher) (*AsyncPublisher, func()) {
	t.Helper()
	async := NewAsyncPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewWorker(async, sink, slog.New(slog.DiscardHandler)).Run(ctx)
	}()
	return async, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerDelivers(t *testing.T) {
	sink := &flakySink{}
	async, stop := runWorker(t, sink)
	defer stop()

	event := Event{Action: ActionOwnerAdded, Registry: id.NewRegistryID()}
	require.NoError(t, async.Emit(context.Background(), event))

	waitFor(t, func() bool { return len(sink.events()) == 1 })
	assert.Equal(t, ActionOwnerAdded, sink.events()[0].Action)
}

func TestWorkerRetriesOnce(t *testing.T) {
	sink := &flakySink{failures: 1}
	async, stop := runWorker(t, sink)
	defer stop()

	require.NoError(t, async.Emit(context.Background(), Event{Action: ActionProposalApproved, Registry: id.NewRegistryID()}))

	waitFor(t, func() bool { return len(sink.events()) == 1 })
}

func TestWorkerDropsAfterSecondFailure(t *testing.T) {
	sink := &flakySink{failures: 2}
	async, stop := runWorker(t, sink)
	defer stop()

	first := Event{Action: ActionProposalApproved, Registry: id.NewRegistryID()}
	second := Event{Action: ActionProposalRejected, Registry: id.NewRegistryID()}
	require.NoError(t, async.Emit(context.Background(), first))
	require.NoError(t, async.Emit(context.Background(), second))

	// The first event burns both attempts and is dropped; the second lands.
	waitFor(t, func() bool { return len(sink.events()) == 1 })
	assert.Equal(t, ActionProposalRejected, sink.events()[0].Action)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryGovernance, CategoryOf(ActionThresholdClamped))
	assert.Equal(t, CategoryVoting, CategoryOf(ActionProposalCancelled))
	assert.Equal(t, CategoryTransfer, CategoryOf(ActionProposalExecuted))
	assert.Equal(t, CategoryGovernance, CategoryOf(Action("unknown")))
}
