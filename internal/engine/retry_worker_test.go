package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/executor"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/store"
)

// recordingQueue serves a fixed due list and records queue mutations.
type recordingQueue struct {
	mu          sync.Mutex
	due         []store.RetryEntry
	removed     []int64
	rescheduled []int64
}

func (q *recordingQueue) Enqueue(_ context.Context, e *store.RetryEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.due = append(q.due, *e)
	return nil
}

func (q *recordingQueue) Due(context.Context, time.Time, int) ([]store.RetryEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]store.RetryEntry, len(q.due))
	copy(out, q.due)
	return out, nil
}

func (q *recordingQueue) Reschedule(_ context.Context, id int64, _ time.Time, _ int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rescheduled = append(q.rescheduled, id)
	return nil
}

func (q *recordingQueue) Remove(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, id)
	return nil
}

func retryEntry() store.RetryEntry {
	return store.RetryEntry{
		ID:        7,
		SessionID: "sess-1",
		RunID:     "run-1",
		StepID:    "notify",
		API:       "email",
		Operation: "send",
		Inputs:    map[string]string{"to": "ops@example.com"},
		BaseURL:   "https://mail.test",
		APIKey:    "mk",
	}
}

// --- Retry worker tests ---

func TestRetryWorker_DeliverySucceedsEntryRemoved(t *testing.T) {
	queue := &recordingQueue{due: []store.RetryEntry{retryEntry()}}
	exec := executor.NewMockExecutor()
	events := store.NewMemoryEventStore()

	w := NewRetryWorker(queue, exec, events, nil, nil,
		logging.New(nil, "silent", ""), time.Minute, time.Second, 5)
	w.drain(context.Background())

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "send", calls[0].Operation)
	assert.Equal(t, "email", calls[0].Step.API)
	assert.Equal(t, "ops@example.com", calls[0].Inputs["to"])
	assert.Equal(t, "https://mail.test", calls[0].Cred.BaseURL)
	assert.Equal(t, "mk", calls[0].Cred.APIKey)

	assert.Equal(t, []int64{7}, queue.removed)
	assert.Empty(t, queue.rescheduled)

	stored, err := events.List(context.Background(), "sess-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.EventKindTrace, stored[0].Kind)
	assert.True(t, stored[0].Trace.OK)
	assert.Equal(t, "run-1", stored[0].Trace.RunID)
}

func TestRetryWorker_DeliveryFailsEntryRescheduled(t *testing.T) {
	queue := &recordingQueue{due: []store.RetryEntry{retryEntry()}}
	exec := executor.NewMockExecutor()
	exec.Handlers["send"] = func(_ context.Context, _ executor.Call) (*executor.Result, error) {
		return &executor.Result{Status: 503}, errors.New("still down")
	}
	events := store.NewMemoryEventStore()

	w := NewRetryWorker(queue, exec, events, nil, nil,
		logging.New(nil, "silent", ""), time.Minute, time.Second, 5)
	w.drain(context.Background())

	assert.Empty(t, queue.removed)
	assert.Equal(t, []int64{7}, queue.rescheduled)

	stored, err := events.List(context.Background(), "sess-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Trace.OK)
	assert.Equal(t, 503, stored[0].Trace.Status)
}

func TestRetryWorker_PublishesRetryTraces(t *testing.T) {
	queue := &recordingQueue{due: []store.RetryEntry{retryEntry()}}
	exec := executor.NewMockExecutor()
	events := store.NewMemoryEventStore()

	var mu sync.Mutex
	var published []domain.Event
	notify := broadcasterFunc(func(ev domain.Event) {
		mu.Lock()
		published = append(published, ev)
		mu.Unlock()
	})

	w := NewRetryWorker(queue, exec, events, notify, nil,
		logging.New(nil, "silent", ""), time.Minute, time.Second, 5)
	w.drain(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, published, 1)
	assert.Equal(t, domain.EventKindTrace, published[0].Kind)
}
