package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.MemoryEventStore) {
	t.Helper()
	events := store.NewMemoryEventStore()
	return NewHub(events, nil, logging.New(nil, "silent", "")), events
}

// appendEvents stores n webhook events for the session and returns them.
func appendEvents(t *testing.T, events *store.MemoryEventStore, sessionID string, n int) []domain.Event {
	t.Helper()
	out := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		ev := domain.Event{
			SessionID: sessionID,
			Kind:      domain.EventKindWebhook,
			Webhook:   &domain.WebhookEvent{Provider: "generic", Body: fmt.Sprintf(`{"n":%d}`, i)},
		}
		_, err := events.Append(context.Background(), &ev)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func recv(t *testing.T, obs *Observer) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-obs.Events():
		require.True(t, ok, "stream closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func expectClosed(t *testing.T, obs *Observer) {
	t.Helper()
	for {
		select {
		case _, ok := <-obs.Events():
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("stream never closed")
		}
	}
}

// --- Subscription tests ---

func TestSubscribe_BacklogThenLive(t *testing.T) {
	hub, events := newTestHub(t)
	appendEvents(t, events, "sess-1", 3)

	obs, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	defer obs.Close()

	for i := int64(1); i <= 3; i++ {
		assert.Equal(t, i, recv(t, obs).Seq)
	}

	live := appendEvents(t, events, "sess-1", 1)[0]
	hub.Publish(live)
	assert.Equal(t, int64(4), recv(t, obs).Seq)
}

func TestSubscribe_CursorSkipsSeenEvents(t *testing.T) {
	hub, events := newTestHub(t)
	appendEvents(t, events, "sess-1", 3)

	obs, err := hub.Subscribe(context.Background(), "sess-1", 2)
	require.NoError(t, err)
	defer obs.Close()

	assert.Equal(t, int64(3), recv(t, obs).Seq)
	select {
	case ev := <-obs.Events():
		t.Fatalf("unexpected event seq %d", ev.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_EmptyBacklog(t *testing.T) {
	hub, events := newTestHub(t)

	obs, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	defer obs.Close()

	live := appendEvents(t, events, "sess-1", 1)[0]
	hub.Publish(live)
	assert.Equal(t, int64(1), recv(t, obs).Seq)
}

func TestSubscribe_BacklogOverflowRejectsObserver(t *testing.T) {
	hub, events := newTestHub(t)
	hub.bufSize = 2
	appendEvents(t, events, "sess-1", 5)

	_, err := hub.Subscribe(context.Background(), "sess-1", 0)
	assert.ErrorIs(t, err, ErrObserverLagging)
}

// --- Publish tests ---

func TestPublish_AlreadySeenSequenceSkipped(t *testing.T) {
	hub, events := newTestHub(t)
	stored := appendEvents(t, events, "sess-1", 2)

	obs, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	defer obs.Close()

	recv(t, obs)
	recv(t, obs)

	// Re-publishing an event the observer already got from the backlog
	// must not deliver it twice.
	hub.Publish(stored[1])
	select {
	case ev := <-obs.Events():
		t.Fatalf("duplicate delivery of seq %d", ev.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_OnlyMatchingSessionReceives(t *testing.T) {
	hub, events := newTestHub(t)

	obsA, err := hub.Subscribe(context.Background(), "sess-a", 0)
	require.NoError(t, err)
	defer obsA.Close()
	obsB, err := hub.Subscribe(context.Background(), "sess-b", 0)
	require.NoError(t, err)
	defer obsB.Close()

	ev := appendEvents(t, events, "sess-a", 1)[0]
	hub.Publish(ev)

	assert.Equal(t, "sess-a", recv(t, obsA).SessionID)
	select {
	case got := <-obsB.Events():
		t.Fatalf("cross-session delivery: %s", got.SessionID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_SlowObserverDropped(t *testing.T) {
	hub, events := newTestHub(t)
	hub.bufSize = 2

	obs, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)

	// Fill the buffer without reading, then push one more.
	for _, ev := range appendEvents(t, events, "sess-1", 3) {
		hub.Publish(ev)
	}

	// The two buffered events drain, then the stream closes.
	assert.Equal(t, int64(1), recv(t, obs).Seq)
	assert.Equal(t, int64(2), recv(t, obs).Seq)
	expectClosed(t, obs)
}

func TestPublish_AfterObserverClosed(t *testing.T) {
	hub, events := newTestHub(t)

	obs, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	obs.Close()
	expectClosed(t, obs)

	// No panic, no delivery.
	hub.Publish(appendEvents(t, events, "sess-1", 1)[0])
}

// --- Session teardown tests ---

func TestCloseSession_ClosesAllObservers(t *testing.T) {
	hub, _ := newTestHub(t)

	obs1, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	obs2, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	other, err := hub.Subscribe(context.Background(), "sess-2", 0)
	require.NoError(t, err)
	defer other.Close()

	hub.CloseSession("sess-1")

	expectClosed(t, obs1)
	expectClosed(t, obs2)

	select {
	case _, ok := <-other.Events():
		require.True(t, ok, "unrelated session observer was closed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClose_Idempotent(t *testing.T) {
	hub, _ := newTestHub(t)

	obs, err := hub.Subscribe(context.Background(), "sess-1", 0)
	require.NoError(t, err)

	obs.Close()
	obs.Close()
	expectClosed(t, obs)
}
