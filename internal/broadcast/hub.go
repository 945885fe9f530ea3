// Package broadcast fans session events out to live observers. An
// observer subscribes from a sequence cursor, receives the stored
// backlog first, then the live continuation, with no gap between the
// two even when events arrive mid-subscribe. Observers that stop
// reading are dropped rather than allowed to stall the publish path.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/logging"
	"github.com/hookbench/hookbench/internal/metrics"
	"github.com/hookbench/hookbench/internal/store"
)

// DefaultBuffer is the per-observer channel capacity.
const DefaultBuffer = 256

// ErrObserverLagging means the observer's buffer overflowed before the
// backlog replay finished.
var ErrObserverLagging = errors.New("observer fell behind during backlog replay")

// Hub routes appended events to the observers of their session.
type Hub struct {
	events  store.EventStore
	metrics *metrics.Metrics
	log     *logging.Logger
	bufSize int

	mu       sync.Mutex
	sessions map[string]map[*Observer]struct{}
}

// NewHub creates a hub reading backlogs from events. m may be nil.
func NewHub(events store.EventStore, m *metrics.Metrics, log *logging.Logger) *Hub {
	return &Hub{
		events:   events,
		metrics:  m,
		log:      log.Sub("broadcast"),
		bufSize:  DefaultBuffer,
		sessions: make(map[string]map[*Observer]struct{}),
	}
}

// Observer is one subscription to a session's event stream.
type Observer struct {
	hub       *Hub
	sessionID string
	ch        chan domain.Event

	// Guarded by hub.mu.
	lastSeq    int64
	catchingUp bool
	pending    []domain.Event
	closed     bool
}

// Events returns the stream. The channel is closed when the observer is
// dropped or closed; a drop means the observer fell behind and must
// resubscribe from its last seen cursor.
func (o *Observer) Events() <-chan domain.Event { return o.ch }

// Close unsubscribes the observer.
func (o *Observer) Close() {
	o.hub.remove(o, false)
}

// Subscribe registers an observer at the given cursor. The observer is
// attached before the backlog read, so events appended during the read
// are parked and replayed after it, deduplicated by sequence number.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, sinceSeq int64) (*Observer, error) {
	obs := &Observer{
		hub:        h,
		sessionID:  sessionID,
		ch:         make(chan domain.Event, h.bufSize),
		lastSeq:    sinceSeq,
		catchingUp: true,
	}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Observer]struct{})
	}
	h.sessions[sessionID][obs] = struct{}{}
	h.mu.Unlock()
	h.metrics.ObserverConnected()

	backlog, err := h.events.List(ctx, sessionID, sinceSeq, 0)
	if err != nil {
		h.remove(obs, false)
		return nil, err
	}

	h.mu.Lock()
	ok := true
	for _, ev := range backlog {
		if ev.Seq > obs.lastSeq {
			if ok = h.push(obs, ev); !ok {
				break
			}
		}
	}
	if ok {
		for _, ev := range obs.pending {
			if ev.Seq > obs.lastSeq {
				if ok = h.push(obs, ev); !ok {
					break
				}
			}
		}
	}
	obs.pending = nil
	obs.catchingUp = false
	h.mu.Unlock()

	if !ok {
		h.remove(obs, true)
		return nil, ErrObserverLagging
	}

	h.log.Debug().Str("session", shortToken(sessionID)).Int64("cursor", sinceSeq).
		Int("backlog", len(backlog)).Msg("observer subscribed")
	return obs, nil
}

// Publish delivers an event to every observer of its session. Delivery
// never blocks: an observer whose buffer is full is dropped.
func (h *Hub) Publish(ev domain.Event) {
	h.mu.Lock()
	var dropped []*Observer
	for obs := range h.sessions[ev.SessionID] {
		if obs.catchingUp {
			obs.pending = append(obs.pending, ev)
			continue
		}
		if ev.Seq <= obs.lastSeq {
			continue
		}
		if !h.push(obs, ev) {
			dropped = append(dropped, obs)
		}
	}
	h.mu.Unlock()

	for _, obs := range dropped {
		h.remove(obs, true)
	}
}

// CloseSession drops every observer of a session, used when the session
// expires.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	observers := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for obs := range observers {
		h.finalize(obs, false)
	}
}

// push sends without blocking. Caller holds h.mu.
func (h *Hub) push(obs *Observer, ev domain.Event) bool {
	select {
	case obs.ch <- ev:
		obs.lastSeq = ev.Seq
		return true
	default:
		return false
	}
}

func (h *Hub) remove(obs *Observer, droppedBehind bool) {
	h.mu.Lock()
	if observers, ok := h.sessions[obs.sessionID]; ok {
		delete(observers, obs)
		if len(observers) == 0 {
			delete(h.sessions, obs.sessionID)
		}
	}
	h.mu.Unlock()
	h.finalize(obs, droppedBehind)
}

func (h *Hub) finalize(obs *Observer, droppedBehind bool) {
	h.mu.Lock()
	if obs.closed {
		h.mu.Unlock()
		return
	}
	obs.closed = true
	close(obs.ch)
	h.mu.Unlock()

	h.metrics.ObserverDisconnected()
	if droppedBehind {
		h.metrics.ObserverDropped()
		h.log.Warn().Str("session", shortToken(obs.sessionID)).
			Int64("lastSeq", obs.lastSeq).Msg("slow observer dropped")
	}
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
