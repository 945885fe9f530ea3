package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hookbench/hookbench/internal/domain"
)

// MemoryEventStore is an in-memory EventStore implementation. Sequence
// assignment holds the per-store lock, mirroring the transactional
// assignment of the SQLite store.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]domain.Event // sessionID → events in seq order
}

// NewMemoryEventStore creates an in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string][]domain.Event)}
}

func (s *MemoryEventStore) Append(_ context.Context, ev *domain.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	// Same atomic check-and-append the SQLite store gets from its unique
	// delivery index: a concurrent same-key delivery that loses the race
	// becomes a duplicate marker.
	if ev.Webhook != nil && !ev.Webhook.Duplicate && ev.Webhook.DeliveryKey != "" {
		for i := range s.events[ev.SessionID] {
			wh := s.events[ev.SessionID][i].Webhook
			if wh != nil && !wh.Duplicate && wh.DeliveryKey == ev.Webhook.DeliveryKey {
				ev.Webhook.Duplicate = true
				ev.Webhook.DuplicateOf = s.events[ev.SessionID][i].ID
				break
			}
		}
	}

	ev.Seq = int64(len(s.events[ev.SessionID])) + 1
	s.events[ev.SessionID] = append(s.events[ev.SessionID], *ev)
	return ev.Seq, nil
}

func (s *MemoryEventStore) List(_ context.Context, sessionID string, sinceSeq int64, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, ev := range s.events[sessionID] {
		if ev.Seq <= sinceSeq {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryEventStore) FindWebhookByKey(_ context.Context, sessionID, deliveryKey string) (*domain.Event, error) {
	if deliveryKey == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ev := range s.events[sessionID] {
		if ev.Webhook != nil && !ev.Webhook.Duplicate && ev.Webhook.DeliveryKey == deliveryKey {
			found := ev
			return &found, nil
		}
	}
	return nil, nil
}

func (s *MemoryEventStore) Purge(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, sessionID)
	return nil
}

// MemorySessionStore is an in-memory SessionStore implementation.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *MemorySessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.Token] = &cp
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, token string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *MemorySessionStore) ListExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tokens []string
	for t, sess := range s.sessions {
		if sess.Expired(now) {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (s *MemorySessionStore) List(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out, nil
}

// MemoryRunStore is an in-memory RunStore implementation.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.Run
}

// NewMemoryRunStore creates an in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*domain.Run)}
}

func (s *MemoryRunStore) Save(_ context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.runs[r.ID] = &cp
	return nil
}

func (s *MemoryRunStore) Get(_ context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryRunStore) ListBySession(_ context.Context, sessionID string) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Run
	for _, r := range s.runs {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *MemoryRunStore) PurgeSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.runs {
		if r.SessionID == sessionID {
			delete(s.runs, id)
		}
	}
	return nil
}
