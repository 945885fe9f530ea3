package store

import (
	"context"
	"time"

	"github.com/hookbench/hookbench/internal/domain"
)

// EventStore is the append-only, per-session ordered event log. Append
// assigns the next sequence number atomically per session: numbers are
// strictly increasing and gap-free, and no two events in a session ever
// share one.
type EventStore interface {
	// Append persists the event, assigns its sequence number, and returns
	// it. The event survives a crash of the store process once Append
	// returns nil.
	Append(ctx context.Context, ev *domain.Event) (int64, error)

	// List returns events with seq > sinceSeq in ascending sequence
	// order, at most limit (0 means no limit). The caller passes the last
	// seen sequence number as a restartable cursor.
	List(ctx context.Context, sessionID string, sinceSeq int64, limit int) ([]domain.Event, error)

	// FindWebhookByKey returns the original (non-duplicate) webhook event
	// with the given delivery key, or nil if none exists.
	FindWebhookByKey(ctx context.Context, sessionID, deliveryKey string) (*domain.Event, error)

	// Purge deletes all events for a session.
	Purge(ctx context.Context, sessionID string) error
}

// SessionStore persists session records.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
	List(ctx context.Context) ([]domain.Session, error)
}

// RunStore persists run records.
type RunStore interface {
	Save(ctx context.Context, r *domain.Run) error
	Get(ctx context.Context, id string) (*domain.Run, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.Run, error)
	PurgeSession(ctx context.Context, sessionID string) error
}

// RetryEntry is one durable retry-queue entry for a failed non-critical
// notification step.
type RetryEntry struct {
	ID            int64
	SessionID     string
	RunID         string
	StepID        string
	API           string
	Operation     string
	Inputs        map[string]string
	BaseURL       string
	APIKey        string
	Attempts      int
	NextAttemptAt time.Time
}

// RetryQueue persists retry entries for failed non-critical steps.
type RetryQueue interface {
	Enqueue(ctx context.Context, e *RetryEntry) error
	Due(ctx context.Context, now time.Time, limit int) ([]RetryEntry, error)
	// Reschedule bumps the attempt count and next attempt time; entries
	// past maxAttempts are removed instead.
	Reschedule(ctx context.Context, id int64, next time.Time, maxAttempts int) error
	Remove(ctx context.Context, id int64) error
}
