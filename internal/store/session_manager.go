package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hookbench/hookbench/internal/domain"
	"github.com/hookbench/hookbench/internal/logging"
)

// SessionManager owns session identity, expiry, and cleanup. Expiry is
// driven by a background sweep plus a lazy check on every access, so no
// caller ever observes a logically-expired session as active.
type SessionManager struct {
	sessions SessionStore
	events   EventStore
	runs     RunStore
	ttl      time.Duration
	log      *logging.Logger
}

// NewSessionManager creates a session manager with a fixed TTL.
func NewSessionManager(sessions SessionStore, events EventStore, runs RunStore, ttl time.Duration, log *logging.Logger) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		events:   events,
		runs:     runs,
		ttl:      ttl,
		log:      log.Sub("sessions"),
	}
}

// Create generates a new session with a fresh token and fixed expiry.
func (m *SessionManager) Create(ctx context.Context) (*domain.Session, error) {
	sess := domain.NewSession(m.ttl)
	if err := m.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	m.log.Info().
		Str("session", short(sess.Token)).
		Time("expiresAt", sess.ExpiresAt).
		Msg("session created")
	return sess, nil
}

// Resolve returns the session for a token after the lazy expiry check.
// A logically-expired session is expired on the spot and reported as
// domain.ErrSessionNotFound.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := m.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Expired(time.Now()) {
		if err := m.Expire(ctx, token); err != nil {
			m.log.Error().Err(err).Msg("lazy expiry failed")
		}
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// IsActive reports whether a token resolves to an active session.
func (m *SessionManager) IsActive(ctx context.Context, token string) bool {
	_, err := m.Resolve(ctx, token)
	return err == nil
}

// Expire deletes a session and everything it owns: all events, runs, and
// retry entries. Idempotent; expiring an unknown token is a no-op.
func (m *SessionManager) Expire(ctx context.Context, token string) error {
	if err := m.events.Purge(ctx, token); err != nil {
		return fmt.Errorf("purging session events: %w", err)
	}
	if err := m.runs.PurgeSession(ctx, token); err != nil {
		return fmt.Errorf("purging session runs: %w", err)
	}
	if err := m.sessions.Delete(ctx, token); err != nil {
		return err
	}
	m.log.Debug().Str("session", short(token)).Msg("session expired")
	return nil
}

// Sweep expires every session whose TTL has elapsed and returns the count.
func (m *SessionManager) Sweep(ctx context.Context) (int, error) {
	tokens, err := m.sessions.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, token := range tokens {
		if err := m.Expire(ctx, token); err != nil {
			m.log.Error().Err(err).Str("session", short(token)).Msg("sweep expiry failed")
			continue
		}
		expired++
	}
	return expired, nil
}

// RunSweeper runs the background expiry sweep until the context ends.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				m.log.Info().Int("expired", n).Msg("session sweep")
			}
		}
	}
}

// ListAll returns every stored session, expired ones included.
func (m *SessionManager) ListAll(ctx context.Context) ([]domain.Session, error) {
	return m.sessions.List(ctx)
}

// TTL returns the fixed session lifetime.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

func short(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
