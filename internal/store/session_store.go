package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hookbench/hookbench/internal/domain"
)

// SQLiteSessionStore implements SessionStore backed by SQLite.
type SQLiteSessionStore struct {
	db *DB
}

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

// Create persists a new session record.
func (s *SQLiteSessionStore) Create(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO sessions (token, secret, created_at, expires_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.Token, sess.Secret,
		sess.CreatedAt.Format(time.RFC3339Nano),
		sess.ExpiresAt.Format(time.RFC3339Nano),
		sess.Status,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// Get returns a session by token, or domain.ErrSessionNotFound.
func (s *SQLiteSessionStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	var sess domain.Session
	var createdAt, expiresAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT token, secret, created_at, expires_at, status FROM sessions WHERE token = ?`,
		token,
	).Scan(&sess.Token, &sess.Secret, &createdAt, &expiresAt, &sess.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	return &sess, nil
}

// Delete removes a session row. Events, runs, and retry entries cascade.
func (s *SQLiteSessionStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListExpired returns tokens of sessions whose TTL elapsed before now.
func (s *SQLiteSessionStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT token FROM sessions WHERE expires_at <= ?`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired sessions: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// List returns all sessions ordered by creation time descending.
func (s *SQLiteSessionStore) List(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT token, secret, created_at, expires_at, status
		 FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		var createdAt, expiresAt string
		if err := rows.Scan(&sess.Token, &sess.Secret, &createdAt, &expiresAt, &sess.Status); err != nil {
			return nil, err
		}
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sess.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
