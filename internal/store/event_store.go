package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hookbench/hookbench/internal/domain"
)

// SQLiteEventStore implements EventStore backed by SQLite.
type SQLiteEventStore struct {
	db *DB
}

// NewSQLiteEventStore creates an event store using the given database.
func NewSQLiteEventStore(db *DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: db}
}

// eventPayload is the JSON stored in the payload column.
type eventPayload struct {
	Webhook *domain.WebhookEvent `json:"webhook,omitempty"`
	Trace   *domain.TraceEvent   `json:"trace,omitempty"`
}

// Append persists the event and assigns the next per-session sequence
// number. Sequence assignment and insert happen in one transaction, which
// is the only per-session serialization point on the ingest path.
//
// The unique delivery index is the backstop for concurrent retries of the
// same delivery: when a second writer loses the race, its event is
// demoted to a duplicate marker pointing at the row that won.
func (s *SQLiteEventStore) Append(ctx context.Context, ev *domain.Event) (int64, error) {
	if ev.SessionID == "" {
		return 0, errors.New("event has no session id")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	seq, err := s.insert(ctx, ev)
	if err == nil {
		ev.Seq = seq
		return seq, nil
	}

	if ev.Webhook == nil || ev.Webhook.Duplicate || ev.Webhook.DeliveryKey == "" ||
		!isDeliveryConflict(err) {
		return 0, err
	}

	orig, findErr := s.FindWebhookByKey(ctx, ev.SessionID, ev.Webhook.DeliveryKey)
	if findErr != nil {
		return 0, findErr
	}
	if orig == nil {
		return 0, err
	}
	ev.Webhook.Duplicate = true
	ev.Webhook.DuplicateOf = orig.ID

	seq, err = s.insert(ctx, ev)
	if err != nil {
		return 0, err
	}
	ev.Seq = seq
	return seq, nil
}

func (s *SQLiteEventStore) insert(ctx context.Context, ev *domain.Event) (int64, error) {
	payload, err := json.Marshal(eventPayload{Webhook: ev.Webhook, Trace: ev.Trace})
	if err != nil {
		return 0, fmt.Errorf("marshaling event payload: %w", err)
	}

	deliveryKey := ""
	duplicate := 0
	if ev.Webhook != nil {
		deliveryKey = ev.Webhook.DeliveryKey
		if ev.Webhook.Duplicate {
			duplicate = 1
		}
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE session_id = ?`,
		ev.SessionID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("assigning sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, session_id, seq, kind, timestamp, delivery_key, duplicate, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, seq, ev.Kind, ev.Timestamp.Format(time.RFC3339Nano),
		deliveryKey, duplicate, string(payload),
	); err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return seq, nil
}

// isDeliveryConflict reports whether err is a violation of the unique
// delivery index.
func isDeliveryConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "idx_events_delivery")
}

// List returns events with seq > sinceSeq in ascending order.
func (s *SQLiteEventStore) List(ctx context.Context, sessionID string, sinceSeq int64, limit int) ([]domain.Event, error) {
	q := `SELECT id, session_id, seq, kind, timestamp, payload
	      FROM events WHERE session_id = ? AND seq > ? ORDER BY seq ASC`
	args := []any{sessionID, sinceSeq}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// FindWebhookByKey returns the original webhook event for a delivery key.
func (s *SQLiteEventStore) FindWebhookByKey(ctx context.Context, sessionID, deliveryKey string) (*domain.Event, error) {
	if deliveryKey == "" {
		return nil, nil
	}
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, session_id, seq, kind, timestamp, payload
		 FROM events
		 WHERE session_id = ? AND delivery_key = ? AND duplicate = 0
		 ORDER BY seq ASC LIMIT 1`,
		sessionID, deliveryKey,
	)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Purge deletes all events for a session.
func (s *SQLiteEventStore) Purge(ctx context.Context, sessionID string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("purging events: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*domain.Event, error) {
	var ev domain.Event
	var ts, payload string
	if err := r.Scan(&ev.ID, &ev.SessionID, &ev.Seq, &ev.Kind, &ts, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning event: %w", err)
	}
	ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)

	var p eventPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling event payload: %w", err)
	}
	ev.Webhook = p.Webhook
	ev.Trace = p.Trace
	return &ev, nil
}
