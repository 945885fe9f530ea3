package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hookbench/hookbench/internal/domain"
)

// SQLiteRunStore implements RunStore backed by SQLite. The full run record
// is stored as JSON alongside indexed columns; the event log remains the
// source of truth and DeriveRunState can rebuild the state from it.
type SQLiteRunStore struct {
	db *DB
}

// NewSQLiteRunStore creates a run store using the given database.
func NewSQLiteRunStore(db *DB) *SQLiteRunStore {
	return &SQLiteRunStore{db: db}
}

// Save upserts a run record.
func (s *SQLiteRunStore) Save(ctx context.Context, r *domain.Run) error {
	record, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	var finished sql.NullString
	if r.FinishedAt != nil {
		finished = sql.NullString{String: r.FinishedAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, plan_id, state, started_at, finished_at, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			finished_at = excluded.finished_at,
			record = excluded.record`,
		r.ID, r.SessionID, r.PlanID, r.State,
		r.StartedAt.Format(time.RFC3339Nano), finished, string(record),
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// Get returns a run by id, or domain.ErrRunNotFound.
func (s *SQLiteRunStore) Get(ctx context.Context, id string) (*domain.Run, error) {
	var record string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT record FROM runs WHERE id = ?`, id,
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}

	var r domain.Run
	if err := json.Unmarshal([]byte(record), &r); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &r, nil
}

// ListBySession returns runs for a session ordered by start time.
func (s *SQLiteRunStore) ListBySession(ctx context.Context, sessionID string) ([]domain.Run, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT record FROM runs WHERE session_id = ? ORDER BY started_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var r domain.Run
		if err := json.Unmarshal([]byte(record), &r); err != nil {
			return nil, fmt.Errorf("unmarshaling run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PurgeSession deletes all runs for a session.
func (s *SQLiteRunStore) PurgeSession(ctx context.Context, sessionID string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM runs WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("purging runs: %w", err)
	}
	return nil
}

// DeriveRunState replays a session's trace events and reconstructs the
// state of the given run. The event log alone is enough to answer "what
// happened to this run", which keeps the store the single source of truth.
func DeriveRunState(events []domain.Event, runID string) string {
	state := domain.RunPending
	sawStep := false
	criticalFailed := false
	compensationFailed := false
	sawCompensation := false

	for _, ev := range events {
		if ev.Kind != domain.EventKindTrace || ev.Trace == nil || ev.Trace.RunID != runID {
			continue
		}
		t := ev.Trace
		switch t.Phase {
		case domain.TracePhaseStep:
			sawStep = true
			if !t.OK && t.Critical {
				criticalFailed = true
			}
		case domain.TracePhaseCompensation:
			sawCompensation = true
			if !t.OK {
				compensationFailed = true
			}
		}
	}

	switch {
	case !sawStep:
		return state
	case compensationFailed:
		return domain.RunFailed
	case sawCompensation:
		return domain.RunRolledBack
	case criticalFailed:
		return domain.RunFailed
	default:
		return domain.RunSucceeded
	}
}
