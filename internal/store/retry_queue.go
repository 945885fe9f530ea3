package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteRetryQueue implements RetryQueue backed by SQLite.
type SQLiteRetryQueue struct {
	db *DB
}

// NewSQLiteRetryQueue creates a retry queue using the given database.
func NewSQLiteRetryQueue(db *DB) *SQLiteRetryQueue {
	return &SQLiteRetryQueue{db: db}
}

// Enqueue adds a retry entry for a failed non-critical step.
func (q *SQLiteRetryQueue) Enqueue(ctx context.Context, e *RetryEntry) error {
	inputs, err := json.Marshal(e.Inputs)
	if err != nil {
		return fmt.Errorf("marshaling retry inputs: %w", err)
	}
	res, err := q.db.sql.ExecContext(ctx,
		`INSERT INTO retry_queue (session_id, run_id, step_id, api, operation, inputs, base_url, api_key, attempts, next_attempt_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.RunID, e.StepID, e.API, e.Operation, string(inputs),
		e.BaseURL, e.APIKey,
		e.Attempts, e.NextAttemptAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("enqueueing retry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// Due returns entries whose next attempt time has passed.
func (q *SQLiteRetryQueue) Due(ctx context.Context, now time.Time, limit int) ([]RetryEntry, error) {
	rows, err := q.db.sql.QueryContext(ctx,
		`SELECT id, session_id, run_id, step_id, api, operation, inputs, base_url, api_key, attempts, next_attempt_at
		 FROM retry_queue WHERE next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`,
		now.UTC().Format(time.RFC3339Nano), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing due retries: %w", err)
	}
	defer rows.Close()

	var entries []RetryEntry
	for rows.Next() {
		var e RetryEntry
		var inputs, next string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.RunID, &e.StepID, &e.API, &e.Operation,
			&inputs, &e.BaseURL, &e.APIKey, &e.Attempts, &next); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(inputs), &e.Inputs)
		e.NextAttemptAt, _ = time.Parse(time.RFC3339Nano, next)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reschedule bumps the attempt count; entries that exhausted maxAttempts
// are removed instead.
func (q *SQLiteRetryQueue) Reschedule(ctx context.Context, id int64, next time.Time, maxAttempts int) error {
	res, err := q.db.sql.ExecContext(ctx,
		`UPDATE retry_queue SET attempts = attempts + 1, next_attempt_at = ?
		 WHERE id = ? AND attempts + 1 < ?`,
		next.UTC().Format(time.RFC3339Nano), id, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("rescheduling retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return q.Remove(ctx, id)
	}
	return nil
}

// Remove deletes a retry entry.
func (q *SQLiteRetryQueue) Remove(ctx context.Context, id int64) error {
	_, err := q.db.sql.ExecContext(ctx, `DELETE FROM retry_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing retry: %w", err)
	}
	return nil
}
