package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and events",
		SQL: `
			CREATE TABLE sessions (
				token       TEXT PRIMARY KEY,
				secret      TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				expires_at  TEXT NOT NULL,
				status      TEXT NOT NULL DEFAULT 'active'
			);

			CREATE INDEX idx_sessions_expiry ON sessions (expires_at);

			CREATE TABLE events (
				id           TEXT PRIMARY KEY,
				session_id   TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
				seq          INTEGER NOT NULL,
				kind         TEXT NOT NULL,
				timestamp    TEXT NOT NULL,
				delivery_key TEXT NOT NULL DEFAULT '',
				duplicate    INTEGER NOT NULL DEFAULT 0,
				payload      TEXT NOT NULL,
				UNIQUE (session_id, seq)
			);

			CREATE INDEX idx_events_delivery
				ON events (session_id, delivery_key)
				WHERE delivery_key != '' AND duplicate = 0;
		`,
	},
	{
		Version: 2,
		Name:    "create runs",
		SQL: `
			CREATE TABLE runs (
				id          TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
				plan_id     TEXT NOT NULL,
				state       TEXT NOT NULL,
				started_at  TEXT NOT NULL,
				finished_at TEXT,
				record      TEXT NOT NULL
			);

			CREATE INDEX idx_runs_session ON runs (session_id, started_at);
		`,
	},
	{
		Version: 3,
		Name:    "create notification retry queue",
		SQL: `
			CREATE TABLE retry_queue (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id      TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
				run_id          TEXT NOT NULL,
				step_id         TEXT NOT NULL,
				api             TEXT NOT NULL,
				operation       TEXT NOT NULL,
				inputs          TEXT NOT NULL,
				base_url        TEXT NOT NULL DEFAULT '',
				api_key         TEXT NOT NULL DEFAULT '',
				attempts        INTEGER NOT NULL DEFAULT 0,
				next_attempt_at TEXT NOT NULL,
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_retry_due ON retry_queue (next_attempt_at);
		`,
	},
	{
		Version: 4,
		Name:    "unique delivery key per session",
		SQL: `
			DROP INDEX idx_events_delivery;

			CREATE UNIQUE INDEX idx_events_delivery
				ON events (session_id, delivery_key)
				WHERE delivery_key != '' AND duplicate = 0;
		`,
	},
}
