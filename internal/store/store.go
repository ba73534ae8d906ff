// Package store implements Boternity's default relational persistence:
// chat sessions/messages and workflow runs/step logs, backed by
// modernc.org/sqlite (the teacher's pure-Go driver of choice). A separate
// lib/pq-backed implementation of the session store
// (internal/sessions.PostgresStore) can be swapped in for multi-bot
// production deployments; this package only covers the sqlite default.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB opened against a Boternity sqlite database, with the
// schema for sessions, messages, workflow runs, and workflow step logs
// already applied.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// applies the schema. path may be ":memory:" for ephemeral use in tests.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the underlying *sql.DB for repositories built outside this
// package (mirrors internal/sessions.PostgresStore.DB's escape hatch).
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	key TEXT NOT NULL UNIQUE,
	title TEXT,
	metadata TEXT,
	bot_id TEXT,
	status TEXT,
	total_input_tokens INTEGER DEFAULT 0,
	total_output_tokens INTEGER DEFAULT 0,
	message_count INTEGER DEFAULT 0,
	model TEXT,
	started_at DATETIME,
	ended_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_agent_id ON sessions(agent_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	channel TEXT NOT NULL,
	channel_id TEXT,
	direction TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	attachments TEXT,
	tool_calls TEXT,
	tool_results TEXT,
	metadata TEXT,
	input_tokens INTEGER DEFAULT 0,
	output_tokens INTEGER DEFAULT 0,
	model TEXT,
	stop_reason TEXT,
	response_ms INTEGER DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS workflow_runs (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	workflow_name TEXT NOT NULL,
	status TEXT NOT NULL,
	trigger_type TEXT,
	context BLOB,
	error TEXT,
	started_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS workflow_step_logs (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES workflow_runs(id),
	step_id TEXT NOT NULL,
	step_name TEXT NOT NULL,
	status TEXT NOT NULL,
	attempt INTEGER NOT NULL DEFAULT 1,
	idempotency_key TEXT,
	input BLOB,
	output BLOB,
	error TEXT,
	started_at DATETIME,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_step_logs_run_id ON workflow_step_logs(run_id);
`
	if _, err := d.conn.Exec(schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error fn returns, matching the cross-table-mutation pattern
// internal/sessions.PostgresStore.AppendMessage uses for its
// message-insert-plus-counter-bump update.
func (d *DB) withTx(fn func(*sql.Tx) error) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
