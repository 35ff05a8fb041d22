package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "Initial schema - chat sessions, messages, auth sessions, settings",
		Up:          migration001_initial,
	})
}

func migration001_initial(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Chat sessions table, listed by recency
	_, err = tx.Exec(`
		CREATE TABLE chat_sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX idx_chat_sessions_updated_at ON chat_sessions(updated_at DESC, created_at DESC);
	`)
	if err != nil {
		return err
	}

	// Messages table with secondary index by session.
	// The partial unique index enforces at most one in-flight assistant
	// reply per session.
	_, err = tx.Exec(`
		CREATE TABLE messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			content TEXT NOT NULL DEFAULT '',
			is_user INTEGER NOT NULL DEFAULT 0,
			timestamp INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'final'
		);

		CREATE INDEX idx_messages_session_id ON messages(session_id);
		CREATE INDEX idx_messages_session_timestamp ON messages(session_id, timestamp);
		CREATE UNIQUE INDEX idx_messages_streaming ON messages(session_id) WHERE status = 'streaming';
	`)
	if err != nil {
		return err
	}

	// Auth sessions table (password auth mode)
	_, err = tx.Exec(`
		CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			last_used_at INTEGER NOT NULL
		);

		CREATE INDEX idx_sessions_expires_at ON sessions(expires_at);
	`)
	if err != nil {
		return err
	}

	// Settings table
	_, err = tx.Exec(`
		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}
