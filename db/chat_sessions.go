package db

import (
	"database/sql"
)

const chatSessionColumns = "id, title, created_at, updated_at"

// CreateChatSession inserts a new chat session
func CreateChatSession(s *ChatSession) error {
	_, err := Run(
		`INSERT INTO chat_sessions (id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		s.ID, s.Title, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// GetChatSession retrieves a chat session by ID, nil if not found
func GetChatSession(id string) (*ChatSession, error) {
	return SelectOne(
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE id = ?`,
		[]QueryParam{id},
		func(row *sql.Row) (ChatSession, error) { return scanChatSession(row) },
	)
}

// ListChatSessions returns all chat sessions sorted by recency.
// The ordering lives in SQL so every read is a fresh projection.
func ListChatSessions() ([]ChatSession, error) {
	return Select(
		`SELECT `+chatSessionColumns+`
		 FROM chat_sessions
		 ORDER BY updated_at DESC, created_at DESC, id`,
		nil,
		func(rows *sql.Rows) (ChatSession, error) { return scanChatSession(rows) },
	)
}

// RenameChatSession updates the title and bumps updated_at.
// The MAX guard keeps updated_at monotonically non-decreasing even if the
// caller's clock reads behind a previous write.
func RenameChatSession(id, title string, now int64) error {
	_, err := Run(
		`UPDATE chat_sessions
		 SET title = ?, updated_at = MAX(updated_at, ?)
		 WHERE id = ?`,
		title, now, id,
	)
	return err
}

// TouchChatSession bumps updated_at for a session
func TouchChatSession(id string, now int64) error {
	_, err := Run(
		`UPDATE chat_sessions
		 SET updated_at = MAX(updated_at, ?)
		 WHERE id = ?`,
		now, id,
	)
	return err
}

// DeleteChatSession removes a session and all of its messages atomically.
// The messages delete is explicit rather than relying on the FK cascade so
// the operation reads the same with foreign_keys disabled.
func DeleteChatSession(id string) error {
	return Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM chat_sessions WHERE id = ?`, id)
		return err
	})
}

// ChatSessionExists reports whether a session id is present
func ChatSessionExists(id string) (bool, error) {
	return Exists(`SELECT 1 FROM chat_sessions WHERE id = ?`, id)
}

// CountChatSessions returns the number of chat sessions
func CountChatSessions() (int64, error) {
	return Count(`SELECT COUNT(*) FROM chat_sessions`)
}
