package db

import (
	"database/sql"
)

const messageColumns = "id, session_id, content, is_user, timestamp, status"

// InsertMessage appends a message and bumps the owning session's updated_at
// in the same transaction, so a mid-stream reader never sees a message whose
// session looks untouched.
func InsertMessage(m *Message) error {
	return Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO messages (id, session_id, content, is_user, timestamp, status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, m.Content, boolToInt(m.IsUser), m.Timestamp, m.Status,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`UPDATE chat_sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
			m.Timestamp, m.SessionID,
		)
		return err
	})
}

// GetMessage retrieves a message by ID, nil if not found
func GetMessage(id string) (*Message, error) {
	return SelectOne(
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`,
		[]QueryParam{id},
		func(row *sql.Row) (Message, error) { return scanMessage(row) },
	)
}

// ListMessages returns a session's messages ordered by timestamp ascending
func ListMessages(sessionID string) ([]Message, error) {
	return Select(
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY timestamp ASC, id`,
		[]QueryParam{sessionID},
		func(rows *sql.Rows) (Message, error) { return scanMessage(rows) },
	)
}

// AppendMessageFragment appends a fragment to a streaming message's content
// and bumps the session's updated_at. The append happens inside sqlite
// (content = content || ?), so a concurrent reader always observes a strict
// prefix of the final content, never reordered or duplicated text.
func AppendMessageFragment(sessionID, messageID, fragment string, now int64) error {
	return Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE messages
			 SET content = content || ?
			 WHERE id = ? AND status = ?`,
			fragment, messageID, MessageStatusStreaming,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`UPDATE chat_sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
			now, sessionID,
		)
		return err
	})
}

// FinishMessage transitions a streaming message to final or failed,
// preserving whatever content has accumulated.
func FinishMessage(sessionID, messageID, status string, now int64) error {
	return Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE messages
			 SET status = ?
			 WHERE id = ? AND status = ?`,
			status, messageID, MessageStatusStreaming,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`UPDATE chat_sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
			now, sessionID,
		)
		return err
	})
}

// CountMessages returns the number of messages in a session
func CountMessages(sessionID string) (int64, error) {
	return Count(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID)
}

// DeleteMessagesBySession removes all messages belonging to a session
func DeleteMessagesBySession(sessionID string) error {
	_, err := Run(`DELETE FROM messages WHERE session_id = ?`, sessionID)
	return err
}

// FailOrphanedStreams marks messages left in streaming state by a previous
// process as failed. Run once at startup so the store never presents an
// in-flight reply that no orchestrator owns.
func FailOrphanedStreams() (int64, error) {
	result, err := Run(
		`UPDATE messages SET status = ? WHERE status = ?`,
		MessageStatusFailed, MessageStatusStreaming,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SearchMessagesLike is the sqlite fallback for message search when no
// external index is configured. Case-insensitive substring match.
func SearchMessagesLike(query string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return Select(
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE status != ? AND content LIKE '%' || ? || '%'
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		[]QueryParam{MessageStatusStreaming, query, limit},
		func(rows *sql.Rows) (Message, error) { return scanMessage(rows) },
	)
}
