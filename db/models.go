package db

import (
	"time"
)

// ChatSession represents a titled conversation between the user and the assistant
type ChatSession struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Message represents one turn in a chat session
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	IsUser    bool   `json:"isUser"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// Message status values. A message starts out final (user turns) or
// streaming (the in-flight assistant reply); once final or failed its
// content never changes again.
const (
	MessageStatusFinal     = "final"
	MessageStatusStreaming = "streaming"
	MessageStatusFailed    = "failed"
)

// AuthSession represents an authentication session record
type AuthSession struct {
	ID         string `json:"id"`
	CreatedAt  int64  `json:"createdAt"`
	ExpiresAt  int64  `json:"expiresAt"`
	LastUsedAt int64  `json:"lastUsedAt"`
}

// scanChatSession scans a row into a ChatSession
func scanChatSession(row interface{ Scan(...any) error }) (ChatSession, error) {
	var s ChatSession
	err := row.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// scanMessage scans a row into a Message
func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	var isUser int
	err := row.Scan(&m.ID, &m.SessionID, &m.Content, &isUser, &m.Timestamp, &m.Status)
	m.IsUser = isUser == 1
	return m, err
}

// NowMs returns the current time as Unix milliseconds (int64)
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// boolToInt converts a bool to its sqlite representation
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
