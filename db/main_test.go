package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/my-chat-db/config"
)

// TestMain points the database at a throwaway directory before the first
// GetDB call. The connection is a process-wide singleton, so tests share
// one database and keep to their own sessions.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "my-chat-db-test-")
	if err != nil {
		panic(err)
	}

	cfg := config.Get()
	cfg.DataDir = dir
	cfg.DatabasePath = filepath.Join(dir, "database.sqlite")

	code := m.Run()

	Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

// newTestSession inserts a fresh session and returns it
func newTestSession(t *testing.T, title string, at int64) *ChatSession {
	t.Helper()
	s := &ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := CreateChatSession(s); err != nil {
		t.Fatalf("CreateChatSession failed: %v", err)
	}
	return s
}

// newTestMessage inserts a message into a session and returns it
func newTestMessage(t *testing.T, sessionID, content string, isUser bool, at int64, status string) *Message {
	t.Helper()
	m := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		IsUser:    isUser,
		Timestamp: at,
		Status:    status,
	}
	if err := InsertMessage(m); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	return m
}
