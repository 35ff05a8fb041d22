package chat

import (
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
)

// Store is the persistence surface the conversation core runs on. The
// production implementation delegates to the sqlite layer; tests substitute
// an in-memory one. Implementations must make multi-row mutations atomic
// (cascade delete, append+touch) so a concurrent reader never observes a
// half-applied write.
type Store interface {
	CreateSession(s *db.ChatSession) error
	GetSession(id string) (*db.ChatSession, error)
	ListSessions() ([]db.ChatSession, error)
	RenameSession(id, title string, now int64) error
	TouchSession(id string, now int64) error
	DeleteSession(id string) error

	InsertMessage(m *db.Message) error
	ListMessages(sessionID string) ([]db.Message, error)
	CountMessages(sessionID string) (int64, error)
	AppendFragment(sessionID, messageID, fragment string, now int64) error
	FinishMessage(sessionID, messageID, status string, now int64) error
}

// sqlStore is the sqlite-backed Store
type sqlStore struct{}

// NewSQLStore returns the Store backed by the application database
func NewSQLStore() Store {
	return sqlStore{}
}

func (sqlStore) CreateSession(s *db.ChatSession) error {
	return db.CreateChatSession(s)
}

func (sqlStore) GetSession(id string) (*db.ChatSession, error) {
	return db.GetChatSession(id)
}

func (sqlStore) ListSessions() ([]db.ChatSession, error) {
	return db.ListChatSessions()
}

func (sqlStore) RenameSession(id, title string, now int64) error {
	return db.RenameChatSession(id, title, now)
}

func (sqlStore) TouchSession(id string, now int64) error {
	return db.TouchChatSession(id, now)
}

func (sqlStore) DeleteSession(id string) error {
	return db.DeleteChatSession(id)
}

func (sqlStore) InsertMessage(m *db.Message) error {
	return db.InsertMessage(m)
}

func (sqlStore) ListMessages(sessionID string) ([]db.Message, error) {
	return db.ListMessages(sessionID)
}

func (sqlStore) CountMessages(sessionID string) (int64, error) {
	return db.CountMessages(sessionID)
}

func (sqlStore) AppendFragment(sessionID, messageID, fragment string, now int64) error {
	return db.AppendMessageFragment(sessionID, messageID, fragment, now)
}

func (sqlStore) FinishMessage(sessionID, messageID, status string, now int64) error {
	return db.FinishMessage(sessionID, messageID, status, now)
}
