package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

// DefaultSessionTitle is the title of a session before its first message
const DefaultSessionTitle = "新对话"

// titleRuneLimit is the truncation length for provisional titles derived
// from the first message of a session.
const titleRuneLimit = 20

var repoLogger = log.GetLogger("ChatRepository")

// Repository provides CRUD and ordering over chat sessions. It never tracks
// an active session; selection belongs to the caller. Every read returns a
// fresh sorted projection from the store.
type Repository struct {
	store Store
	now   func() int64
}

// NewRepository creates a session repository over a store
func NewRepository(store Store) *Repository {
	return &Repository{store: store, now: db.NowMs}
}

// CreateSession creates a session with the given title (or the default when
// empty) and returns it.
func (r *Repository) CreateSession(title string) (*db.ChatSession, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultSessionTitle
	}

	now := r.now()
	s := &db.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.store.CreateSession(s); err != nil {
		return nil, storageErr(err)
	}

	repoLogger.Info().Str("sessionId", s.ID).Msg("session created")
	return s, nil
}

// GetSession returns a session by id, nil if it does not exist
func (r *Repository) GetSession(id string) (*db.ChatSession, error) {
	s, err := r.readSession(id)
	if err != nil {
		return nil, storageErr(err)
	}
	return s, nil
}

// ListSessions returns all sessions ordered by updatedAt descending.
// A transient store failure is retried once before surfacing.
func (r *Repository) ListSessions() ([]db.ChatSession, error) {
	sessions, err := r.store.ListSessions()
	if err != nil {
		repoLogger.Warn().Err(err).Msg("session list failed, retrying once")
		sessions, err = r.store.ListSessions()
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return sessions, nil
}

// ListMessages returns a session's messages ordered by timestamp ascending
func (r *Repository) ListMessages(sessionID string) ([]db.Message, error) {
	messages, err := r.store.ListMessages(sessionID)
	if err != nil {
		repoLogger.Warn().Err(err).Msg("message list failed, retrying once")
		messages, err = r.store.ListMessages(sessionID)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return messages, nil
}

// RenameSession sets a session's title and bumps updatedAt
func (r *Repository) RenameSession(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidInput
	}
	if err := r.store.RenameSession(id, title, r.now()); err != nil {
		return storageErr(err)
	}
	return nil
}

// TouchSession bumps a session's updatedAt
func (r *Repository) TouchSession(id string) error {
	if err := r.store.TouchSession(id, r.now()); err != nil {
		return storageErr(err)
	}
	return nil
}

// DeleteSession removes a session and all of its messages
func (r *Repository) DeleteSession(id string) error {
	if err := r.store.DeleteSession(id); err != nil {
		return storageErr(err)
	}
	repoLogger.Info().Str("sessionId", id).Msg("session deleted")
	return nil
}

// FallbackSession returns the session the UI should activate after a delete:
// the most recent remaining session, or a freshly created one when none
// remain. Deterministic given the store contents.
func (r *Repository) FallbackSession() (*db.ChatSession, error) {
	sessions, err := r.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 {
		return &sessions[0], nil
	}
	return r.CreateSession("")
}

// readSession is a get with one retry, shared by orchestrator paths
func (r *Repository) readSession(id string) (*db.ChatSession, error) {
	s, err := r.store.GetSession(id)
	if err != nil {
		repoLogger.Warn().Err(err).Msg("session read failed, retrying once")
		s, err = r.store.GetSession(id)
	}
	return s, err
}

// ProvisionalTitle derives a session title from its first message: a
// rune-safe prefix with an ellipsis marker when the text is longer than the
// limit, the text itself otherwise.
func ProvisionalTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= titleRuneLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:titleRuneLimit]) + "..."
}
