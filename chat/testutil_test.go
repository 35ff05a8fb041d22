package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/xiaoyuanzhu-com/my-chat-db/auth"
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
)

// memoryStore is an in-memory Store for tests. It mirrors the sqlite
// semantics: appends only land on streaming messages, session updated_at
// never moves backwards, and a session holds at most one streaming message.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*db.ChatSession
	messages map[string][]*db.Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions: make(map[string]*db.ChatSession),
		messages: make(map[string][]*db.Message),
	}
}

func (s *memoryStore) CreateSession(session *db.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *memoryStore) GetSession(id string) (*db.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *memoryStore) ListSessions() ([]db.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.ChatSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	// updated_at descending, created_at descending as tiebreaker, id last
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessRecent(out[j-1], out[j]); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out, nil
}

func lessRecent(a, b db.ChatSession) bool {
	if a.UpdatedAt != b.UpdatedAt {
		return a.UpdatedAt < b.UpdatedAt
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID > b.ID
}

func (s *memoryStore) RenameSession(id, title string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.Title = title
		session.UpdatedAt = maxInt64(session.UpdatedAt, now)
	}
	return nil
}

func (s *memoryStore) TouchSession(id string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.UpdatedAt = maxInt64(session.UpdatedAt, now)
	}
	return nil
}

func (s *memoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *memoryStore) InsertMessage(m *db.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Status == db.MessageStatusStreaming {
		for _, existing := range s.messages[m.SessionID] {
			if existing.Status == db.MessageStatusStreaming {
				return fmt.Errorf("session %s already has a streaming message", m.SessionID)
			}
		}
	}
	copied := *m
	s.messages[m.SessionID] = append(s.messages[m.SessionID], &copied)
	if session, ok := s.sessions[m.SessionID]; ok {
		session.UpdatedAt = maxInt64(session.UpdatedAt, m.Timestamp)
	}
	return nil
}

func (s *memoryStore) ListMessages(sessionID string) ([]db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	out := make([]db.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, *m)
	}
	return out, nil
}

func (s *memoryStore) CountMessages(sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages[sessionID])), nil
}

func (s *memoryStore) AppendFragment(sessionID, messageID, fragment string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[sessionID] {
		if m.ID == messageID && m.Status == db.MessageStatusStreaming {
			m.Content += fragment
		}
	}
	if session, ok := s.sessions[sessionID]; ok {
		session.UpdatedAt = maxInt64(session.UpdatedAt, now)
	}
	return nil
}

func (s *memoryStore) FinishMessage(sessionID, messageID, status string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[sessionID] {
		if m.ID == messageID && m.Status == db.MessageStatusStreaming {
			m.Status = status
		}
	}
	if session, ok := s.sessions[sessionID]; ok {
		session.UpdatedAt = maxInt64(session.UpdatedAt, now)
	}
	return nil
}

func (s *memoryStore) message(sessionID, messageID string) *db.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[sessionID] {
		if m.ID == messageID {
			copied := *m
			return &copied
		}
	}
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// flakyStore fails the first n calls of each read method, then delegates
type flakyStore struct {
	*memoryStore
	listFailures int
	getFailures  int
}

func (s *flakyStore) ListSessions() ([]db.ChatSession, error) {
	if s.listFailures > 0 {
		s.listFailures--
		return nil, errors.New("transient failure")
	}
	return s.memoryStore.ListSessions()
}

func (s *flakyStore) GetSession(id string) (*db.ChatSession, error) {
	if s.getFailures > 0 {
		s.getFailures--
		return nil, errors.New("transient failure")
	}
	return s.memoryStore.GetSession(id)
}

// scriptedStream replays a fixed fragment sequence, then finishes with eof
// or the scripted error.
type scriptedStream struct {
	fragments []string
	err       error
	pos       int
	closed    bool
	release   chan struct{}
}

func (s *scriptedStream) Recv() (string, error) {
	if s.release != nil {
		<-s.release
	}
	if s.pos < len(s.fragments) {
		frag := s.fragments[s.pos]
		s.pos++
		return frag, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() {
	s.closed = true
}

// scriptedCompleter hands out scripted streams and records the turns it saw
type scriptedCompleter struct {
	fragments []string
	streamErr error
	openErr   error
	release   chan struct{}

	mu        sync.Mutex
	lastTurns []Turn
	streams   []*scriptedStream
}

func (c *scriptedCompleter) Complete(ctx context.Context, ident auth.Identity, turns []Turn) (Stream, error) {
	if !ident.IsAuthenticated() {
		return nil, ErrUnauthorized
	}
	c.mu.Lock()
	c.lastTurns = append([]Turn(nil), turns...)
	c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	stream := &scriptedStream{
		fragments: append([]string(nil), c.fragments...),
		err:       c.streamErr,
		release:   c.release,
	}
	c.mu.Lock()
	c.streams = append(c.streams, stream)
	c.mu.Unlock()
	return stream, nil
}

func (c *scriptedCompleter) turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.lastTurns...)
}
