package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/my-chat-db/auth"
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

// FallbackErrorText is what the assistant message holds when the upstream
// fails before producing anything. Matches the text the UI shows verbatim.
const FallbackErrorText = "抱歉，出现了问题。请重试。"

// Event kinds published over the notification stream
const (
	EventSessionCreated   = "session-created"
	EventSessionUpdated   = "session-updated"
	EventSessionDeleted   = "session-deleted"
	EventMessageCompleted = "message-completed"
	EventMessageFailed    = "message-failed"
)

var orchLogger = log.GetLogger("ChatOrchestrator")

// Events receives conversation lifecycle events. Publication is best effort
// and must never block a send.
type Events interface {
	Publish(kind string, payload any)
}

// Indexer receives finalized messages for full-text search. Best effort;
// indexing failures never fail a send.
type Indexer interface {
	IndexMessage(m *db.Message)
}

// Sink receives each assistant fragment as it is persisted, in order. Used
// by the HTTP layer to relay the stream to the browser.
type Sink func(fragment string)

// SendObserver lets the caller watch a send as it progresses. OnAccepted
// fires once the assistant placeholder exists, before any fragment, so a
// transport can commit response headers. Either field may be nil.
type SendObserver struct {
	OnAccepted func(result *SendResult)
	OnFragment Sink
}

// SendResult reports what a send produced. Assistant reflects the final
// persisted state of the assistant message, including partial content when
// the stream died mid-flight.
type SendResult struct {
	Session        *db.ChatSession
	SessionCreated bool
	UserMessage    db.Message
	Assistant      db.Message
}

// Orchestrator drives one user turn end to end: validate, persist the user
// message, stream the completion into a placeholder message, finalize.
// At most one send runs per session; concurrent sends on distinct sessions
// are independent.
type Orchestrator struct {
	store     Store
	repo      *Repository
	completer Completer
	events    Events
	indexer   Indexer
	now       func() int64

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewOrchestrator wires the conversation pipeline. events and indexer may
// be nil.
func NewOrchestrator(store Store, repo *Repository, completer Completer, events Events, indexer Indexer) *Orchestrator {
	return &Orchestrator{
		store:     store,
		repo:      repo,
		completer: completer,
		events:    events,
		indexer:   indexer,
		now:       db.NowMs,
		busy:      make(map[string]struct{}),
	}
}

// tryAcquire takes the per-session send latch
func (o *Orchestrator) tryAcquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, inFlight := o.busy[sessionID]; inFlight {
		return false
	}
	o.busy[sessionID] = struct{}{}
	return true
}

// release frees the per-session send latch
func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.busy, sessionID)
}

// IsBusy reports whether a send is in flight for the session
func (o *Orchestrator) IsBusy(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, inFlight := o.busy[sessionID]
	return inFlight
}

// SendMessage runs one user turn. With an empty sessionID a new session is
// created. The identity check precedes every write: an unauthenticated send
// persists nothing. Fragments reach the sink in persistence order, and the
// persisted assistant content is always a prefix of the full response.
// Cancellation of ctx finalizes the assistant message as failed with the
// partial content kept.
func (o *Orchestrator) SendMessage(ctx context.Context, ident auth.Identity, sessionID, text string, obs SendObserver) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidInput
	}
	if !ident.IsAuthenticated() {
		return nil, ErrUnauthorized
	}

	session, created, err := o.resolveSession(sessionID)
	if err != nil {
		return nil, err
	}

	if !o.tryAcquire(session.ID) {
		return nil, ErrBusy
	}
	defer o.release(session.ID)

	result := &SendResult{Session: session, SessionCreated: created}
	if created {
		o.publish(EventSessionCreated, session)
	}

	now := o.now()

	// First message of a session names it after the message text
	count, err := o.store.CountMessages(session.ID)
	if err != nil {
		return result, storageErr(err)
	}
	if count == 0 {
		title := ProvisionalTitle(text)
		if err := o.store.RenameSession(session.ID, title, now); err != nil {
			return result, storageErr(err)
		}
		session.Title = title
	}

	userMsg := db.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Content:   text,
		IsUser:    true,
		Timestamp: now,
		Status:    db.MessageStatusFinal,
	}
	if err := o.store.InsertMessage(&userMsg); err != nil {
		return result, storageErr(err)
	}
	result.UserMessage = userMsg
	o.index(&userMsg)
	o.publish(EventSessionUpdated, session)

	history, err := o.store.ListMessages(session.ID)
	if err != nil {
		return result, storageErr(err)
	}
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		// In-flight placeholders stay out; failed replies keep their partial
		// content in the conversation.
		if m.Status == db.MessageStatusStreaming {
			continue
		}
		turns = append(turns, Turn{Content: m.Content, IsUser: m.IsUser})
	}

	stream, err := o.completer.Complete(ctx, ident, turns)
	if err != nil {
		orchLogger.Error().Err(err).Str("sessionId", session.ID).Msg("completion open failed")
		failed, persistErr := o.persistFailure(session.ID)
		if persistErr != nil {
			return result, persistErr
		}
		result.Assistant = *failed
		o.publish(EventMessageFailed, failed)
		return result, err
	}
	defer stream.Close()

	placeholder := db.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Content:   "",
		IsUser:    false,
		Timestamp: o.now(),
		Status:    db.MessageStatusStreaming,
	}
	if err := o.store.InsertMessage(&placeholder); err != nil {
		return result, storageErr(err)
	}
	result.Assistant = placeholder
	if obs.OnAccepted != nil {
		obs.OnAccepted(result)
	}

	streamErr := o.consume(ctx, stream, &placeholder, obs.OnFragment)
	if streamErr != nil {
		if err := o.store.FinishMessage(session.ID, placeholder.ID, db.MessageStatusFailed, o.now()); err != nil {
			return result, storageErr(err)
		}
		placeholder.Status = db.MessageStatusFailed
		result.Assistant = placeholder
		o.publish(EventMessageFailed, &placeholder)
		orchLogger.Warn().Err(streamErr).
			Str("sessionId", session.ID).
			Str("messageId", placeholder.ID).
			Int("partialLen", len(placeholder.Content)).
			Msg("assistant message failed")
		return result, streamErr
	}

	if err := o.store.FinishMessage(session.ID, placeholder.ID, db.MessageStatusFinal, o.now()); err != nil {
		return result, storageErr(err)
	}
	placeholder.Status = db.MessageStatusFinal
	result.Assistant = placeholder
	o.index(&placeholder)
	o.publish(EventMessageCompleted, &placeholder)
	o.publish(EventSessionUpdated, session)

	orchLogger.Info().
		Str("sessionId", session.ID).
		Str("messageId", placeholder.ID).
		Int("contentLen", len(placeholder.Content)).
		Msg("assistant message completed")
	return result, nil
}

// consume pulls fragments until normal completion, persisting each before
// handing it to the sink so persisted content is always a stream prefix.
func (o *Orchestrator) consume(ctx context.Context, stream Stream, msg *db.Message, sink Sink) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fragment, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// A consumer-side cancel surfaces as an interrupted stream;
			// report it as the cancellation it is.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if fragment == "" {
			continue
		}
		if err := o.store.AppendFragment(msg.SessionID, msg.ID, fragment, o.now()); err != nil {
			return storageErr(err)
		}
		msg.Content += fragment
		if sink != nil {
			sink(fragment)
		}
	}
}

// resolveSession returns the target session. An empty or stale id creates a
// fresh session, so a caller holding the id of a deleted session keeps
// working instead of erroring.
func (o *Orchestrator) resolveSession(sessionID string) (*db.ChatSession, bool, error) {
	if sessionID != "" {
		s, err := o.repo.GetSession(sessionID)
		if err != nil {
			return nil, false, err
		}
		if s != nil {
			return s, false, nil
		}
		orchLogger.Warn().Str("sessionId", sessionID).Msg("stale session id, creating a new session")
	}
	s, err := o.repo.CreateSession("")
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// persistFailure records an assistant message carrying the fixed error text
// when the stream could not be opened at all.
func (o *Orchestrator) persistFailure(sessionID string) (*db.Message, error) {
	m := db.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   FallbackErrorText,
		IsUser:    false,
		Timestamp: o.now(),
		Status:    db.MessageStatusFinal,
	}
	if err := o.store.InsertMessage(&m); err != nil {
		return nil, storageErr(err)
	}
	return &m, nil
}

func (o *Orchestrator) publish(kind string, payload any) {
	if o.events != nil {
		o.events.Publish(kind, payload)
	}
}

func (o *Orchestrator) index(m *db.Message) {
	if o.indexer != nil && m.Status != db.MessageStatusStreaming {
		o.indexer.IndexMessage(m)
	}
}
