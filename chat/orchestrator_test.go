package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xiaoyuanzhu-com/my-chat-db/auth"
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
)

func newTestOrchestrator(store Store, completer Completer) *Orchestrator {
	return NewOrchestrator(store, NewRepository(store), completer, nil, nil)
}

func TestSendMessageHappyPath(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{fragments: []string{"Hi", " there"}}
	o := newTestOrchestrator(store, completer)

	var seen []string
	obs := SendObserver{OnFragment: func(f string) { seen = append(seen, f) }}

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", "hello", obs)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !result.SessionCreated {
		t.Error("expected a new session for an empty session id")
	}

	if result.UserMessage.Content != "hello" || !result.UserMessage.IsUser {
		t.Errorf("unexpected user message: %+v", result.UserMessage)
	}
	if result.UserMessage.Status != db.MessageStatusFinal {
		t.Errorf("expected user message final, got %s", result.UserMessage.Status)
	}

	if result.Assistant.Content != "Hi there" {
		t.Errorf("expected assembled content %q, got %q", "Hi there", result.Assistant.Content)
	}
	if result.Assistant.Status != db.MessageStatusFinal {
		t.Errorf("expected assistant message final, got %s", result.Assistant.Status)
	}

	if strings.Join(seen, "") != "Hi there" {
		t.Errorf("sink saw %q", strings.Join(seen, ""))
	}

	// Persisted state matches what the caller saw
	persisted := store.message(result.Session.ID, result.Assistant.ID)
	if persisted == nil || persisted.Content != "Hi there" || persisted.Status != db.MessageStatusFinal {
		t.Errorf("unexpected persisted assistant message: %+v", persisted)
	}

	// The title comes from the first message
	session, _ := store.GetSession(result.Session.ID)
	if session.Title != "hello" {
		t.Errorf("expected session titled after first message, got %q", session.Title)
	}
}

func TestSendMessageTruncatesLongTitle(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, &scriptedCompleter{fragments: []string{"ok"}})

	text := strings.Repeat("很", 30)
	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", text, SendObserver{})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	session, _ := store.GetSession(result.Session.ID)
	if want := strings.Repeat("很", 20) + "..."; session.Title != want {
		t.Errorf("expected title %q, got %q", want, session.Title)
	}
}

func TestSendMessageKeepsTitleAfterFirstMessage(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, &scriptedCompleter{fragments: []string{"ok"}})

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", "first", SendObserver{})
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	if _, err := o.SendMessage(context.Background(), auth.Anonymous, result.Session.ID, "second", SendObserver{}); err != nil {
		t.Fatalf("second send failed: %v", err)
	}

	session, _ := store.GetSession(result.Session.ID)
	if session.Title != "first" {
		t.Errorf("expected title to stay %q, got %q", "first", session.Title)
	}
}

func TestSendMessageEmptyInput(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, &scriptedCompleter{fragments: []string{"ok"}})

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := o.SendMessage(context.Background(), auth.Anonymous, "", text, SendObserver{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("SendMessage(%q): expected ErrInvalidInput, got %v", text, err)
		}
	}

	sessions, _ := store.ListSessions()
	if len(sessions) != 0 {
		t.Errorf("expected no sessions created for invalid input, got %d", len(sessions))
	}
}

func TestSendMessageUnauthenticatedPersistsNothing(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, &scriptedCompleter{fragments: []string{"ok"}})

	_, err := o.SendMessage(context.Background(), auth.Unauthenticated, "", "hello", SendObserver{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	sessions, _ := store.ListSessions()
	if len(sessions) != 0 {
		t.Errorf("expected no sessions persisted, got %d", len(sessions))
	}
}

func TestSendMessageStaleSessionCreatesFresh(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, &scriptedCompleter{fragments: []string{"ok"}})

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "deleted-long-ago", "hello", SendObserver{})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !result.SessionCreated {
		t.Error("expected a fresh session for a stale id")
	}
	if result.Session.ID == "deleted-long-ago" {
		t.Error("expected a newly generated session id")
	}
	if session, _ := store.GetSession(result.Session.ID); session == nil {
		t.Error("expected the fresh session persisted")
	}
}

func TestSendMessageHistoryExcludesPlaceholder(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{fragments: []string{"reply"}}
	o := newTestOrchestrator(store, completer)

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", "one", SendObserver{})
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if _, err := o.SendMessage(context.Background(), auth.Anonymous, result.Session.ID, "two", SendObserver{}); err != nil {
		t.Fatalf("second send failed: %v", err)
	}

	turns := completer.turns()
	// one, reply, two; never the in-flight placeholder
	if len(turns) != 3 {
		t.Fatalf("expected 3 history turns, got %d: %+v", len(turns), turns)
	}
	if !turns[0].IsUser || turns[0].Content != "one" {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].IsUser || turns[1].Content != "reply" {
		t.Errorf("unexpected second turn: %+v", turns[1])
	}
	if !turns[2].IsUser || turns[2].Content != "two" {
		t.Errorf("unexpected third turn: %+v", turns[2])
	}
}

func TestSendMessageHistoryIncludesFailedPartial(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{
		fragments: []string{"partial"},
		streamErr: ErrStreamInterrupted,
	}
	o := newTestOrchestrator(store, completer)

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", "one", SendObserver{})
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}

	completer.streamErr = nil
	if _, err := o.SendMessage(context.Background(), auth.Anonymous, result.Session.ID, "two", SendObserver{}); err != nil {
		t.Fatalf("second send failed: %v", err)
	}

	turns := completer.turns()
	// one, the failed partial reply, two; failed content stays in the conversation
	if len(turns) != 3 {
		t.Fatalf("expected 3 history turns, got %d: %+v", len(turns), turns)
	}
	if turns[1].IsUser || turns[1].Content != "partial" {
		t.Errorf("expected the failed partial reply as an assistant turn, got %+v", turns[1])
	}
	if !turns[2].IsUser || turns[2].Content != "two" {
		t.Errorf("unexpected final turn: %+v", turns[2])
	}
}

func TestSendMessageInterruptionKeepsPartial(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{
		fragments: []string{"partial ", "answer"},
		streamErr: ErrStreamInterrupted,
	}
	o := newTestOrchestrator(store, completer)

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", "hello", SendObserver{})
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}

	if result.Assistant.Status != db.MessageStatusFailed {
		t.Errorf("expected assistant message failed, got %s", result.Assistant.Status)
	}
	if result.Assistant.Content != "partial answer" {
		t.Errorf("expected partial content kept, got %q", result.Assistant.Content)
	}

	persisted := store.message(result.Session.ID, result.Assistant.ID)
	if persisted.Status != db.MessageStatusFailed || persisted.Content != "partial answer" {
		t.Errorf("unexpected persisted state: %+v", persisted)
	}
}

func TestSendMessageOpenFailureWritesFallbackText(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{openErr: ErrUpstreamUnavailable}
	o := newTestOrchestrator(store, completer)

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", "hello", SendObserver{})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	if result.Assistant.Content != FallbackErrorText {
		t.Errorf("expected fallback text, got %q", result.Assistant.Content)
	}
	if result.Assistant.Status != db.MessageStatusFinal {
		t.Errorf("expected final status for the error message, got %s", result.Assistant.Status)
	}

	// The user message survives the failure
	messages, _ := store.ListMessages(result.Session.ID)
	if len(messages) != 2 {
		t.Fatalf("expected user message plus failed assistant message, got %d", len(messages))
	}
	if messages[0].Content != "hello" || messages[0].Status != db.MessageStatusFinal {
		t.Errorf("unexpected user message: %+v", messages[0])
	}
}

func TestSendMessageFailureWithNoFragmentsKeepsPlaceholderEmpty(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{streamErr: ErrStreamInterrupted}
	o := newTestOrchestrator(store, completer)

	result, err := o.SendMessage(context.Background(), auth.Anonymous, "", "hello", SendObserver{})
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}
	if result.Assistant.Content != "" {
		t.Errorf("expected empty content for a reply that never streamed, got %q", result.Assistant.Content)
	}
	if result.Assistant.Status != db.MessageStatusFailed {
		t.Errorf("expected failed status, got %s", result.Assistant.Status)
	}
}

func TestSendMessageCancellationKeepsPartial(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{fragments: []string{"keep ", "this", "never seen"}}
	o := newTestOrchestrator(store, completer)

	ctx, cancel := context.WithCancel(context.Background())
	fragments := 0
	obs := SendObserver{OnFragment: func(string) {
		fragments++
		if fragments == 2 {
			cancel()
		}
	}}

	result, err := o.SendMessage(ctx, auth.Anonymous, "", "hello", obs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if result.Assistant.Status != db.MessageStatusFailed {
		t.Errorf("expected failed status after cancel, got %s", result.Assistant.Status)
	}
	if result.Assistant.Content != "keep this" {
		t.Errorf("expected partial content kept on cancel, got %q", result.Assistant.Content)
	}
}

func TestSendMessageBusySession(t *testing.T) {
	store := newMemoryStore()
	release := make(chan struct{})
	completer := &scriptedCompleter{fragments: []string{"slow"}, release: release}
	o := newTestOrchestrator(store, completer)

	accepted := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		_, err := o.SendMessage(context.Background(), auth.Anonymous, "", "first", SendObserver{
			OnAccepted: func(r *SendResult) { accepted <- r.Session.ID },
		})
		done <- err
	}()

	var sessionID string
	select {
	case sessionID = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("send never reached the streaming phase")
	}

	if !o.IsBusy(sessionID) {
		t.Error("expected session to be busy mid-send")
	}
	if _, err := o.SendMessage(context.Background(), auth.Anonymous, sessionID, "second", SendObserver{}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if o.IsBusy(sessionID) {
		t.Error("expected latch released after send")
	}

	// The session accepts sends again
	if _, err := o.SendMessage(context.Background(), auth.Anonymous, sessionID, "third", SendObserver{}); err != nil {
		t.Fatalf("send after release failed: %v", err)
	}
}

func TestConcurrentSendsOnDistinctSessions(t *testing.T) {
	store := newMemoryStore()
	o := newTestOrchestrator(store, &scriptedCompleter{fragments: []string{"ok"}})

	first, err := o.SendMessage(context.Background(), auth.Anonymous, "", "alpha", SendObserver{})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	second, err := o.SendMessage(context.Background(), auth.Anonymous, "", "beta", SendObserver{})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if first.Session.ID == second.Session.ID {
		t.Error("expected distinct sessions")
	}

	done := make(chan error, 2)
	go func() {
		_, err := o.SendMessage(context.Background(), auth.Anonymous, first.Session.ID, "again", SendObserver{})
		done <- err
	}()
	go func() {
		_, err := o.SendMessage(context.Background(), auth.Anonymous, second.Session.ID, "again", SendObserver{})
		done <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent send failed: %v", err)
		}
	}
}
