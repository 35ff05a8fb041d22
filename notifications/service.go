package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventConnected        EventType = "connected"
	EventSessionCreated   EventType = "session-created"
	EventSessionUpdated   EventType = "session-updated"
	EventSessionDeleted   EventType = "session-deleted"
	EventMessageCompleted EventType = "message-completed"
	EventMessageFailed    EventType = "message-failed"
)

// Event represents a notification event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Service manages SSE subscriptions and event broadcasting
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	done        chan struct{}
}

// NewService creates a new notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
		done:        make(chan struct{}),
	}
}

var (
	instance *Service
	once     sync.Once
)

// GetService returns the shared notification service
func GetService() *Service {
	once.Do(func() {
		instance = NewService()
	})
	return instance
}

// Subscribe creates a new subscription channel
// Returns the event channel and an unsubscribe function
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 10)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Only close if the channel is still in subscribers map
		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Notify broadcasts an event to all subscribers
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// Publish broadcasts an event by kind. Satisfies the orchestrator's event
// sink without the chat package importing this one.
func (s *Service) Publish(kind string, payload any) {
	s.Notify(Event{
		Type:      EventType(kind),
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	})
}

// NotifySessionDeleted sends a session-deleted event with the fallback
// session the UI should switch to.
func (s *Service) NotifySessionDeleted(sessionID, fallbackID string) {
	s.Notify(Event{
		Type:      EventSessionDeleted,
		Timestamp: time.Now().UnixMilli(),
		Data: map[string]interface{}{
			"sessionId":         sessionID,
			"fallbackSessionId": fallbackID,
		},
	})
}

// Shutdown closes the notification service
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.done)

	// Close all subscriber channels
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
