package api

import (
	"github.com/xiaoyuanzhu-com/my-chat-db/chat"
	"github.com/xiaoyuanzhu-com/my-chat-db/notifications"
)

// Handlers holds references to the conversation components
type Handlers struct {
	repo         *chat.Repository
	orchestrator *chat.Orchestrator
	completer    chat.Completer
	notifier     *notifications.Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(repo *chat.Repository, orchestrator *chat.Orchestrator, completer chat.Completer, notifier *notifications.Service) *Handlers {
	return &Handlers{
		repo:         repo,
		orchestrator: orchestrator,
		completer:    completer,
		notifier:     notifier,
	}
}
