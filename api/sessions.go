package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-chat-db/chat"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
	"github.com/xiaoyuanzhu-com/my-chat-db/vendors"
)

var sessionsLogger = log.GetLogger("ApiSessions")

// ListSessions handles GET /api/sessions
// Sessions are ordered most recently updated first.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions, err := h.repo.ListSessions()
	if err != nil {
		sessionsLogger.Error().Err(err).Msg("failed to list sessions")
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}
	RespondList(c, sessions, nil)
}

// CreateSession handles POST /api/sessions
func (h *Handlers) CreateSession(c *gin.Context) {
	var body struct {
		Title string `json:"title"`
	}
	// Body is optional; an empty one creates a session with the default title
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			RespondBadRequest(c, "Invalid request body")
			return
		}
	}

	session, err := h.repo.CreateSession(body.Title)
	if err != nil {
		sessionsLogger.Error().Err(err).Msg("failed to create session")
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}

	h.notifier.Publish(string(chat.EventSessionCreated), session)
	RespondCreated(c, session, "/api/sessions/"+session.ID)
}

// GetSession handles GET /api/sessions/:id
func (h *Handlers) GetSession(c *gin.Context) {
	session, err := h.repo.GetSession(c.Param("id"))
	if err != nil {
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}
	if session == nil {
		RespondNotFound(c, "Session not found")
		return
	}
	RespondData(c, session)
}

// GetSessionMessages handles GET /api/sessions/:id/messages
// Messages are ordered oldest first. An in-flight assistant message appears
// with its partial content and streaming status.
func (h *Handlers) GetSessionMessages(c *gin.Context) {
	id := c.Param("id")
	session, err := h.repo.GetSession(id)
	if err != nil {
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}
	if session == nil {
		RespondNotFound(c, "Session not found")
		return
	}

	messages, err := h.repo.ListMessages(id)
	if err != nil {
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to list messages")
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}
	RespondList(c, messages, nil)
}

// RenameSession handles PUT /api/sessions/:id
func (h *Handlers) RenameSession(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	session, err := h.repo.GetSession(id)
	if err != nil {
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}
	if session == nil {
		RespondNotFound(c, "Session not found")
		return
	}

	if err := h.repo.RenameSession(id, body.Title); err != nil {
		if errors.Is(err, chat.ErrInvalidInput) {
			RespondBadRequest(c, "Title cannot be empty")
			return
		}
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to rename session")
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}

	session, err = h.repo.GetSession(id)
	if err != nil || session == nil {
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}
	h.notifier.Publish(string(chat.EventSessionUpdated), session)
	RespondData(c, session)
}

// DeleteSession handles DELETE /api/sessions/:id
// Removes the session with its messages and returns the session the client
// should switch to, creating a fresh one when none remain.
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")

	// A send in flight holds the session's streaming message open
	if h.orchestrator.IsBusy(id) {
		RespondConflict(c, "A message is being generated in this session")
		return
	}

	session, err := h.repo.GetSession(id)
	if err != nil {
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}
	if session == nil {
		RespondNotFound(c, "Session not found")
		return
	}

	if err := h.repo.DeleteSession(id); err != nil {
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to delete session")
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}

	// Search documents go with the session; best effort
	if meili := vendors.GetMeiliClient(); meili != nil {
		if err := meili.DeleteSessionDocuments(id); err != nil {
			sessionsLogger.Warn().Err(err).Str("sessionId", id).Msg("failed to drop search documents")
		}
	}

	fallback, err := h.repo.FallbackSession()
	if err != nil {
		sessionsLogger.Error().Err(err).Msg("failed to resolve fallback session")
		RespondServiceUnavailable(c, "Storage unavailable")
		return
	}

	h.notifier.NotifySessionDeleted(id, fallback.ID)
	RespondData(c, gin.H{
		"deleted":         id,
		"fallbackSession": fallback,
	})
}
