package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-chat-db/chat"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

var chatLogger = log.GetLogger("ApiChat")

// Streaming endpoints write plain text chunks, not the JSON envelope. Error
// responses before the first byte are a flat {"error": ...} object for
// compatibility with the browser client; after the first byte the stream
// simply ends early and truncation shows up in the persisted message status.

// ChatTurn is one conversation entry in a raw completion request
type ChatTurn struct {
	Content string `json:"content"`
	IsUser  bool   `json:"isUser"`
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Messages []ChatTurn `json:"messages"`
}

// SendRequest is the body of POST /api/chat/send
type SendRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// Chat handles POST /api/chat
// Stateless completion: the caller supplies the whole conversation and gets
// the assistant response back as a plain text stream. Nothing is persisted.
func (h *Handlers) Chat(c *gin.Context) {
	ident := CurrentIdentity(c)
	if !ident.IsAuthenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Messages cannot be empty"})
		return
	}

	turns := make([]chat.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, chat.Turn{Content: m.Content, IsUser: m.IsUser})
	}

	stream, err := h.completer.Complete(c.Request.Context(), ident, turns)
	if err != nil {
		status, message := completionErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		fragment, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				chatLogger.Warn().Err(err).Msg("completion stream ended early")
			}
			return
		}
		if fragment == "" {
			continue
		}
		if _, err := c.Writer.WriteString(fragment); err != nil {
			// Client went away
			return
		}
		c.Writer.Flush()
	}
}

// Send handles POST /api/chat/send
// One orchestrated user turn: the user message and the streamed assistant
// reply are persisted, and the assistant text is relayed as a plain text
// stream. Session and message ids travel in response headers so the client
// has them before the first fragment.
func (h *Handlers) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	started := false
	obs := chat.SendObserver{
		OnAccepted: func(result *chat.SendResult) {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
			c.Header("X-Chat-Session-Id", result.Session.ID)
			c.Header("X-Chat-Message-Id", result.Assistant.ID)
			c.Status(http.StatusOK)
			c.Writer.Flush()
			started = true
		},
		OnFragment: func(fragment string) {
			if _, err := c.Writer.WriteString(fragment); err != nil {
				return
			}
			c.Writer.Flush()
		},
	}

	result, err := h.orchestrator.SendMessage(c.Request.Context(), CurrentIdentity(c), req.SessionID, req.Text, obs)
	if err != nil && !started {
		status, message := sendErrorStatus(err)
		if result != nil && result.Session != nil {
			c.Header("X-Chat-Session-Id", result.Session.ID)
		}
		c.JSON(status, gin.H{"error": message})
		return
	}
	// Stream already committed; the persisted status carries the outcome
	if err != nil {
		chatLogger.Warn().Err(err).Msg("send ended early")
	}
}

// completionErrorStatus maps a completion failure to the flat wire format
func completionErrorStatus(err error) (int, string) {
	var upstream *chat.UpstreamError
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, chat.ErrInvalidInput):
		return http.StatusBadRequest, "Messages cannot be empty"
	case errors.Is(err, chat.ErrTimeout):
		return http.StatusGatewayTimeout, "Upstream timed out"
	case errors.As(err, &upstream):
		return http.StatusServiceUnavailable, "Upstream rejected the request"
	case errors.Is(err, chat.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "Upstream unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// sendErrorStatus maps an orchestrated send failure to the flat wire format
func sendErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return http.StatusBadRequest, "Message cannot be empty"
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, "A message is already being generated"
	case errors.Is(err, chat.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "Storage unavailable"
	default:
		return completionErrorStatus(err)
	}
}
