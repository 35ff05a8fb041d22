package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
	"github.com/xiaoyuanzhu-com/my-chat-db/vendors"
)

var searchLogger = log.GetLogger("ApiSearch")

const defaultSearchLimit = 50

// SearchResult is one matched message
type SearchResult struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	IsUser    bool   `json:"isUser"`
	Timestamp int64  `json:"timestamp"`
}

// Search handles GET /api/search?q=...&limit=...
// Full-text search over finalized messages. Uses the search index when one
// is configured, falling back to a LIKE scan over the local store.
func (h *Handlers) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		RespondBadRequest(c, "Query parameter 'q' is required")
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondBadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	if meili := vendors.GetMeiliClient(); meili != nil {
		docs, err := meili.SearchMessages(query, limit)
		if err == nil {
			results := make([]SearchResult, 0, len(docs))
			for _, d := range docs {
				results = append(results, SearchResult{
					ID:        d.ID,
					SessionID: d.SessionID,
					Content:   d.Content,
					IsUser:    d.IsUser,
					Timestamp: d.Timestamp,
				})
			}
			RespondList(c, results, nil)
			return
		}
		searchLogger.Warn().Err(err).Msg("index search failed, falling back to store scan")
	}

	messages, err := db.SearchMessagesLike(query, limit)
	if err != nil {
		searchLogger.Error().Err(err).Msg("search failed")
		RespondServiceUnavailable(c, "Search unavailable")
		return
	}

	results := make([]SearchResult, 0, len(messages))
	for _, m := range messages {
		results = append(results, SearchResult{
			ID:        m.ID,
			SessionID: m.SessionID,
			Content:   m.Content,
			IsUser:    m.IsUser,
			Timestamp: m.Timestamp,
		})
	}
	RespondList(c, results, nil)
}
