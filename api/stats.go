package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

// GetStats handles GET /api/stats
func (h *Handlers) GetStats(c *gin.Context) {
	sessionCount, err := db.CountChatSessions()
	if err != nil {
		log.Error().Err(err).Msg("failed to count sessions")
		sessionCount = 0
	}

	var messageCount, streamingCount, failedCount int64
	err = db.GetDB().QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'streaming' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM messages
	`).Scan(&messageCount, &streamingCount, &failedCount)
	if err != nil {
		log.Error().Err(err).Msg("failed to get message stats")
		messageCount, streamingCount, failedCount = 0, 0, 0
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": gin.H{
			"count": sessionCount,
		},
		"messages": gin.H{
			"count":     messageCount,
			"streaming": streamingCount,
			"failed":    failedCount,
		},
		"notifications": gin.H{
			"subscribers": h.notifier.SubscriberCount(),
		},
	})
}
