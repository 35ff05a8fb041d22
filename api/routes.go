package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// API group
	api := r.Group("/api")

	// Auth routes
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)

	// OAuth routes
	api.GET("/oauth/authorize", h.OAuthAuthorize)
	api.GET("/oauth/callback", h.OAuthCallback)
	api.GET("/oauth/token", h.OAuthStatus)
	api.POST("/oauth/logout", h.OAuthLogout)

	// Everything below requires authentication when a mode is configured
	protected := api.Group("")
	protected.Use(AuthMiddleware())

	// Session routes
	protected.GET("/sessions", h.ListSessions)
	protected.POST("/sessions", h.CreateSession)
	protected.GET("/sessions/:id", h.GetSession)
	protected.PUT("/sessions/:id", h.RenameSession)
	protected.DELETE("/sessions/:id", h.DeleteSession)
	protected.GET("/sessions/:id/messages", h.GetSessionMessages)

	// Chat routes. These resolve identity themselves so the streaming wire
	// format stays flat instead of the middleware's envelope.
	api.POST("/chat", h.Chat)
	api.POST("/chat/send", h.Send)

	// Search
	protected.GET("/search", h.Search)

	// Stats
	protected.GET("/stats", h.GetStats)

	// Notifications (SSE)
	protected.GET("/notifications/stream", h.NotificationStream)
}
