package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/xiaoyuanzhu-com/my-chat-db/api"
	"github.com/xiaoyuanzhu-com/my-chat-db/chat"
	"github.com/xiaoyuanzhu-com/my-chat-db/config"
	"github.com/xiaoyuanzhu-com/my-chat-db/db"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
	"github.com/xiaoyuanzhu-com/my-chat-db/notifications"
	"github.com/xiaoyuanzhu-com/my-chat-db/vendors"
)

func main() {
	cfg := config.Get()

	// Initialize database
	_ = db.GetDB()
	log.Info().Str("path", cfg.DatabasePath).Msg("database initialized")

	// A crash mid-stream leaves streaming messages behind; mark them failed
	// so their partial content is preserved but never appended to again
	if n, err := db.FailOrphanedStreams(); err != nil {
		log.Error().Err(err).Msg("failed to recover orphaned streams")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("recovered orphaned streaming messages")
	}

	// Purge expired auth sessions at startup; GetAuthSession only filters
	// expired rows, it never deletes them
	if n, err := db.DeleteExpiredAuthSessions(); err != nil {
		log.Error().Err(err).Msg("failed to purge expired auth sessions")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("purged expired auth sessions")
	}

	// Set Gin to release mode to disable its default debug logging
	// We use our own zerolog-based request logger instead
	gin.SetMode(gin.ReleaseMode)

	// Create Gin router
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())

	// Request logging middleware (uses zerolog)
	r.Use(log.GinLogger())

	// Compress JSON responses. Streaming chat and SSE must go out unbuffered
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/api/chat",
		"/api/notifications",
	})))

	// CORS for development
	if cfg.IsDevelopment() {
		r.Use(corsMiddleware())
	}

	// Security headers (production only)
	if !cfg.IsDevelopment() {
		r.Use(securityHeadersMiddleware())
	}

	// Trust proxy headers
	r.SetTrustedProxies(nil)

	// Ignore .well-known requests (Chrome DevTools, etc.)
	r.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	// Wire the conversation pipeline
	notifier := notifications.GetService()
	store := chat.NewSQLStore()
	repo := chat.NewRepository(store)
	completer := chat.NewClient()
	orchestrator := chat.NewOrchestrator(store, repo, completer, notifier, messageIndexer{})
	handlers := api.NewHandlers(repo, orchestrator, completer, notifier)

	// Setup API routes
	api.SetupRoutes(r, handlers)

	// SPA fallback - serve index.html for non-API routes
	r.NoRoute(func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.File("frontend/dist/index.html")
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:     addr,
		Handler:  r,
		ErrorLog: log.StdLogger(zerolog.WarnLevel),
	}

	// Start server
	go func() {
		log.Info().
			Str("addr", addr).
			Str("env", cfg.Env).
			Msg("server starting")

		// Print network addresses
		printNetworkAddresses(cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Shutdown notification service to close all SSE connections
	notifier.Shutdown()

	// Shutdown server with timeout to close remaining HTTP connections
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	// Close database
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("database close error")
	}

	log.Info().Msg("server stopped")
}

// messageIndexer feeds finalized messages into the search index
type messageIndexer struct{}

func (messageIndexer) IndexMessage(m *db.Message) {
	meili := vendors.GetMeiliClient()
	if meili == nil {
		return
	}
	err := meili.IndexMessage(vendors.MessageDocument{
		ID:        m.ID,
		SessionID: m.SessionID,
		Content:   m.Content,
		IsUser:    m.IsUser,
		Timestamp: m.Timestamp,
	})
	if err != nil {
		log.Warn().Err(err).Str("messageId", m.ID).Msg("failed to index message")
	}
}

// corsMiddleware creates a CORS middleware for Gin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:12345": true,
			"http://localhost:12346": true,
		}

		if allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Location, X-Chat-Session-Id, X-Chat-Message-Id")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func printNetworkAddresses(port int) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	var addresses []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					addresses = append(addresses, fmt.Sprintf("http://%s:%d", ip4.String(), port))
				}
			}
		}
	}

	for _, addr := range addresses {
		log.Info().Str("url", addr).Msg("network")
	}
}

// securityHeadersMiddleware adds security headers to all responses
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
