package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-chat-db/auth"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

const identityKey = "identity"

// AuthMiddleware returns a Gin middleware that enforces authentication
// based on the configured auth mode (none, password, oauth). The resolved
// identity is stored on the request context for downstream handlers.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident := ResolveIdentity(c)
		c.Set(identityKey, ident)

		if auth.IsAuthRequired() && !ident.IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  "INVALID_SESSION",
			})
			return
		}

		c.Next()
	}
}

// CurrentIdentity returns the identity resolved by AuthMiddleware. Handlers
// mounted outside the middleware fall back to resolving it directly.
func CurrentIdentity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if ident, ok := v.(auth.Identity); ok {
			return ident
		}
	}
	return ResolveIdentity(c)
}

// ResolveIdentity determines the caller's identity for the configured auth
// mode without writing a response.
func ResolveIdentity(c *gin.Context) auth.Identity {
	if !auth.IsAuthRequired() {
		return auth.Anonymous
	}

	if auth.IsOAuthEnabled() {
		if subject, ok := validateOAuthToken(c); ok {
			return auth.Identity{Authenticated: true, Subject: subject}
		}
		return auth.Unauthenticated
	}

	if auth.IsPasswordAuthEnabled() {
		if session := ValidatePasswordSession(c); session != nil {
			return auth.Identity{Authenticated: true, Subject: session.ID}
		}
		return auth.Unauthenticated
	}

	return auth.Anonymous
}

// validateOAuthToken validates the OAuth access token from cookie or header
// and returns the verified username.
func validateOAuthToken(c *gin.Context) (string, bool) {
	// Get access token from Authorization header or cookie
	accessToken := c.Request.Header.Get("Authorization")
	if strings.HasPrefix(accessToken, "Bearer ") {
		accessToken = strings.TrimPrefix(accessToken, "Bearer ")
	} else {
		var err error
		accessToken, err = c.Cookie("access_token")
		if err != nil || accessToken == "" {
			return "", false
		}
	}

	provider, err := auth.GetOIDCProvider()
	if err != nil {
		log.Error().Err(err).Msg("failed to get OIDC provider for token validation")
		return "", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idToken, err := provider.VerifyIDToken(ctx, accessToken)
	if err != nil {
		log.Debug().Err(err).Msg("OAuth token validation failed")
		return "", false
	}

	var claims struct {
		Sub               string `json:"sub"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		log.Error().Err(err).Msg("failed to parse token claims")
		return "", false
	}

	username := claims.PreferredUsername
	if username == "" && claims.Email != "" {
		parts := strings.Split(claims.Email, "@")
		username = parts[0]
	}
	if username == "" {
		username = claims.Sub
	}

	if !auth.VerifyExpectedUsername(username) {
		log.Warn().Str("username", username).Msg("OAuth token has unauthorized username")
		return "", false
	}

	return username, true
}
