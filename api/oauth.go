package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/my-chat-db/auth"
	"github.com/xiaoyuanzhu-com/my-chat-db/config"
	"github.com/xiaoyuanzhu-com/my-chat-db/log"
)

var oauthLogger = log.GetLogger("ApiOAuth")

const (
	stateCookieName   = "oauth_state"
	stateCookieMaxAge = 10 * 60
	tokenCookieMaxAge = 24 * 60 * 60
)

// OAuthAuthorize handles GET /api/oauth/authorize
func (h *Handlers) OAuthAuthorize(c *gin.Context) {
	provider, err := auth.GetOIDCProvider()
	if err != nil {
		oauthLogger.Error().Err(err).Msg("OAuth is not configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "OAuth is not configured"})
		return
	}

	state := generateState()
	secure := !config.Get().IsDevelopment()
	c.SetCookie(stateCookieName, state, stateCookieMaxAge, "/", "", secure, true)

	c.Redirect(http.StatusFound, provider.GetAuthCodeURL(state))
}

// OAuthCallback handles GET /api/oauth/callback
func (h *Handlers) OAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error")
		if errMsg != "" {
			oauthLogger.Error().
				Str("error", errMsg).
				Str("description", c.Query("error_description")).
				Msg("OAuth callback error")
			c.Redirect(http.StatusFound, "/?error="+url.QueryEscape(errMsg))
			return
		}
		c.Redirect(http.StatusFound, "/?error=no_code")
		return
	}

	// Verify the state round-trip
	state, err := c.Cookie(stateCookieName)
	if err != nil || state == "" || c.Query("state") != state {
		oauthLogger.Warn().Msg("OAuth state mismatch")
		c.Redirect(http.StatusFound, "/?error=state_mismatch")
		return
	}
	c.SetCookie(stateCookieName, "", -1, "/", "", false, true)

	provider, err := auth.GetOIDCProvider()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "OAuth is not configured"})
		return
	}

	token, err := provider.Exchange(c.Request.Context(), code)
	if err != nil {
		oauthLogger.Error().Err(err).Msg("failed to exchange code for tokens")
		c.Redirect(http.StatusFound, "/?error=token_exchange_failed")
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		oauthLogger.Error().Msg("token response missing id_token")
		c.Redirect(http.StatusFound, "/?error=invalid_token")
		return
	}

	idToken, err := provider.VerifyIDToken(c.Request.Context(), rawIDToken)
	if err != nil {
		oauthLogger.Error().Err(err).Msg("failed to validate ID token")
		c.Redirect(http.StatusFound, "/?error=invalid_token")
		return
	}

	var claims struct {
		Sub               string `json:"sub"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		oauthLogger.Error().Err(err).Msg("failed to parse token claims")
		c.Redirect(http.StatusFound, "/?error=invalid_token")
		return
	}

	username := claims.PreferredUsername
	if username == "" && claims.Email != "" {
		username = strings.Split(claims.Email, "@")[0]
	}
	if username == "" {
		username = claims.Sub
	}
	if !auth.VerifyExpectedUsername(username) {
		oauthLogger.Warn().Str("username", username).Msg("username not allowed")
		c.Redirect(http.StatusFound, "/?error=unauthorized_user")
		return
	}

	secure := !config.Get().IsDevelopment()
	c.SetCookie("access_token", rawIDToken, tokenCookieMaxAge, "/", "", secure, true)
	if token.RefreshToken != "" {
		c.SetCookie("refresh_token", token.RefreshToken, sessionCookieMaxAge, "/", "", secure, true)
	}

	oauthLogger.Info().Str("sub", claims.Sub).Msg("OAuth login successful")
	c.Redirect(http.StatusFound, "/")
}

// OAuthStatus handles GET /api/oauth/token
// Reports whether the caller holds a valid token; never an error status.
func (h *Handlers) OAuthStatus(c *gin.Context) {
	subject, ok := validateOAuthToken(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      subject,
	})
}

// OAuthLogout handles POST /api/oauth/logout
func (h *Handlers) OAuthLogout(c *gin.Context) {
	c.SetCookie("access_token", "", -1, "/", "", false, true)
	c.SetCookie("refresh_token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func generateState() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
