package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/idgen"
)

// stateCookieMaxAge bounds how long an authorize redirect stays usable.
const stateCookieMaxAge = 600

// TokenFlow is the token-manager surface the auth routes drive.
type TokenFlow interface {
	AuthCodeURL(provider core.Provider, state string) (string, error)
	Exchange(ctx context.Context, provider core.Provider, code string) error
	Seed(ctx context.Context, provider core.Provider, accessToken, refreshToken string) error
}

// AuthHandler handles the OAuth authorize/callback flow and token seeding
type AuthHandler struct {
	tokens TokenFlow
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(tokens TokenFlow, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		tokens: tokens,
		logger: logger,
	}
}

func stateCookie(provider core.Provider) string {
	return "oauth_state_" + string(provider)
}

// Authorize redirects the caller to the provider's consent page with a
// fresh state nonce, stored in a short-lived cookie for the callback check.
// GET /auth/:provider
func (h *AuthHandler) Authorize(provider core.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := idgen.NewState()

		authURL, err := h.tokens.AuthCodeURL(provider, state)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}

		c.SetCookie(stateCookie(provider), state, stateCookieMaxAge, "/", "", false, true)
		c.Redirect(http.StatusFound, authURL)
	}
}

// Callback exchanges the authorization code for tokens after verifying the
// state nonce.
// GET /auth/:provider/callback
func (h *AuthHandler) Callback(provider core.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if errParam := c.Query("error"); errParam != "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Authorization denied: " + errParam,
				"code":  "OAUTH_DENIED",
			})
			return
		}

		code := c.Query("code")
		if code == "" {
			respondError(c, h.logger, &core.MissingParametersError{Params: []string{"code"}})
			return
		}

		expected, err := c.Cookie(stateCookie(provider))
		if err != nil || expected == "" || c.Query("state") != expected {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "OAuth state mismatch",
				"code":  "STATE_MISMATCH",
			})
			return
		}
		c.SetCookie(stateCookie(provider), "", -1, "/", "", false, true)

		if err := h.tokens.Exchange(c.Request.Context(), provider, code); err != nil {
			respondError(c, h.logger, err)
			return
		}

		h.logger.Info("OAuth flow completed",
			"component", "api",
			"provider", provider,
		)

		c.JSON(http.StatusOK, gin.H{
			"status":   "authenticated",
			"provider": provider,
		})
	}
}

// NetatmoInit seeds the Netatmo token store from an operator-supplied
// token pair, bypassing the browser flow.
// POST /api/netatmo/init
func (h *AuthHandler) NetatmoInit(c *gin.Context) {
	var req struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	if err := h.tokens.Seed(c.Request.Context(), core.ProviderNetatmo, req.AccessToken, req.RefreshToken); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "initialized",
		"provider": core.ProviderNetatmo,
	})
}
