package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
)

// respondError maps domain errors onto HTTP responses. Provider failures
// surface as 502 with the upstream body attached so callers can see what
// the cloud actually said.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var missing *core.MissingParametersError
	var refresh *core.RefreshFailedError
	var upstream *core.UpstreamError

	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": missing.Error(),
			"code":  "MISSING_PARAMETERS",
		})

	case errors.Is(err, core.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Not authenticated with the provider, complete the OAuth flow first",
			"code":  "NOT_AUTHENTICATED",
		})

	case errors.As(err, &refresh):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": refresh.Error(),
			"code":  "REFRESH_FAILED",
		})

	case errors.Is(err, core.ErrNoHomesFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No homes found for this account",
			"code":  "NO_HOMES_FOUND",
		})

	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Resource not found",
			"code":  "NOT_FOUND",
		})

	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "Provider request failed",
			"code":     "UPSTREAM_ERROR",
			"status":   upstream.StatusCode,
			"upstream": upstream.Body,
		})

	default:
		logger.Error("Unhandled error",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
			"code":  "INTERNAL_ERROR",
		})
	}
}
