package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/galasfoundry/mooch-auth/internal/model"
	"github.com/galasfoundry/mooch-auth/internal/password"
)

// writeError maps the core's error taxonomy onto status codes. Credential
// and token errors surface without internal detail; Unavailable is
// distinguished so callers can retry with backoff.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
	case errors.Is(err, model.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, model.ErrTokenMalformed),
		errors.Is(err, model.ErrBadSignature),
		errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrTokenRevoked),
		errors.Is(err, model.ErrUnknownKey):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	case errors.Is(err, model.ErrInsufficientScope):
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient scope"})
	case errors.Is(err, model.ErrIdentifierTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "identifier already taken"})
	case errors.Is(err, password.ErrSecretTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret too long"})
	case errors.Is(err, model.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
