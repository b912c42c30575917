package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galasfoundry/mooch-auth/internal/logger"
	"github.com/galasfoundry/mooch-auth/internal/model"
)

const claimsContextKey = "auth.claims"

// Authenticate validates the bearer token through the session authority and
// injects its claims into the request context. requiredScope is enforced by
// the authority's scope containment check.
func Authenticate(auth AuthService, log *logger.Logger, requiredScope ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := auth.Authorize(c.Request.Context(), tokenString, requiredScope...)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims injected by Authenticate.
func ClaimsFromContext(c *gin.Context) (model.Claims, bool) {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return model.Claims{}, false
	}
	claims, ok := value.(model.Claims)
	return claims, ok
}

// RequestLogger logs method, path, status and duration for each request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Info("http request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
